// Package control exposes the bot's operations to the HTTP and MCP front
// doors: start and stop the session, read its status, chat and run the
// message trigger.
package control

import (
	"context"
	"errors"
	"strings"

	"github.com/sudoapty-afk/glowing-barnacle/internal/config"
	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
	"github.com/sudoapty-afk/glowing-barnacle/internal/trigger"
)

var ErrEmptyMessage = errors.New("message is required")

// Manager is the part of *session.Manager the front doors drive.
type Manager interface {
	Start(session.Config) error
	Stop()
	SendChat(message string) error
	Snapshot() session.Snapshot
}

// ChatResult mirrors the dashboard's send-message action.
type ChatResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Service binds a session manager to bot defaults, an optional trigger and
// a privacy filter.
type Service struct {
	mgr      Manager
	defaults config.BotConfig
	decider  trigger.Decider
	messages []string
	privacy  *session.PrivacyFilter
}

type Option func(*Service)

// WithTrigger enables Trigger. messages are offered when a request brings
// none of its own.
func WithTrigger(d trigger.Decider, messages []string) Option {
	return func(s *Service) {
		s.decider = d
		s.messages = append([]string(nil), messages...)
	}
}

func WithPrivacy(f *session.PrivacyFilter) Option {
	return func(s *Service) { s.privacy = f }
}

func New(mgr Manager, defaults config.BotConfig, opts ...Option) *Service {
	s := &Service{mgr: mgr, defaults: defaults, privacy: &session.PrivacyFilter{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current snapshot with the privacy filter applied.
func (s *Service) Status() session.Snapshot {
	return s.privacy.Apply(s.mgr.Snapshot())
}

// Privacy returns the filter applied to everything this service hands out.
func (s *Service) Privacy() *session.PrivacyFilter {
	return s.privacy
}

// Start fills blank fields of cfg from the bot defaults and starts the
// session.
func (s *Service) Start(cfg session.Config) (session.Snapshot, error) {
	if err := s.mgr.Start(s.defaults.Fill(cfg)); err != nil {
		return s.Status(), err
	}
	return s.Status(), nil
}

// AutoStart starts the session with the bot defaults unchanged.
func (s *Service) AutoStart() error {
	return s.mgr.Start(s.defaults.Session())
}

func (s *Service) Stop() session.Snapshot {
	s.mgr.Stop()
	return s.Status()
}

// Chat sends message and reports the outcome in the dashboard's shape. The
// error is returned as well so callers can classify it.
func (s *Service) Chat(message string) (ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return ChatResult{Error: ErrEmptyMessage.Error()}, ErrEmptyMessage
	}
	if err := s.mgr.SendChat(message); err != nil {
		return ChatResult{Error: err.Error()}, err
	}
	return ChatResult{Success: true}, nil
}

// Trigger asks the decider whether to answer the described event and sends
// the chosen line when it says yes.
func (s *Service) Trigger(ctx context.Context, in trigger.Input) (trigger.Result, error) {
	if s.decider == nil {
		return trigger.Result{}, trigger.ErrDisabled
	}
	if len(in.AvailableMessages) == 0 {
		in.AvailableMessages = s.messages
	}
	return trigger.Act(ctx, s.decider, s.mgr, in)
}

// TriggerEnabled reports whether a decider is configured.
func (s *Service) TriggerEnabled() bool {
	return s.decider != nil
}

// IsClientError reports whether err was caused by the request rather than
// by the bot or its dependencies.
func IsClientError(err error) bool {
	return errors.Is(err, session.ErrInvalidConfig) ||
		errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, trigger.ErrNoEvent) ||
		errors.Is(err, trigger.ErrNoMessages)
}
