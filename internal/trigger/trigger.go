// Package trigger asks a chat-completion model whether an in-game event
// deserves a reply, and which of the predefined lines to send.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDisabled    = errors.New("trigger is not configured")
	ErrNoEvent     = errors.New("event description is required")
	ErrNoMessages  = errors.New("at least one available message is required")
	ErrBadResponse = errors.New("model returned an unusable response")

	// ErrUnknownMessage marks a reply that is not one of the offered lines.
	ErrUnknownMessage = errors.New("message is not one of the available messages")
)

// Input describes the event and the lines the bot may choose from.
type Input struct {
	EventDescription  string   `json:"eventDescription"`
	AvailableMessages []string `json:"availableMessages"`
}

// Output is the model's decision.
type Output struct {
	ShouldSendMessage bool   `json:"shouldSendMessage"`
	MessageContent    string `json:"messageContent,omitempty"`
}

// Decider turns an event into a decision.
type Decider interface {
	Decide(ctx context.Context, in Input) (Output, error)
}

type Config struct {
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

const systemPrompt = "You are a helpful Minecraft bot assistant. Reply with a single JSON object and nothing else."

var userPrompt = template.Must(template.New("prompt").Parse(`You are provided with a description of an in-game event and a list of available chat messages.
Your task is to determine whether a message should be sent in response to the event.

If a message should be sent, choose the most appropriate message from the list of available messages.
If no message is appropriate, indicate that a message should not be sent.

Here is the event description:
{{.EventDescription}}

Here are the available messages:
{{range .AvailableMessages}}- {{.}}
{{end}}
Return a JSON object with "shouldSendMessage" (boolean) and "messageContent" (string) fields. If no message should be sent, leave messageContent blank.`))

// Client is a Decider backed by an OpenAI-compatible chat completion API.
type Client struct {
	api     openai.Client
	model   string
	timeout time.Duration
	tracer  trace.Tracer
}

// New returns a client, or ErrDisabled when neither an API key nor a
// custom base URL is configured.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ErrDisabled
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api:     openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		tracer:  otel.Tracer("github.com/sudoapty-afk/glowing-barnacle/internal/trigger"),
	}, nil
}

// Decide validates in, asks the model and parses its JSON answer.
func (c *Client) Decide(ctx context.Context, in Input) (Output, error) {
	in, err := normalize(in)
	if err != nil {
		return Output{}, err
	}

	ctx, span := c.tracer.Start(ctx, "trigger.decide", trace.WithAttributes(
		attribute.String("gen_ai.request.model", c.model),
		attribute.Int("minebot.trigger.messages", len(in.AvailableMessages)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var prompt strings.Builder
	if err := userPrompt.Execute(&prompt, in); err != nil {
		return Output{}, fmt.Errorf("render prompt: %w", err)
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return Output{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return Output{}, fmt.Errorf("%w: no choices", ErrBadResponse)
	}

	out, err := parseOutput(resp.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad response")
		return Output{}, err
	}
	span.SetAttributes(attribute.Bool("minebot.trigger.send", out.ShouldSendMessage))
	return out, nil
}

func normalize(in Input) (Input, error) {
	in.EventDescription = strings.TrimSpace(in.EventDescription)
	if in.EventDescription == "" {
		return in, ErrNoEvent
	}
	msgs := make([]string, 0, len(in.AvailableMessages))
	for _, m := range in.AvailableMessages {
		if m = strings.TrimSpace(m); m != "" {
			msgs = append(msgs, m)
		}
	}
	if len(msgs) == 0 {
		return in, ErrNoMessages
	}
	in.AvailableMessages = msgs
	return in, nil
}

// parseOutput accepts the model's JSON, optionally wrapped in a markdown
// code fence.
func parseOutput(content string) (Output, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	var out Output
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	out.MessageContent = strings.TrimSpace(out.MessageContent)
	if out.MessageContent == "" {
		out.ShouldSendMessage = false
	}
	if !out.ShouldSendMessage {
		out.MessageContent = ""
	}
	return out, nil
}
