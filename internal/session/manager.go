package session

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	inboxSize = 64

	tracerName = "github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

// handle is the active connection: the adapter Conn plus the bookkeeping
// needed to drop events that belong to an earlier attempt.
type handle struct {
	attempt uint64
	conn    Conn
	done    chan struct{} // closed on teardown; unblocks late emitters
	span    trace.Span
	spawned bool
}

func (h *handle) end(cause Cause, reason string) {
	if h.span == nil {
		return
	}
	h.span.SetAttributes(attribute.String("minebot.session.cause", string(cause)))
	if cause != CauseStop && cause != CauseNone {
		h.span.SetStatus(codes.Error, reason)
	}
	h.span.End()
}

// Manager owns the single game session. Every mutation of status, config,
// reconnect intent and the active connection happens on the Run goroutine:
// public calls, adapter events and timer fires are queued operations executed
// one at a time. Status and Snapshot read atomically published copies and
// never block.
type Manager struct {
	dialer Dialer
	clock  Clock
	tracer trace.Tracer

	inbox  chan func()
	closed chan struct{}

	state    atomic.Int32
	snapshot atomic.Pointer[Snapshot]

	obsMu       sync.Mutex
	observers   []chan<- Event
	dropped     int64
	lastDropLog time.Time

	// Owned by the Run goroutine.
	cfg       *Config
	reconnect bool
	conn      *handle
	attempt   uint64
	lastError string
	since     time.Time
	retry     reconnectScheduler
	beats     heartbeat
}

// NewManager creates a manager that opens connections through dialer. A nil
// clock uses wall time. The caller must run Run in a goroutine.
func NewManager(dialer Dialer, clock Clock) *Manager {
	if clock == nil {
		clock = realClock{}
	}
	m := &Manager{
		dialer: dialer,
		clock:  clock,
		tracer: otel.Tracer(tracerName),
		inbox:  make(chan func(), inboxSize),
		closed: make(chan struct{}),
		since:  clock.Now(),
		retry:  reconnectScheduler{clock: clock, delay: ReconnectDelay},
		beats: heartbeat{
			clock:    clock,
			interval: HeartbeatInterval,
			hold:     MoveDuration,
			pick:     rand.Intn,
		},
	}
	m.publish()
	return m
}

// AddObserver registers a channel that receives lifecycle events. Sends are
// non-blocking; events are dropped when the channel is full.
func (m *Manager) AddObserver(ch chan<- Event) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, ch)
}

// Run processes queued operations until ctx is cancelled, then stops the
// session and rejects further calls with ErrClosed.
func (m *Manager) Run(ctx context.Context) {
	log.Println("session: manager started")
	for {
		select {
		case <-ctx.Done():
			m.stop()
			close(m.closed)
			log.Println("session: manager stopped")
			return
		case op := <-m.inbox:
			op()
		}
	}
}

// Start stores cfg and begins connecting. It is a no-op while a session is
// connecting or online, so repeated calls never open a second connection.
// During a reconnect backoff the pending retry is dropped and cfg is used
// right away. Connection failures are not returned; they show up as
// status changes.
func (m *Manager) Start(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return m.do(func() { m.start(cfg) })
}

// Stop disables reconnection and tears down whatever is running. It is safe
// to call in any state.
func (m *Manager) Stop() {
	if err := m.do(m.stop); err != nil {
		log.Printf("session: stop ignored: %v", err)
	}
}

// Status returns the current session status.
func (m *Manager) Status() Status {
	return Status(m.state.Load())
}

// Snapshot returns the last published state.
func (m *Manager) Snapshot() Snapshot {
	return *m.snapshot.Load()
}

func (m *Manager) start(cfg Config) {
	if m.conn != nil || m.Status() != Offline {
		log.Println("session: bot is already running or connecting")
		return
	}
	if m.retry.pending() {
		log.Printf("session: replacing pending reconnect to %s with %s", m.cfg.Addr(), cfg.Addr())
		m.retry.cancel()
	}
	m.cfg = &cfg
	m.reconnect = true
	m.lastError = ""
	m.connect()
}

func (m *Manager) stop() {
	m.reconnect = false
	m.retry.cancel()
	m.beats.stop()
	if m.conn != nil {
		m.teardown(CauseStop, "stopped")
	} else {
		m.setStatus(Offline, CauseStop, "")
	}
	log.Println("session: bot has been stopped manually")
}

func (m *Manager) connect() {
	if m.cfg == nil {
		log.Printf("session: %v, cannot connect", ErrConfigMissing)
		m.lastError = ErrConfigMissing.Error()
		m.setStatus(Offline, CauseConfigMissing, ErrConfigMissing.Error())
		return
	}
	if m.conn != nil {
		log.Printf("session: attempt %d still active, not opening another", m.conn.attempt)
		return
	}

	cfg := *m.cfg
	m.attempt++
	h := &handle{attempt: m.attempt, done: make(chan struct{})}
	_, h.span = m.tracer.Start(context.Background(), "session.connect",
		trace.WithAttributes(
			attribute.String("server.address", cfg.Host),
			attribute.Int("server.port", cfg.Port),
			attribute.String("minebot.username", cfg.Username),
			attribute.Int64("minebot.attempt", int64(h.attempt)),
		),
	)

	m.setStatus(Connecting, CauseNone, "")
	log.Printf("session: attempting to connect bot to %s as %s (attempt %d)", cfg.Addr(), cfg.Username, h.attempt)

	conn, err := m.dialer.Open(cfg, m.sink(h))
	if err != nil {
		log.Printf("session: failed to create connection: %v", err)
		close(h.done)
		h.end(CauseOpenFailed, err.Error())
		m.lastError = err.Error()
		m.setStatus(Offline, CauseOpenFailed, err.Error())
		m.maybeReconnect()
		return
	}
	h.conn = conn
	m.conn = h
}

// sink returns the emit callback for one attempt. Events are queued for the
// Run goroutine; once the attempt is torn down they are discarded.
func (m *Manager) sink(h *handle) func(ConnEvent) {
	return func(ev ConnEvent) {
		select {
		case m.inbox <- func() { m.handleConnEvent(h, ev) }:
		case <-h.done:
		case <-m.closed:
		}
	}
}

func (m *Manager) handleConnEvent(h *handle, ev ConnEvent) {
	if m.conn != h {
		return
	}

	switch {
	case ev.Kind == ConnSpawned:
		if h.spawned {
			return
		}
		h.spawned = true
		h.span.AddEvent("spawned")
		m.lastError = ""
		m.setStatus(Online, CauseNone, "")
		log.Println("session: bot has spawned")
		if m.cfg.HeartbeatMessage != "" {
			m.beats.start(m.heartbeatFire)
		}

	case ev.Kind.Terminal():
		switch ev.Kind {
		case ConnErrored:
			log.Printf("session: bot error: %s", ev.Reason)
			if strings.Contains(ev.Reason, "ECONNREFUSED") || strings.Contains(ev.Reason, "connection refused") {
				log.Printf("session: connection refused, is the server running at %s?", m.cfg.Addr())
			}
		case ConnKicked:
			log.Printf("session: bot was kicked: %s", ev.Reason)
		default:
			log.Printf("session: bot disconnected: %s", ev.Reason)
		}
		m.lastError = ev.Reason
		m.teardown(causeFor(ev.Kind), ev.Reason)
		m.maybeReconnect()
	}
}

// teardown disarms the heartbeat, closes the active connection best-effort
// and leaves the session Offline.
func (m *Manager) teardown(cause Cause, reason string) {
	m.beats.stop()
	h := m.conn
	m.conn = nil
	if h != nil {
		close(h.done)
		if h.conn != nil {
			if err := h.conn.Close(); err != nil {
				log.Printf("session: close after %s: %v", cause, err)
			}
		}
		h.end(cause, reason)
	}
	m.setStatus(Offline, cause, reason)
}

func (m *Manager) maybeReconnect() {
	if !m.reconnect {
		log.Println("session: bot disconnected, auto-reconnect is disabled")
		return
	}
	log.Printf("session: reconnecting in %v", m.retry.delay)
	m.retry.arm(func(tok uint64) {
		m.post(func() { m.retryFired(tok) })
	})
	m.publish()
	m.emit(Event{Type: EventRetryScheduled})
}

func (m *Manager) retryFired(token uint64) {
	if !m.retry.claim(token) || !m.reconnect {
		return
	}
	m.publish()
	m.connect()
}

func (m *Manager) setStatus(s Status, cause Cause, reason string) {
	prev := m.Status()
	m.state.Store(int32(s))
	if prev != s {
		m.since = m.clock.Now()
	}
	m.publish()
	if prev != s || cause != CauseNone {
		m.emit(Event{Type: EventStatus, Cause: cause, Reason: reason})
	}
}

func (m *Manager) publish() {
	snap := &Snapshot{
		Status:       m.Status(),
		Reconnect:    m.reconnect,
		RetryPending: m.retry.pending(),
		Attempts:     m.attempt,
		LastError:    m.lastError,
		Since:        m.since,
	}
	if m.cfg != nil {
		snap.Host = m.cfg.Host
		snap.Port = m.cfg.Port
		snap.Username = m.cfg.Username
		snap.HeartbeatMessage = m.cfg.HeartbeatMessage
	}
	m.snapshot.Store(snap)
}

// emit delivers ev to every observer without blocking the Run goroutine.
// Drops are counted and logged at most once per 10 seconds.
func (m *Manager) emit(ev Event) {
	ev.Status = m.Status()
	ev.Attempt = m.attempt
	ev.At = m.clock.Now()
	if m.cfg != nil {
		ev.Host = m.cfg.Host
	}

	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	for _, ch := range m.observers {
		select {
		case ch <- ev:
		default:
			m.dropped++
			now := time.Now()
			if m.lastDropLog.IsZero() || now.Sub(m.lastDropLog) >= 10*time.Second {
				log.Printf("session: events dropped: %d (observer full)", m.dropped)
				m.dropped = 0
				m.lastDropLog = now
			}
		}
	}
}

// do runs op on the Run goroutine and waits for it to finish.
func (m *Manager) do(op func()) error {
	done := make(chan struct{})
	select {
	case m.inbox <- func() { op(); close(done) }:
	case <-m.closed:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-m.closed:
		return ErrClosed
	}
}

// post queues op from a timer goroutine without waiting for it.
func (m *Manager) post(op func()) {
	select {
	case m.inbox <- op:
	case <-m.closed:
	}
}
