package mock

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

// manualClock records timers and fires them in deadline order on Advance.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	when    time.Time
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due, rest []*manualTimer
	for _, t := range c.timers {
		if !t.when.After(c.now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	for _, t := range due {
		c.mu.Lock()
		stopped := t.stopped
		t.stopped = true
		c.mu.Unlock()
		if !stopped {
			t.f()
		}
	}
}

func newTestGenerator(p Pattern) (*Generator, *manualClock) {
	clk := &manualClock{now: time.Unix(0, 0)}
	g := NewGenerator(Options{
		SpawnDelay:  time.Second,
		MaxLifetime: time.Minute,
		Seed:        1,
		Clock:       clk,
	})
	g.pick = func() Pattern { return p }
	return g, clk
}

var cfg = session.Config{Host: "localhost", Port: 25565, Username: "MineBot"}

func record(events *[]session.ConnEvent) func(session.ConnEvent) {
	return func(ev session.ConnEvent) { *events = append(*events, ev) }
}

func TestRefusedPattern(t *testing.T) {
	g, clk := newTestGenerator(PatternRefused)
	var events []session.ConnEvent
	if _, err := g.Open(cfg, record(&events)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(events) != 0 {
		t.Fatal("Open emitted synchronously")
	}

	clk.Advance(time.Second)
	if len(events) != 1 || events[0].Kind != session.ConnErrored {
		t.Fatalf("events = %+v, want one errored", events)
	}
	if !strings.Contains(events[0].Reason, "ECONNREFUSED localhost:25565") {
		t.Errorf("reason = %q", events[0].Reason)
	}
}

func TestLifecyclePatterns(t *testing.T) {
	tests := []struct {
		pattern Pattern
		end     session.ConnEventKind
	}{
		{PatternSteady, session.ConnEnded},
		{PatternKick, session.ConnKicked},
		{PatternFlaky, session.ConnErrored},
	}

	for _, tt := range tests {
		t.Run(string(tt.pattern), func(t *testing.T) {
			g, clk := newTestGenerator(tt.pattern)
			var events []session.ConnEvent
			g.Open(cfg, record(&events))

			clk.Advance(time.Second)
			if len(events) != 1 || events[0].Kind != session.ConnSpawned {
				t.Fatalf("after spawn delay events = %+v", events)
			}

			// Lifetime is between half and all of MaxLifetime.
			clk.Advance(29 * time.Second)
			if len(events) != 1 {
				t.Fatalf("ended before minimum lifetime: %+v", events)
			}
			clk.Advance(31 * time.Second)
			if len(events) != 2 || events[1].Kind != tt.end || events[1].Reason == "" {
				t.Errorf("events = %+v, want %v with reason", events, tt.end)
			}
		})
	}
}

func TestCloseStopsScript(t *testing.T) {
	g, clk := newTestGenerator(PatternSteady)
	var events []session.ConnEvent
	conn, _ := g.Open(cfg, record(&events))

	clk.Advance(time.Second)
	conn.Close()
	clk.Advance(time.Hour)

	if len(events) != 1 {
		t.Errorf("events after Close: %+v", events)
	}
	if err := conn.Chat("hi"); err != ErrClosed {
		t.Errorf("Chat after Close = %v, want ErrClosed", err)
	}
	if err := conn.SetMovement(session.Forward, true); err != ErrClosed {
		t.Errorf("SetMovement after Close = %v, want ErrClosed", err)
	}
}

func TestChatRecorded(t *testing.T) {
	g, _ := newTestGenerator(PatternSteady)
	conn, _ := g.Open(cfg, func(session.ConnEvent) {})

	conn.Chat("hello")
	conn.Chat("world")
	got := conn.(*Conn).Chats()
	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Errorf("Chats() = %v", got)
	}
}

func TestFailRate(t *testing.T) {
	always := NewGenerator(Options{FailRate: 1, Seed: 7})
	never := NewGenerator(Options{FailRate: 0, Seed: 7})
	for i := 0; i < 50; i++ {
		if p := always.randomPattern(); p != PatternRefused {
			t.Fatalf("fail rate 1 picked %q", p)
		}
		if p := never.randomPattern(); p == PatternRefused {
			t.Fatalf("fail rate 0 picked %q", p)
		}
	}
}

func TestAttemptsCounted(t *testing.T) {
	g, _ := newTestGenerator(PatternRefused)
	for i := 0; i < 3; i++ {
		g.Open(cfg, func(session.ConnEvent) {})
	}
	if g.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", g.Attempts())
	}
}

// The generator drives a real manager through connect, spawn and the
// scripted end without extra opens.
func TestDrivesManager(t *testing.T) {
	g, clk := newTestGenerator(PatternKick)
	g.opts.MaxLifetime = 2 * time.Second

	m := session.NewManager(g, clk)
	events := make(chan session.Event, 16)
	m.AddObserver(events)
	ctx, cancel := contextWithCleanup(t)
	go m.Run(ctx)
	defer cancel()

	if err := m.Start(cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clk.Advance(time.Second)
	waitStatus(t, events, session.Online)

	clk.Advance(2 * time.Second)
	ev := waitStatus(t, events, session.Offline)
	if ev.Cause != session.CauseKick {
		t.Errorf("offline cause = %q, want kick", ev.Cause)
	}
	m.Stop()
	if g.Attempts() != 1 {
		t.Errorf("Attempts() = %d, want 1", g.Attempts())
	}
}
