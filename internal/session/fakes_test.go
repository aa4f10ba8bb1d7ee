package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	f       func()
	pending bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), f: f, pending: true}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.pending
	t.pending = false
	return was
}

// Advance moves time forward by d and runs every timer that came due, in
// deadline order. Callbacks run outside the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].when.Before(c.timers[j].when) })
		var due *fakeTimer
		for i, t := range c.timers {
			if !t.pending {
				continue
			}
			if t.when.After(target) {
				break
			}
			due = t
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			break
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.pending = false
		if due.when.After(c.now) {
			c.now = due.when
		}
		c.mu.Unlock()
		due.f()
	}
}

// Pending counts armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.pending {
			n++
		}
	}
	return n
}

type movement struct {
	dir Direction
	on  bool
}

type fakeConn struct {
	mu      sync.Mutex
	chats   []string
	moves   []movement
	closed  bool
	chatErr error
}

func (c *fakeConn) Chat(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatErr != nil {
		return c.chatErr
	}
	c.chats = append(c.chats, message)
	return nil
}

func (c *fakeConn) SetMovement(dir Direction, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moves = append(c.moves, movement{dir, on})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Chats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chats...)
}

func (c *fakeConn) Moves() []movement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]movement(nil), c.moves...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeAttempt struct {
	cfg  Config
	conn *fakeConn
	emit func(ConnEvent)
}

// fakeDialer records every Open. When autoSpawn is set, each successful
// attempt emits ConnSpawned from a separate goroutine.
type fakeDialer struct {
	mu        sync.Mutex
	attempts  []*fakeAttempt
	failures  int // number of upcoming Opens that fail
	autoSpawn bool
}

func (d *fakeDialer) Open(cfg Config, emit func(ConnEvent)) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		d.attempts = append(d.attempts, &fakeAttempt{cfg: cfg, emit: emit})
		return nil, errors.New("connect ECONNREFUSED 127.0.0.1:25565")
	}
	a := &fakeAttempt{cfg: cfg, conn: &fakeConn{}, emit: emit}
	d.attempts = append(d.attempts, a)
	if d.autoSpawn {
		go emit(ConnEvent{Kind: ConnSpawned})
	}
	return a.conn, nil
}

func (d *fakeDialer) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

func (d *fakeDialer) Last() *fakeAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.attempts) == 0 {
		return nil
	}
	return d.attempts[len(d.attempts)-1]
}

// LiveConns counts connections that were opened and not yet closed.
func (d *fakeDialer) LiveConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, a := range d.attempts {
		if a.conn != nil && !a.conn.Closed() {
			n++
		}
	}
	return n
}

var testConfig = Config{
	Host:             "localhost",
	Port:             25565,
	Username:         "MineBot",
	HeartbeatMessage: "still here",
}

func newTestManager(t *testing.T, d Dialer) (*Manager, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	m := NewManager(d, clk)
	m.beats.pick = func(int) int { return 0 }

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-m.closed
	})
	return m, clk
}

// settle waits until every operation queued so far has run.
func settle(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.do(func() {}); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

// deliver emits ev on attempt a and waits for the manager to process it.
func deliver(t *testing.T, m *Manager, a *fakeAttempt, ev ConnEvent) {
	t.Helper()
	a.emit(ev)
	settle(t, m)
}

// advance moves the clock and waits for the resulting operations.
func advance(t *testing.T, m *Manager, clk *fakeClock, d time.Duration) {
	t.Helper()
	clk.Advance(d)
	settle(t, m)
}
