// Package mock simulates a game server so the service can run without one.
package mock

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

var ErrClosed = errors.New("mock connection closed")

// Pattern is the scripted behaviour of one simulated connection.
type Pattern string

const (
	PatternRefused Pattern = "refused" // connect fails after the spawn delay
	PatternSteady  Pattern = "steady"  // spawns, then the server closes it
	PatternKick    Pattern = "kick"    // spawns, then the player is kicked
	PatternFlaky   Pattern = "flaky"   // spawns, then the socket errors
)

var kickReasons = []string{
	"You have been idle for too long",
	"Server is restarting",
	"Flying is not enabled on this server",
}

type Options struct {
	SpawnDelay  time.Duration
	MaxLifetime time.Duration
	FailRate    float64
	Seed        int64
	Clock       session.Clock
}

// Generator is a session.Dialer whose connections follow randomly chosen
// patterns. Every attempt logs what it does so a run is easy to follow.
type Generator struct {
	opts  Options
	clock session.Clock

	mu       sync.Mutex
	rng      *rand.Rand
	attempts int
	pick     func() Pattern
}

func NewGenerator(opts Options) *Generator {
	if opts.Clock == nil {
		opts.Clock = session.SystemClock()
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = 3 * time.Minute
	}
	g := &Generator{
		opts:  opts,
		clock: opts.Clock,
		rng:   rand.New(rand.NewSource(opts.Seed)),
	}
	g.pick = g.randomPattern
	return g
}

func (g *Generator) randomPattern() Pattern {
	if g.rng.Float64() < g.opts.FailRate {
		return PatternRefused
	}
	switch g.rng.Intn(4) {
	case 0:
		return PatternKick
	case 1:
		return PatternFlaky
	}
	return PatternSteady
}

// Attempts returns how many connections have been opened.
func (g *Generator) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// Open implements session.Dialer.
func (g *Generator) Open(cfg session.Config, emit func(session.ConnEvent)) (session.Conn, error) {
	g.mu.Lock()
	g.attempts++
	n := g.attempts
	pattern := g.pick()
	lifetime := g.opts.MaxLifetime/2 + time.Duration(g.rng.Int63n(int64(g.opts.MaxLifetime/2)+1))
	reason := kickReasons[g.rng.Intn(len(kickReasons))]
	g.mu.Unlock()

	c := &Conn{name: cfg.Username, emit: emit}
	log.Printf("mock: attempt %d to %s as %s follows pattern %q", n, cfg.Addr(), cfg.Username, pattern)

	switch pattern {
	case PatternRefused:
		c.after(g.clock, g.opts.SpawnDelay, session.ConnEvent{
			Kind:   session.ConnErrored,
			Reason: fmt.Sprintf("connect ECONNREFUSED %s", cfg.Addr()),
		})
	default:
		c.after(g.clock, g.opts.SpawnDelay, session.ConnEvent{Kind: session.ConnSpawned})
		end := session.ConnEvent{Kind: session.ConnEnded, Reason: "socketClosed"}
		switch pattern {
		case PatternKick:
			end = session.ConnEvent{Kind: session.ConnKicked, Reason: reason}
		case PatternFlaky:
			end = session.ConnEvent{Kind: session.ConnErrored, Reason: "read ECONNRESET"}
		}
		c.after(g.clock, g.opts.SpawnDelay+lifetime, end)
	}
	return c, nil
}

// Conn is a simulated connection. Chat and movement are logged.
type Conn struct {
	name string
	emit func(session.ConnEvent)

	mu     sync.Mutex
	timers []session.Timer
	closed bool
	chats  []string
	moves  int
}

func (c *Conn) after(clock session.Clock, d time.Duration, ev session.ConnEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, clock.AfterFunc(d, func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.emit(ev)
		}
	}))
}

func (c *Conn) Chat(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.chats = append(c.chats, message)
	log.Printf("mock: <%s> %s", c.name, message)
	return nil
}

func (c *Conn) SetMovement(dir session.Direction, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if on {
		c.moves++
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	return nil
}

// Chats returns the chat lines sent so far.
func (c *Conn) Chats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chats...)
}
