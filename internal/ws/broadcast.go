package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

const writeWait = 10 * time.Second

// ErrTooManyConnections is returned by AddClient when the client limit is
// reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

// SnapshotSource yields the unfiltered session snapshot.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster pushes status snapshots and lifecycle events to websocket
// clients. Status pushes are coalesced over the throttle window, and a full
// snapshot goes out on every snapshot tick.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	source   SnapshotSource
	privacy  *session.PrivacyFilter
	maxConns int

	throttle       time.Duration
	snapshotTicker *time.Ticker
	done           chan struct{}
	stopOnce       sync.Once

	flushMu    sync.Mutex
	flushTimer *time.Timer
}

// NewBroadcaster starts the periodic snapshot loop. maxConns of zero means
// no limit. Call Stop to release it.
func NewBroadcaster(source SnapshotSource, privacy *session.PrivacyFilter, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	if privacy == nil {
		privacy = &session.PrivacyFilter{}
	}
	if snapshotInterval <= 0 {
		snapshotInterval = 5 * time.Second
	}
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		source:         source,
		privacy:        privacy,
		maxConns:       maxConns,
		throttle:       throttle,
		snapshotTicker: time.NewTicker(snapshotInterval),
		done:           make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

// AddClient registers conn and queues the current status for it.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{conn: conn, b: b, send: make(chan []byte, 64)}
	if data, err := json.Marshal(b.statusMessage()); err == nil {
		c.send <- data
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// QueueStatus schedules a status push at the end of the throttle window.
// Calls inside one window collapse into a single push of the latest state.
func (b *Broadcaster) QueueStatus() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	b.flushTimer = nil
	b.flushMu.Unlock()
	b.broadcast(b.statusMessage())
}

// PublishEvent sends ev to every client right away.
func (b *Broadcaster) PublishEvent(ev session.Event) {
	host := ev.Host
	if host == "" {
		host = b.source.Snapshot().Host
	}
	ev = b.privacy.ApplyEvent(ev, host)
	b.broadcast(WSMessage{Type: MsgEvent, Payload: ev})
}

// Consume forwards session events until ctx is done or events is closed.
func (b *Broadcaster) Consume(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.PublishEvent(ev)
			if ev.Type == session.EventStatus {
				b.QueueStatus()
			}
		}
	}
}

func (b *Broadcaster) statusMessage() WSMessage {
	return WSMessage{Type: MsgStatus, Payload: b.privacy.Apply(b.source.Snapshot())}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.statusMessage())
		}
	}
}

// Stop ends the snapshot loop and any pending flush.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.done)
		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()
	})
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Printf("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}
