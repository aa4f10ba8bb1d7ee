package session

import (
	"log"
	"time"
)

const (
	// HeartbeatInterval is the period between heartbeat chat lines.
	HeartbeatInterval = 20 * time.Second
	// MoveDuration is how long a heartbeat movement key is held.
	MoveDuration = time.Second
)

// heartbeat owns the tick and movement-release timers of the current
// connection. Like reconnectScheduler it is token-guarded and only used from
// the Run goroutine; stop bumps the token so fires already in the queue are
// ignored.
type heartbeat struct {
	clock    Clock
	interval time.Duration
	hold     time.Duration
	pick     func(n int) int

	armed   bool
	token   uint64
	next    Timer
	release Timer
}

func (h *heartbeat) start(fire func(token uint64)) {
	h.stop()
	h.armed = true
	h.schedule(fire)
}

func (h *heartbeat) schedule(fire func(token uint64)) {
	tok := h.token
	h.next = h.clock.AfterFunc(h.interval, func() { fire(tok) })
}

func (h *heartbeat) holdFor(fire func(token uint64)) {
	tok := h.token
	h.release = h.clock.AfterFunc(h.hold, func() { fire(tok) })
}

func (h *heartbeat) claim(token uint64) bool {
	return h.armed && token == h.token
}

func (h *heartbeat) stop() {
	h.token++
	h.armed = false
	if h.next != nil {
		h.next.Stop()
		h.next = nil
	}
	if h.release != nil {
		h.release.Stop()
		h.release = nil
	}
}

// beat sends the heartbeat line and presses a random direction key.
// Adapter failures are logged; the adapter's own terminal events drive
// teardown.
func (m *Manager) beat(token uint64) {
	if !m.beats.claim(token) || m.conn == nil || m.conn.conn == nil {
		return
	}
	conn := m.conn.conn
	msg := m.cfg.HeartbeatMessage

	if err := conn.Chat(msg); err != nil {
		log.Printf("session: heartbeat chat failed: %v", err)
	} else {
		m.emit(Event{Type: EventChat, Message: msg, Heartbeat: true})
	}

	dir := Directions[m.beats.pick(len(Directions))]
	if err := conn.SetMovement(dir, true); err != nil {
		log.Printf("session: heartbeat move %s failed: %v", dir, err)
	} else {
		m.beats.holdFor(func(tok uint64) {
			m.post(func() { m.releaseMove(tok, dir) })
		})
	}

	m.beats.schedule(m.heartbeatFire)
}

func (m *Manager) releaseMove(token uint64, dir Direction) {
	if !m.beats.claim(token) || m.conn == nil || m.conn.conn == nil {
		return
	}
	m.beats.release = nil
	if err := m.conn.conn.SetMovement(dir, false); err != nil {
		log.Printf("session: heartbeat release %s failed: %v", dir, err)
	}
}

func (m *Manager) heartbeatFire(token uint64) {
	m.post(func() { m.beat(token) })
}
