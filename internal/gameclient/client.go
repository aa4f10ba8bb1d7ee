// Package gameclient connects the session manager to a game server over a
// JSON websocket protocol.
package gameclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

const sendBufferSize = 64

var (
	// ErrQueueFull is returned when the outbound send queue has no room.
	ErrQueueFull = errors.New("send queue full")
	// ErrClosed is returned by sends once the connection has shut down.
	ErrClosed = errors.New("connection closed")
)

// Options configures a Dialer. Zero fields take defaults.
type Options struct {
	Path             string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = "/ws"
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// Dialer opens websocket game connections. It implements session.Dialer.
type Dialer struct {
	opts Options
	ws   *websocket.Dialer
}

// NewDialer returns a Dialer using opts, with unset fields defaulted.
func NewDialer(opts Options) *Dialer {
	opts = opts.withDefaults()
	return &Dialer{
		opts: opts,
		ws: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
	}
}

// URL returns the websocket endpoint for cfg.
func (d *Dialer) URL(cfg session.Config) string {
	u := url.URL{
		Scheme:   "ws",
		Host:     cfg.Addr(),
		Path:     d.opts.Path,
		RawQuery: url.Values{"name": {cfg.Username}}.Encode(),
	}
	return u.String()
}

// Open starts connecting in the background and returns immediately. The
// outcome arrives through emit.
func (d *Dialer) Open(cfg session.Config, emit func(session.ConnEvent)) (session.Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		opts:   d.opts,
		name:   cfg.Username,
		emit:   emit,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.run(d.ws, d.URL(cfg))
	return c, nil
}

// Conn is one websocket game connection.
type Conn struct {
	opts Options
	name string
	emit func(session.ConnEvent)
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	ws *websocket.Conn

	spawned atomic.Bool
	ended   atomic.Bool
}

func (c *Conn) run(d *websocket.Dialer, endpoint string) {
	ws, _, err := d.DialContext(c.ctx, endpoint, nil)
	if err != nil {
		c.finish(session.ConnErrored, err.Error())
		return
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()

	join, _ := json.Marshal(clientMessage{Ver: protocolVersion, Type: MsgJoin, Name: c.name})
	ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, join); err != nil {
		c.finish(session.ConnErrored, fmt.Sprintf("join: %v", err))
		return
	}

	go c.writePump(ws)
	c.readLoop(ws)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	pongWait := 2 * c.opts.PingInterval
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	ws.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("gameclient: bad message: %v", err)
			continue
		}

		switch msg.Type {
		case MsgJoined, MsgState:
			if c.spawned.CompareAndSwap(false, true) {
				c.emit(session.ConnEvent{Kind: session.ConnSpawned})
			}
		case MsgHeartbeat:
			c.enqueue(clientMessage{
				Ver:        protocolVersion,
				Type:       MsgHeartbeat,
				SentAt:     msg.ServerTime,
				ClientTime: time.Now().UnixMilli(),
			})
		case MsgKick:
			c.finish(session.ConnKicked, msg.Reason)
			return
		case MsgError:
			log.Printf("gameclient: server error: %s", msg.Reason)
		}
	}
}

func (c *Conn) readFailed(err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.ClosePolicyViolation {
			c.finish(session.ConnKicked, ce.Text)
			return
		}
		reason := ce.Text
		if reason == "" {
			reason = fmt.Sprintf("closed (%d)", ce.Code)
		}
		c.finish(session.ConnEnded, reason)
		return
	}
	c.finish(session.ConnEnded, err.Error())
}

func (c *Conn) writePump(ws *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
			ws.Close()
			return
		case data := <-c.send:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.finish(session.ConnErrored, fmt.Sprintf("write: %v", err))
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.finish(session.ConnErrored, fmt.Sprintf("ping: %v", err))
				return
			}
		}
	}
}

// finish reports the first terminal event, unless the connection was closed
// by its owner, and releases the socket.
func (c *Conn) finish(kind session.ConnEventKind, reason string) {
	if c.ended.CompareAndSwap(false, true) && c.ctx.Err() == nil {
		if strings.TrimSpace(reason) == "" {
			reason = kind.String()
		}
		c.emit(session.ConnEvent{Kind: kind, Reason: reason})
	}
	c.cancel()
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

func (c *Conn) enqueue(msg clientMessage) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Chat queues a chat line.
func (c *Conn) Chat(message string) error {
	return c.enqueue(clientMessage{Ver: protocolVersion, Type: MsgChat, Text: message})
}

// SetMovement queues an input update pressing or releasing dir.
func (c *Conn) SetMovement(dir session.Direction, on bool) error {
	msg, ok := inputMessage(dir, on)
	if !ok {
		return fmt.Errorf("unknown direction %q", dir)
	}
	return c.enqueue(msg)
}

// Close stops the connection. No further events are emitted.
func (c *Conn) Close() error {
	c.cancel()
	return nil
}
