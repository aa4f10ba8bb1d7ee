// Package client provides WebSocket and HTTP clients for the minebot control
// API. Types mirror the backend wire protocol without importing backend
// packages.
package client

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgStatus MessageType = "status"
	MsgEvent  MessageType = "event"
)

// WSMessage is the envelope for all WebSocket messages.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Status is the bot's session lifecycle state.
type Status string

const (
	StatusOffline    Status = "offline"
	StatusConnecting Status = "connecting"
	StatusOnline     Status = "online"
)

// Snapshot mirrors session.Snapshot.
type Snapshot struct {
	Status           Status    `json:"status"`
	Reconnect        bool      `json:"reconnect"`
	RetryPending     bool      `json:"retryPending"`
	Host             string    `json:"host,omitempty"`
	Port             int       `json:"port,omitempty"`
	Username         string    `json:"username,omitempty"`
	HeartbeatMessage string    `json:"heartbeatMessage,omitempty"`
	Attempts         uint64    `json:"attempts"`
	LastError        string    `json:"lastError,omitempty"`
	Since            time.Time `json:"since"`
}

// Event mirrors session.Event as pushed over the WebSocket.
type Event struct {
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Cause     string    `json:"cause,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	Heartbeat bool      `json:"heartbeat,omitempty"`
	Attempt   uint64    `json:"attempt"`
	At        time.Time `json:"at"`
}

// Entry mirrors journal.Entry as returned by /api/events.
type Entry struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Cause     string    `json:"cause,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	Heartbeat bool      `json:"heartbeat,omitempty"`
	Attempt   uint64    `json:"attempt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event converts a journal entry into the live event shape.
func (e Entry) Event() Event {
	return Event{
		Type:      e.Type,
		Status:    e.Status,
		Cause:     e.Cause,
		Reason:    e.Reason,
		Message:   e.Message,
		Heartbeat: e.Heartbeat,
		Attempt:   e.Attempt,
		At:        e.CreatedAt,
	}
}

// StartRequest is the body of POST /api/start. Blank fields take the server's
// bot defaults.
type StartRequest struct {
	Host             string `json:"host,omitempty"`
	Port             int    `json:"port,omitempty"`
	Username         string `json:"username,omitempty"`
	HeartbeatMessage string `json:"heartbeatMessage,omitempty"`
}

// ChatResult mirrors control.ChatResult.
type ChatResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Stats mirrors stats.Stats.
type Stats struct {
	ConnectAttempts  int            `json:"connectAttempts"`
	Spawns           int            `json:"spawns"`
	Disconnects      map[string]int `json:"disconnects"`
	Stops            int            `json:"stops"`
	RetriesArmed     int            `json:"retriesArmed"`
	ChatsSent        int            `json:"chatsSent"`
	Heartbeats       int            `json:"heartbeats"`
	TotalOnlineSec   float64        `json:"totalOnlineSec"`
	LongestOnlineSec float64        `json:"longestOnlineSec"`
	LastOnline       time.Time      `json:"lastOnline,omitempty"`
}
