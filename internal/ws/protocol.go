package ws

import (
	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
	"github.com/sudoapty-afk/glowing-barnacle/internal/trigger"
)

type MessageType string

const (
	MsgStatus MessageType = "status"
	MsgEvent  MessageType = "event"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusPayload = session.Snapshot

type EventPayload = session.Event

// StartRequest is the body of POST /api/start. Blank fields take the bot
// defaults.
type StartRequest struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Username         string `json:"username"`
	HeartbeatMessage string `json:"heartbeatMessage"`
}

func (r StartRequest) Config() session.Config {
	return session.Config{
		Host:             r.Host,
		Port:             r.Port,
		Username:         r.Username,
		HeartbeatMessage: r.HeartbeatMessage,
	}
}

type ChatRequest struct {
	Message string `json:"message"`
}

type TriggerRequest = trigger.Input

type ErrorResponse struct {
	Error string `json:"error"`
}
