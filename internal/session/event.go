package session

import "time"

// EventType classifies session lifecycle events.
type EventType int

const (
	EventStatus         EventType = iota // status transition
	EventChat                            // chat line handed to the adapter
	EventRetryScheduled                  // reconnect timer armed
)

var eventTypeNames = map[EventType]string{
	EventStatus:         "status",
	EventChat:           "chat",
	EventRetryScheduled: "retry_scheduled",
}

func (t EventType) String() string {
	if n, ok := eventTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Cause explains why a session went Offline.
type Cause string

const (
	CauseNone          Cause = ""
	CauseError         Cause = "error"
	CauseEnd           Cause = "end"
	CauseKick          Cause = "kick"
	CauseOpenFailed    Cause = "open_failed"
	CauseConfigMissing Cause = "config_missing"
	CauseStop          Cause = "stop"
)

func causeFor(kind ConnEventKind) Cause {
	switch kind {
	case ConnErrored:
		return CauseError
	case ConnEnded:
		return CauseEnd
	case ConnKicked:
		return CauseKick
	}
	return CauseNone
}

// Event carries a session lifecycle notification to observers.
type Event struct {
	Type      EventType `json:"type"`
	Status    Status    `json:"status"`              // status after the event
	Cause     Cause     `json:"cause,omitempty"`     // set on transitions to Offline
	Reason    string    `json:"reason,omitempty"`    // adapter-supplied detail
	Message   string    `json:"message,omitempty"`   // chat text for EventChat
	Heartbeat bool      `json:"heartbeat,omitempty"` // EventChat originated from the heartbeat
	Attempt   uint64    `json:"attempt"`
	At        time.Time `json:"at"`
	Host      string    `json:"-"` // server the session targeted when the event fired
}
