package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of the single managed session.
type Status int32

const (
	Offline Status = iota
	Connecting
	Online
)

var statusNames = map[Status]string{
	Offline:    "offline",
	Connecting: "connecting",
	Online:     "online",
}

var statusFromName = map[string]Status{
	"offline":    Offline,
	"connecting": Connecting,
	"online":     Online,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := statusFromName[name]
	if !ok {
		return fmt.Errorf("unknown status %q", name)
	}
	*s = v
	return nil
}

// Snapshot is a point-in-time copy of the manager's state, safe to retain
// and serialize. Pollers read it without touching the actor.
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
