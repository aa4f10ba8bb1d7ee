package gameclient

import "github.com/sudoapty-afk/glowing-barnacle/internal/session"

const protocolVersion = 1

// Server → client message types.
const (
	MsgJoined    = "joined"
	MsgState     = "state"
	MsgHeartbeat = "heartbeat"
	MsgKick      = "kick"
	MsgError     = "error"
)

// Client → server message types.
const (
	MsgJoin  = "join"
	MsgChat  = "chat"
	MsgInput = "input"
)

type clientMessage struct {
	Ver        int     `json:"ver"`
	Type       string  `json:"type"`
	Name       string  `json:"name,omitempty"`
	Text       string  `json:"text,omitempty"`
	DX         float64 `json:"dx"`
	DY         float64 `json:"dy"`
	Facing     string  `json:"facing,omitempty"`
	SentAt     int64   `json:"sentAt,omitempty"`
	ClientTime int64   `json:"clientTime,omitempty"`
}

type serverMessage struct {
	Ver        int    `json:"ver,omitempty"`
	Type       string `json:"type"`
	Reason     string `json:"reason,omitempty"`
	ServerTime int64  `json:"serverTime,omitempty"`
}

type vector struct {
	dx, dy float64
	facing string
}

var directionVectors = map[session.Direction]vector{
	session.Forward: {0, -1, "up"},
	session.Back:    {0, 1, "down"},
	session.Left:    {-1, 0, "left"},
	session.Right:   {1, 0, "right"},
}

func inputMessage(dir session.Direction, on bool) (clientMessage, bool) {
	v, ok := directionVectors[dir]
	if !ok {
		return clientMessage{}, false
	}
	msg := clientMessage{Ver: protocolVersion, Type: MsgInput, Facing: v.facing}
	if on {
		msg.DX, msg.DY = v.dx, v.dy
	}
	return msg, true
}
