package session

// ConnEventKind classifies events emitted by a game connection.
type ConnEventKind int

const (
	ConnSpawned ConnEventKind = iota // player is in the world and ready
	ConnErrored                      // transport or protocol failure
	ConnEnded                        // server closed the connection
	ConnKicked                       // server removed the player
)

var connEventNames = map[ConnEventKind]string{
	ConnSpawned: "spawned",
	ConnErrored: "errored",
	ConnEnded:   "ended",
	ConnKicked:  "kicked",
}

func (k ConnEventKind) String() string {
	if n, ok := connEventNames[k]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether the event ends the connection attempt.
func (k ConnEventKind) Terminal() bool {
	return k == ConnErrored || k == ConnEnded || k == ConnKicked
}

// ConnEvent is a lifecycle notification from a game connection.
type ConnEvent struct {
	Kind   ConnEventKind
	Reason string
}

// Direction is a cardinal movement control.
type Direction string

const (
	Forward Direction = "forward"
	Back    Direction = "back"
	Left    Direction = "left"
	Right   Direction = "right"
)

// Directions lists the movement controls in a stable order.
var Directions = []Direction{Forward, Back, Left, Right}

// Dialer opens game connections. Open must return without waiting on the
// network: the outcome of the attempt is reported later through emit. emit
// may be called from any goroutine, but not from inside Open itself.
type Dialer interface {
	Open(cfg Config, emit func(ConnEvent)) (Conn, error)
}

// Conn is a live game connection. Chat and SetMovement only enqueue the
// command; they must not wait for the server.
type Conn interface {
	Chat(message string) error
	SetMovement(dir Direction, on bool) error
	Close() error
}
