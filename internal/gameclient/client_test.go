package gameclient

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// gameServer runs handle for every websocket connection on /ws.
func gameServer(t *testing.T, handle func(*websocket.Conn)) (session.Config, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	return configFor(t, srv.URL), srv.Close
}

func configFor(t *testing.T, rawURL string) session.Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(rawURL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return session.Config{Host: host, Port: port, Username: "MineBot"}
}

func readClient(t *testing.T, conn *websocket.Conn) clientMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("server read: %v", err)
		return clientMessage{}
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Errorf("server decode: %v", err)
	}
	return msg
}

func waitEvent(t *testing.T, events <-chan session.ConnEvent) session.ConnEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for connection event")
		return session.ConnEvent{}
	}
}

func open(t *testing.T, cfg session.Config) (session.Conn, <-chan session.ConnEvent) {
	t.Helper()
	events := make(chan session.ConnEvent, 8)
	d := NewDialer(Options{PingInterval: time.Second})
	conn, err := d.Open(cfg, func(ev session.ConnEvent) { events <- ev })
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, events
}

func TestJoinSpawnAndChat(t *testing.T) {
	got := make(chan clientMessage, 8)
	cfg, stop := gameServer(t, func(conn *websocket.Conn) {
		got <- readClient(t, conn) // join
		conn.WriteJSON(serverMessage{Ver: 1, Type: MsgState})
		conn.WriteJSON(serverMessage{Ver: 1, Type: MsgState}) // second state is not a respawn
		got <- readClient(t, conn)                           // chat
		got <- readClient(t, conn)                           // input on
		got <- readClient(t, conn)                           // input off
	})
	defer stop()

	conn, events := open(t, cfg)

	join := <-got
	if join.Type != MsgJoin || join.Name != "MineBot" {
		t.Errorf("join = %+v", join)
	}
	if ev := waitEvent(t, events); ev.Kind != session.ConnSpawned {
		t.Fatalf("first event = %v, want spawned", ev.Kind)
	}

	if err := conn.Chat("hello world"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if err := conn.SetMovement(session.Left, true); err != nil {
		t.Fatalf("SetMovement: %v", err)
	}
	if err := conn.SetMovement(session.Left, false); err != nil {
		t.Fatalf("SetMovement: %v", err)
	}

	chat := <-got
	if chat.Type != MsgChat || chat.Text != "hello world" {
		t.Errorf("chat = %+v", chat)
	}
	on := <-got
	if on.Type != MsgInput || on.DX != -1 || on.DY != 0 || on.Facing != "left" {
		t.Errorf("input on = %+v", on)
	}
	off := <-got
	if off.DX != 0 || off.DY != 0 || off.Facing != "left" {
		t.Errorf("input off = %+v", off)
	}

	select {
	case ev := <-events:
		if ev.Kind == session.ConnSpawned {
			t.Error("second state produced another spawn")
		}
	default:
	}
}

func TestKickMessage(t *testing.T) {
	cfg, stop := gameServer(t, func(conn *websocket.Conn) {
		readClient(t, conn)
		conn.WriteJSON(serverMessage{Type: MsgJoined})
		conn.WriteJSON(serverMessage{Type: MsgKick, Reason: "You are banned"})
		time.Sleep(100 * time.Millisecond)
	})
	defer stop()

	_, events := open(t, cfg)
	waitEvent(t, events) // spawned
	ev := waitEvent(t, events)
	if ev.Kind != session.ConnKicked || ev.Reason != "You are banned" {
		t.Errorf("event = %+v, want kicked with reason", ev)
	}
}

func TestPolicyCloseIsKick(t *testing.T) {
	cfg, stop := gameServer(t, func(conn *websocket.Conn) {
		readClient(t, conn)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "duplicate login")
		conn.WriteMessage(websocket.CloseMessage, msg)
		time.Sleep(100 * time.Millisecond)
	})
	defer stop()

	_, events := open(t, cfg)
	ev := waitEvent(t, events)
	if ev.Kind != session.ConnKicked || ev.Reason != "duplicate login" {
		t.Errorf("event = %+v, want kicked(duplicate login)", ev)
	}
}

func TestServerCloseIsEnd(t *testing.T) {
	cfg, stop := gameServer(t, func(conn *websocket.Conn) {
		readClient(t, conn)
		conn.WriteJSON(serverMessage{Type: MsgState})
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server restarting")
		conn.WriteMessage(websocket.CloseMessage, msg)
		time.Sleep(100 * time.Millisecond)
	})
	defer stop()

	_, events := open(t, cfg)
	waitEvent(t, events)
	ev := waitEvent(t, events)
	if ev.Kind != session.ConnEnded || ev.Reason != "server restarting" {
		t.Errorf("event = %+v, want ended(server restarting)", ev)
	}
}

func TestHeartbeatEcho(t *testing.T) {
	echo := make(chan clientMessage, 1)
	cfg, stop := gameServer(t, func(conn *websocket.Conn) {
		readClient(t, conn)
		conn.WriteJSON(serverMessage{Type: MsgHeartbeat, ServerTime: 12345})
		echo <- readClient(t, conn)
	})
	defer stop()

	open(t, cfg)
	select {
	case msg := <-echo:
		if msg.Type != MsgHeartbeat || msg.SentAt != 12345 || msg.ClientTime == 0 {
			t.Errorf("heartbeat echo = %+v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no heartbeat echo")
	}
}

func TestDialFailureIsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, events := open(t, configFor(t, "http://"+addr))
	ev := waitEvent(t, events)
	if ev.Kind != session.ConnErrored || ev.Reason == "" {
		t.Errorf("event = %+v, want errored with reason", ev)
	}
}

func TestCloseSuppressesEvents(t *testing.T) {
	closed := make(chan struct{})
	cfg, stop := gameServer(t, func(conn *websocket.Conn) {
		readClient(t, conn)
		conn.WriteJSON(serverMessage{Type: MsgState})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			close(closed)
		}
	})
	defer stop()

	conn, events := open(t, cfg)
	waitEvent(t, events)
	conn.Close()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not see a normal close")
	}
	select {
	case ev := <-events:
		t.Errorf("event after Close: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
	if err := conn.Chat("late"); err != ErrClosed {
		t.Errorf("Chat after Close = %v, want ErrClosed", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	d := NewDialer(Options{})
	if _, err := d.Open(session.Config{}, func(session.ConnEvent) {}); err == nil {
		t.Error("Open with empty config should fail")
	}
}

func TestURL(t *testing.T) {
	d := NewDialer(Options{Path: "/play"})
	got := d.URL(session.Config{Host: "mc.local", Port: 25565, Username: "Mine Bot"})
	want := "ws://mc.local:25565/play?name=Mine+Bot"
	if got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestInputMessage(t *testing.T) {
	tests := []struct {
		dir    session.Direction
		dx, dy float64
		facing string
	}{
		{session.Forward, 0, -1, "up"},
		{session.Back, 0, 1, "down"},
		{session.Left, -1, 0, "left"},
		{session.Right, 1, 0, "right"},
	}
	for _, tt := range tests {
		msg, ok := inputMessage(tt.dir, true)
		if !ok || msg.DX != tt.dx || msg.DY != tt.dy || msg.Facing != tt.facing {
			t.Errorf("inputMessage(%s, true) = %+v", tt.dir, msg)
		}
	}
	if _, ok := inputMessage("up", true); ok {
		t.Error("unknown direction accepted")
	}
}
