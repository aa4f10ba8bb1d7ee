package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// completionServer answers chat completion requests with content and
// records the request bodies.
type completionServer struct {
	mu       sync.Mutex
	content  string
	status   int
	requests []map[string]any
}

func (s *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	json.Unmarshal(body, &req)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	content, status := s.content, s.status
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func newTestClient(t *testing.T, s *completionServer) *Client {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	c, err := New(Config{Model: "test-model", BaseURL: srv.URL + "/v1/", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

var steve = Input{
	EventDescription:  `A new player named "Steve" has joined the server for the first time.`,
	AvailableMessages: []string{"Welcome to the server!", "Enjoy your stay!", " "},
}

func TestDecideSend(t *testing.T) {
	s := &completionServer{content: `{"shouldSendMessage": true, "messageContent": "Welcome to the server!"}`}
	c := newTestClient(t, s)

	out, err := c.Decide(context.Background(), steve)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !out.ShouldSendMessage || out.MessageContent != "Welcome to the server!" {
		t.Errorf("Decide() = %+v", out)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(s.requests))
	}
	req := s.requests[0]
	if req["model"] != "test-model" {
		t.Errorf("model = %v", req["model"])
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", req["messages"])
	}
	user, _ := json.Marshal(msgs[1])
	for _, want := range []string{"Steve", "- Welcome to the server!", "- Enjoy your stay!"} {
		if !strings.Contains(string(user), want) {
			t.Errorf("prompt missing %q: %s", want, user)
		}
	}
}

func TestDecideCodeFence(t *testing.T) {
	s := &completionServer{content: "```json\n{\"shouldSendMessage\": true, \"messageContent\": \"Enjoy your stay!\"}\n```"}
	c := newTestClient(t, s)

	out, err := c.Decide(context.Background(), steve)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if out.MessageContent != "Enjoy your stay!" {
		t.Errorf("Decide() = %+v", out)
	}
}

func TestDecideBadResponse(t *testing.T) {
	s := &completionServer{content: "I think you should say hi"}
	c := newTestClient(t, s)

	if _, err := c.Decide(context.Background(), steve); !errors.Is(err, ErrBadResponse) {
		t.Errorf("Decide() error = %v, want ErrBadResponse", err)
	}
}

func TestDecideServerError(t *testing.T) {
	s := &completionServer{status: http.StatusBadRequest}
	c := newTestClient(t, s)

	if _, err := c.Decide(context.Background(), steve); err == nil {
		t.Error("Decide() should fail on API error")
	}
}

func TestDecideValidation(t *testing.T) {
	s := &completionServer{content: `{}`}
	c := newTestClient(t, s)

	if _, err := c.Decide(context.Background(), Input{AvailableMessages: []string{"hi"}}); !errors.Is(err, ErrNoEvent) {
		t.Errorf("empty event error = %v, want ErrNoEvent", err)
	}
	if _, err := c.Decide(context.Background(), Input{EventDescription: "x", AvailableMessages: []string{"", "  "}}); !errors.Is(err, ErrNoMessages) {
		t.Errorf("blank messages error = %v, want ErrNoMessages", err)
	}
	if len(s.requests) != 0 {
		t.Errorf("invalid input reached the API: %d requests", len(s.requests))
	}
}

func TestNewDisabled(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("New(empty) = %v, want ErrDisabled", err)
	}
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Output
		wantErr bool
	}{
		{"plain", `{"shouldSendMessage":true,"messageContent":"hi"}`, Output{true, "hi"}, false},
		{"no send clears content", `{"shouldSendMessage":false,"messageContent":"hi"}`, Output{}, false},
		{"send without content", `{"shouldSendMessage":true,"messageContent":"  "}`, Output{}, false},
		{"bare fence", "```\n{\"shouldSendMessage\":false}\n```", Output{}, false},
		{"not json", "nope", Output{}, true},
	}
	for _, tt := range tests {
		got, err := parseOutput(tt.content)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: parseOutput() = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

type fakeDecider struct {
	out Output
	err error
}

func (f fakeDecider) Decide(context.Context, Input) (Output, error) { return f.out, f.err }

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendChat(msg string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestAct(t *testing.T) {
	s := &fakeSender{}
	res, err := Act(context.Background(), fakeDecider{out: Output{true, "Enjoy your stay!"}}, s, steve)
	if err != nil || !res.Sent || len(s.sent) != 1 || s.sent[0] != "Enjoy your stay!" {
		t.Errorf("Act() = %+v, %v; sent %v", res, err, s.sent)
	}

	s = &fakeSender{}
	res, _ = Act(context.Background(), fakeDecider{out: Output{}}, s, steve)
	if res.Sent || len(s.sent) != 0 {
		t.Errorf("Act() sent although the decision was no: %+v", res)
	}

	s = &fakeSender{err: errors.New("bot is not online")}
	res, err = Act(context.Background(), fakeDecider{out: Output{true, "Enjoy your stay!"}}, s, steve)
	if err != nil || res.Sent || res.SendError != "bot is not online" {
		t.Errorf("Act() with failing sender = %+v, %v", res, err)
	}

	boom := errors.New("boom")
	if _, err := Act(context.Background(), fakeDecider{err: boom}, &fakeSender{}, steve); !errors.Is(err, boom) {
		t.Errorf("Act() decider error = %v", err)
	}
}

func TestActRefusesUnofferedMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invented line", "Give me your diamonds"},
		{"near miss", "welcome to the server!"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{}
			res, err := Act(context.Background(), fakeDecider{out: Output{true, tt.content}}, s, steve)
			if err != nil {
				t.Fatalf("Act() error: %v", err)
			}
			if len(s.sent) != 0 || res.Sent {
				t.Errorf("Act() sent %v for an unoffered line", s.sent)
			}
			if res.ShouldSendMessage || res.SendError != ErrUnknownMessage.Error() {
				t.Errorf("Act() = %+v, want refusal", res)
			}
			if res.MessageContent != tt.content {
				t.Errorf("MessageContent = %q, want the model's reply kept for display", res.MessageContent)
			}
		})
	}
}
