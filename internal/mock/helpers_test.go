package mock

import (
	"context"
	"testing"
	"time"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

func contextWithCleanup(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx, cancel
}

// waitStatus returns the first status event reporting want.
func waitStatus(t *testing.T, events <-chan session.Event, want session.Status) session.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == session.EventStatus && ev.Status == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v", want)
			return session.Event{}
		}
	}
}
