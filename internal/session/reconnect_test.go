package session

import (
	"testing"
	"time"
)

func TestReconnectSchedulerFiresOnce(t *testing.T) {
	clk := newFakeClock()
	s := &reconnectScheduler{clock: clk, delay: ReconnectDelay}

	var fired []uint64
	s.arm(func(tok uint64) { fired = append(fired, tok) })
	if !s.pending() {
		t.Fatal("not pending after arm")
	}

	clk.Advance(ReconnectDelay - time.Millisecond)
	if len(fired) != 0 {
		t.Fatal("fired before delay")
	}
	clk.Advance(time.Millisecond)
	if len(fired) != 1 {
		t.Fatalf("fired %d times, want 1", len(fired))
	}
	if !s.claim(fired[0]) {
		t.Error("claim of current token failed")
	}
	if s.pending() {
		t.Error("still pending after claim")
	}
	if s.claim(fired[0]) {
		t.Error("token claimed twice")
	}
}

func TestReconnectSchedulerArmReplaces(t *testing.T) {
	clk := newFakeClock()
	s := &reconnectScheduler{clock: clk, delay: ReconnectDelay}

	var fired []uint64
	fire := func(tok uint64) { fired = append(fired, tok) }
	s.arm(fire)
	clk.Advance(3 * time.Second)
	s.arm(fire)
	clk.Advance(3 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("replaced timer fired: %v", fired)
	}
	clk.Advance(2 * time.Second)
	if len(fired) != 1 {
		t.Fatalf("fired %d times, want 1", len(fired))
	}
	if clk.Pending() != 0 {
		t.Errorf("%d timers still armed", clk.Pending())
	}
}

func TestReconnectSchedulerCancelInvalidatesToken(t *testing.T) {
	clk := newFakeClock()
	s := &reconnectScheduler{clock: clk, delay: ReconnectDelay}

	var fired []uint64
	s.arm(func(tok uint64) { fired = append(fired, tok) })
	tok := s.token
	s.cancel()

	clk.Advance(time.Minute)
	if len(fired) != 0 {
		t.Error("cancelled timer fired")
	}
	// A fire that escaped Stop must not be honoured.
	if s.claim(tok) {
		t.Error("claim succeeded after cancel")
	}
	s.cancel() // idempotent
}
