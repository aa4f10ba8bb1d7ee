// Package stats keeps running connection statistics for the bot and persists
// them between runs.
package stats

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

const defaultSaveInterval = 30 * time.Second

// Tracker folds session events into Stats and periodically saves them.
type Tracker struct {
	persist      *Store
	saveInterval time.Duration
	events       chan session.Event

	mu          sync.Mutex
	stats       *Stats
	dirty       bool
	lastStatus  session.Status
	onlineSince time.Time
}

// NewTracker loads existing stats from persist and returns the tracker with
// the channel to register as a session observer. The caller runs Run.
func NewTracker(persist *Store, saveInterval time.Duration) (*Tracker, chan<- session.Event, error) {
	st, err := persist.Load()
	if err != nil {
		return nil, nil, err
	}
	if saveInterval <= 0 {
		saveInterval = defaultSaveInterval
	}
	ch := make(chan session.Event, 256)
	t := &Tracker{
		persist:      persist,
		saveInterval: saveInterval,
		events:       ch,
		stats:        st,
	}
	return t, ch, nil
}

// Run processes events and saves dirty stats on every tick. It blocks until
// ctx is cancelled, then performs a final save.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.save()
			return
		case ev := <-t.events:
			t.Observe(ev)
		case <-ticker.C:
			t.mu.Lock()
			dirty := t.dirty
			t.mu.Unlock()
			if dirty {
				t.save()
			}
		}
	}
}

// Stats returns a copy of the current aggregates. A session that is online
// right now contributes its elapsed time to the online totals.
func (t *Tracker) Stats() *Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := t.stats.clone()
	if t.lastStatus == session.Online && !t.onlineSince.IsZero() {
		addOnline(cp, time.Since(t.onlineSince).Seconds())
	}
	return cp
}

// Observe folds one event into the aggregates.
func (t *Tracker) Observe(ev session.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case session.EventChat:
		t.stats.ChatsSent++
		if ev.Heartbeat {
			t.stats.Heartbeats++
		}
	case session.EventRetryScheduled:
		t.stats.RetriesArmed++
	case session.EventStatus:
		t.transition(ev)
	}
	t.dirty = true
}

func (t *Tracker) transition(ev session.Event) {
	prev := t.lastStatus
	t.lastStatus = ev.Status

	if prev == session.Online && ev.Status != session.Online && !t.onlineSince.IsZero() {
		addOnline(t.stats, ev.At.Sub(t.onlineSince).Seconds())
		t.onlineSince = time.Time{}
	}

	switch ev.Status {
	case session.Connecting:
		if prev != session.Connecting {
			t.stats.ConnectAttempts++
		}
	case session.Online:
		if prev != session.Online {
			t.stats.Spawns++
			t.onlineSince = ev.At
			t.stats.LastOnline = ev.At
		}
	case session.Offline:
		switch ev.Cause {
		case session.CauseStop:
			t.stats.Stops++
		case session.CauseNone:
		default:
			t.stats.Disconnects[string(ev.Cause)]++
		}
	}
}

func addOnline(st *Stats, sec float64) {
	if sec <= 0 {
		return
	}
	st.TotalOnlineSec += sec
	if sec > st.LongestOnlineSec {
		st.LongestOnlineSec = sec
	}
}

func (t *Tracker) save() {
	t.mu.Lock()
	st := t.stats.clone()
	t.dirty = false
	t.mu.Unlock()

	if err := t.persist.Save(st); err != nil {
		log.Printf("Failed to save stats: %v", err)
	}
}
