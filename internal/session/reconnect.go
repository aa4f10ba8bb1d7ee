package session

import "time"

// ReconnectDelay is the fixed wait before retrying after any disconnect
// while reconnection is still wanted.
const ReconnectDelay = 5 * time.Second

// reconnectScheduler holds at most one pending retry timer. Every timer is
// issued with a token; a fire is honoured only if its token is still current,
// so a timer that elapses concurrently with cancel can never connect.
// Only the Manager's Run goroutine touches it.
type reconnectScheduler struct {
	clock Clock
	delay time.Duration
	timer Timer
	token uint64
}

// arm schedules fire after the delay, replacing any pending timer.
func (s *reconnectScheduler) arm(fire func(token uint64)) {
	s.cancel()
	tok := s.token
	s.timer = s.clock.AfterFunc(s.delay, func() { fire(tok) })
}

// cancel drops the pending timer, if any, and invalidates its token.
func (s *reconnectScheduler) cancel() {
	s.token++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *reconnectScheduler) pending() bool {
	return s.timer != nil
}

// claim consumes the pending timer when token matches it.
func (s *reconnectScheduler) claim(token uint64) bool {
	if s.timer == nil || token != s.token {
		return false
	}
	s.timer = nil
	s.token++
	return true
}
