package playback

import (
	"sync"
	"time"
)

// Clock reports the current playback time.
type Clock interface {
	Now() time.Duration
}

// Scheduler assigns start times to consecutive buffers so that they play back
// to back. The cursor only moves forward: a buffer starts at the later of the
// current clock time and the end of the previously scheduled buffer.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	clock Clock

	mu   sync.Mutex
	next time.Duration
}

// NewScheduler returns a Scheduler reading time from clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Schedule reserves d of playback time and returns its start. The returned
// interval [start, start+d) never overlaps an interval returned earlier.
func (s *Scheduler) Schedule(d time.Duration) time.Duration {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	start := max(now, s.next)
	s.next = start + max(d, 0)
	return start
}

// Next returns the end of the last scheduled interval.
func (s *Scheduler) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
