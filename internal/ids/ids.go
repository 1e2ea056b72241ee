// Package ids hands out millisecond-derived identifiers that never repeat
// within a process, even when two are requested in the same millisecond.
package ids

import (
	"strconv"
	"sync"
	"time"
)

// Sequence produces strictly increasing millisecond timestamps.
type Sequence struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewSequence returns a Sequence reading the wall clock.
func NewSequence() *Sequence {
	return &Sequence{now: time.Now}
}

// NewSequenceWithClock is NewSequence with an injectable clock.
func NewSequenceWithClock(now func() time.Time) *Sequence {
	return &Sequence{now: now}
}

// Next returns the current time in milliseconds, bumped past the previous value when needed.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.now().UnixMilli()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return n
}

// NextString is Next formatted in base 10.
func (s *Sequence) NextString() string {
	return strconv.FormatInt(s.Next(), 10)
}

// Observe makes future values larger than v. Used after loading persisted ids.
func (s *Sequence) Observe(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.last {
		s.last = v
	}
}
