// Package autosave provides the single-slot debounced commit scheduler used to
// collapse rapid edits (keystrokes in a note) into one history write.
package autosave

import (
	"sync"
	"time"
)

// Scheduler debounces Trigger calls into a single commit after a fixed delay.
// Exactly one commit callback is registered per active document view. The
// scheduler has no awareness of application lifecycle: the owner must call
// Flush on every exit path (lens switch, report close, patient switch,
// teardown).
type Scheduler struct {
	mu     sync.Mutex
	delay  time.Duration
	commit func()
	timer  *time.Timer
	gen    uint64
}

func New(delay time.Duration, commit func()) *Scheduler {
	return &Scheduler{delay: delay, commit: commit}
}

// Trigger (re)starts the delay timer. Repeated calls within the window
// collapse to one commit.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

// Flush cancels any pending timer and runs the commit immediately. With
// nothing pending it does nothing; calling it twice is safe.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	pending := s.timer != nil
	if pending {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if pending {
		s.commit()
	}
}

// Cancel drops any pending commit without running it.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a commit is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// fire runs when the timer for generation gen expires. The generation check
// drops callbacks that lost a race with Flush, Cancel, or a fresh Trigger.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.timer == nil || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.commit()
}
