package coretest

import (
	"sync"
	"time"

	"github.com/dkeye/studyroom/internal/core"
)

// Scheduler queues callbacks until RunPending fires them.
type Scheduler struct {
	mu      sync.Mutex
	pending []*scheduled
}

type scheduled struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (s *scheduled) Stop() bool {
	if s.stopped {
		return false
	}
	s.stopped = true
	return true
}

func (s *Scheduler) AfterFunc(d time.Duration, f func()) core.ScheduledFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &scheduled{d: d, f: f}
	s.pending = append(s.pending, job)
	return job
}

// RunPending fires every callback queued so far that was not stopped. Jobs
// queued by those callbacks wait for the next call.
func (s *Scheduler) RunPending() int {
	s.mu.Lock()
	jobs := s.pending
	s.pending = nil
	s.mu.Unlock()

	n := 0
	for _, j := range jobs {
		if j.stopped {
			continue
		}
		j.stopped = true
		j.f()
		n++
	}
	return n
}

// PendingCount reports the live, not yet fired callbacks.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.pending {
		if !j.stopped {
			n++
		}
	}
	return n
}

// NextDelay is the delay of the oldest live callback, or zero.
func (s *Scheduler) NextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.pending {
		if !j.stopped {
			return j.d
		}
	}
	return 0
}
