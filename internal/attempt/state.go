package attempt

import (
	"slices"
	"sync"
	"time"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// state is the single Attempt record shared by the controller and the
// submission coordinator. Edits hold the read lock for their whole duration,
// so once a writer moves the status away from Active no edit can land.
type state struct {
	mu      sync.RWMutex
	attempt model.Attempt
	closed  bool
}

func newState() *state {
	return &state{attempt: model.Attempt{Status: model.AttemptStatusNotStarted}}
}

func (s *state) get() model.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempt
}

func (s *state) status() model.AttemptStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempt.Status
}

// whileActive runs fn under the read lock if the attempt is Active and the
// session is still open.
func (s *state) whileActive(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrDisposed
	}
	if s.attempt.Status != model.AttemptStatusActive {
		return ErrAttemptNotActive
	}
	return fn()
}

// transition moves to `to` only from one of `from` and reports whether it did.
// The returned record is the state after the call either way.
func (s *state) transition(to model.AttemptStatus, from ...model.AttemptStatus) (model.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(from, s.attempt.Status) {
		return s.attempt, false
	}
	s.attempt.Status = to
	return s.attempt, true
}

// close waits out every running edit. Later edits fail with ErrDisposed.
func (s *state) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *state) update(fn func(a *model.Attempt)) model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.attempt)
	return s.attempt
}

// setRemaining never lets the countdown value grow.
func (s *state) setRemaining(seconds int) model.Attempt {
	return s.update(func(a *model.Attempt) {
		if seconds < a.SecondsRemaining {
			a.SecondsRemaining = seconds
		}
	})
}

func (s *state) finish(to model.AttemptStatus, at time.Time, err error) model.Attempt {
	return s.update(func(a *model.Attempt) {
		a.Status = to
		if err != nil {
			a.LastError = err.Error()
			return
		}
		a.LastError = ""
		a.SubmittedAt = &at
	})
}
