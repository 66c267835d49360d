package attempt

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrAlreadyStarted   = errors.New("attempt already started")
	ErrAttemptNotActive = errors.New("attempt is not active")
	ErrUnknownQuestion  = errors.New("question is not part of this attempt")
	ErrInvalidAnswer    = errors.New("answer does not fit the question")
	ErrEmptyCatalog     = errors.New("assessment has no questions")
	ErrDuplicateID      = errors.New("duplicate question id in catalog")
	ErrDisposed         = errors.New("attempt session disposed")
)

// StartError is fatal for the session: no attempt exists and nothing is recoverable.
type StartError struct {
	AssessmentID uuid.UUID
	StudentID    int
	Err          error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start attempt for assessment %s: %v", e.AssessmentID, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// PersistError is a failed batch persist. Silent during autosave, user-visible
// when raised by the submission flush.
type PersistError struct {
	AttemptID uuid.UUID
	Count     int
	Err       error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %d answers for attempt %s: %v", e.Count, e.AttemptID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// SubmitError is a failed call to the submission service. The attempt stays
// Failed with every answer intact and may be retried.
type SubmitError struct {
	AttemptID uuid.UUID
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit attempt %s: %v", e.AttemptID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
