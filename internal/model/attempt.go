package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the lifecycle states of an attempt.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusActive     AttemptStatus = "ACTIVE"
	AttemptStatusSubmitting AttemptStatus = "SUBMITTING"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	// AttemptStatusExpired is never entered by the engine: expiry goes through submission.
	AttemptStatusExpired AttemptStatus = "EXPIRED"
	AttemptStatusFailed  AttemptStatus = "FAILED"
)

// Terminal reports whether no further transition is expected without a retry.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusExpired || s == AttemptStatusFailed
}

// SubmitReason tags what triggered a submission. Used for telemetry and UX copy only.
type SubmitReason string

const (
	SubmitReasonUserInitiated SubmitReason = "user_initiated"
	SubmitReasonTimerExpired  SubmitReason = "timer_expired"
)

// Attempt is one student's single timed session against one assessment.
type Attempt struct {
	ID               uuid.UUID     `json:"attempt_id"`
	AssessmentID     uuid.UUID     `json:"assessment_id"`
	StudentID        int           `json:"student_id"`
	Status           AttemptStatus `json:"status"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	TimeLimitSeconds int           `json:"time_limit_seconds"`
	SecondsRemaining int           `json:"seconds_remaining"`
	SubmitReason     *SubmitReason `json:"submit_reason,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
}

// QuestionState is the per-question indicator row of the attempt read model.
type QuestionState struct {
	QuestionID       uuid.UUID `json:"question_id"`
	Answered         bool      `json:"answered"`
	Dirty            bool      `json:"dirty"`
	Flagged          bool      `json:"flagged"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// AttemptView is the read model exposed to the UI layer.
type AttemptView struct {
	Attempt       Attempt         `json:"attempt"`
	Timer         string          `json:"timer"`
	Questions     []QuestionState `json:"questions"`
	AnsweredCount int             `json:"answered_count"`
	FlaggedCount  int             `json:"flagged_count"`
}

// AttemptEventType names the lifecycle events published on the event bus.
type AttemptEventType string

const (
	AttemptEventStarted   AttemptEventType = "attempt.started"
	AttemptEventResumed   AttemptEventType = "attempt.resumed"
	AttemptEventSubmitted AttemptEventType = "attempt.submitted"
	AttemptEventFailed    AttemptEventType = "attempt.failed"
)

// AttemptEvent is the payload published for attempt lifecycle transitions.
type AttemptEvent struct {
	Type         AttemptEventType `json:"type"`
	AttemptID    uuid.UUID        `json:"attempt_id"`
	AssessmentID uuid.UUID        `json:"assessment_id"`
	StudentID    int              `json:"student_id"`
	Status       AttemptStatus    `json:"status"`
	Reason       *SubmitReason    `json:"reason,omitempty"`
	Error        string           `json:"error,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
