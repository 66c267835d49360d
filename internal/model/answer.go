package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is the student's current answer to one question.
type Answer struct {
	QuestionID         uuid.UUID  `json:"question_id"`
	SelectedOptionID   *string    `json:"selected_option_id,omitempty"`
	TextResponse       *string    `json:"text_response,omitempty"`
	FirstInteractionAt *time.Time `json:"first_interaction_at,omitempty"`
	TimeSpentSeconds   int        `json:"time_spent_seconds"`
	Dirty              bool       `json:"dirty"`
}

// AnswerValue is one edit. Nil fields leave the stored value untouched.
type AnswerValue struct {
	SelectedOptionID *string `json:"selected_option_id,omitempty"`
	TextResponse     *string `json:"text_response,omitempty"`
}

// AnswerBatch is the unit handed from the answer recorder to the persistence worker.
type AnswerBatch struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	Answers   []Answer  `json:"answers"`
	QueuedAt  time.Time `json:"queued_at"`
}

// RecordAnswerRequest is the REST payload for one answer edit.
type RecordAnswerRequest struct {
	SelectedOptionID *string `json:"selected_option_id" binding:"omitempty,min=1,max=64"`
	TextResponse     *string `json:"text_response" binding:"omitempty,max=20000"`
}

// Value converts the request into an engine edit.
func (r RecordAnswerRequest) Value() AnswerValue {
	return AnswerValue{SelectedOptionID: r.SelectedOptionID, TextResponse: r.TextResponse}
}
