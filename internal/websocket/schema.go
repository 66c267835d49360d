package websocket

import (
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionFlag   Action = "flag"
	ActionFocus  Action = "focus"
	ActionSubmit Action = "submit"
	ActionState  Action = "state"
	ActionPing   Action = "ping"
)

// RequestPayload is the single client message shape. Which fields are read
// depends on Action. QuestionID is parsed for answer, flag and focus.
type RequestPayload struct {
	Action           Action  `json:"action" binding:"required"`
	QuestionID       string  `json:"question_id" binding:"omitempty,uuid"`
	SelectedOptionID *string `json:"selected_option_id" binding:"omitempty,min=1,max=64"`
	TextResponse     *string `json:"text_response" binding:"omitempty,max=20000"`
}

// AnswerValue returns the edit carried by an answer action.
func (p *RequestPayload) AnswerValue() model.AnswerValue {
	return model.AnswerValue{SelectedOptionID: p.SelectedOptionID, TextResponse: p.TextResponse}
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventStarted Event = "started"
	EventTick    Event = "tick"
	EventStatus  Event = "status"
	EventSaved   Event = "saved"
	EventFlagged Event = "flagged"
	EventState   Event = "state"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// StartedResponse is sent once, right after the attempt is created or
// resumed. A resumed attempt carries the answers saved so far.
type StartedResponse struct {
	Event     Event            `json:"event"`
	Attempt   model.Attempt    `json:"attempt"`
	Timer     string           `json:"timer"`
	Questions []model.Question `json:"questions"`
	Answers   []model.Answer   `json:"answers"`
	Resumed   bool             `json:"resumed"`
}

type TickResponse struct {
	Event            Event  `json:"event"`
	SecondsRemaining int    `json:"seconds_remaining"`
	Timer            string `json:"timer"`
}

// StatusResponse reports a lifecycle transition of the attempt.
type StatusResponse struct {
	Event   Event         `json:"event"`
	Attempt model.Attempt `json:"attempt"`
}

// SavedResponse acknowledges an answer edit held in memory. It does not mean
// the answer reached storage; that happens on the next autosave cycle.
type SavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

type FlaggedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
	Flagged    bool   `json:"flagged"`
}

type StateResponse struct {
	Event Event             `json:"event"`
	View  model.AttemptView `json:"view"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
