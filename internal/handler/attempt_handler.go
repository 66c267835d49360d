package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// AttemptRecords reads stored attempts that have no live session.
type AttemptRecords interface {
	GetRecord(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, []model.Answer, error)
}

// AttemptHandler serves the REST surface of live attempts.
type AttemptHandler struct {
	sessions *service.SessionManager
	records  AttemptRecords
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(sessions *service.SessionManager, records AttemptRecords, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		sessions: sessions,
		records:  records,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:attempt_id
// Returns the live view, or the stored record once the session is gone.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctrl, err := h.sessions.Get(attemptID, claims.UserID)
	if err == nil {
		response.Success(c, http.StatusOK, gin.H{"live": true, "view": ctrl.View()})
		return
	}
	if !errors.Is(err, service.ErrSessionNotFound) {
		h.fail(c, err)
		return
	}

	a, answers, err := h.records.GetRecord(c.Request.Context(), attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}
	// A foreign attempt is reported as missing.
	if a.StudentID != claims.UserID {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if answers == nil {
		answers = []model.Answer{}
	}

	response.Success(c, http.StatusOK, gin.H{"live": false, "attempt": a, "answers": answers})
}

// RecordAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers/:question_id
// Stores an edit in the live session. Persistence happens on the next autosave.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	ctrl, questionID, ok := h.liveQuestion(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.RecordAnswer(questionID, req.Value()); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "status": "saved"})
}

// ToggleFlag godoc
// POST /api/v1/student/attempts/:attempt_id/questions/:question_id/flag
func (h *AttemptHandler) ToggleFlag(c *gin.Context) {
	ctrl, questionID, ok := h.liveQuestion(c)
	if !ok {
		return
	}

	flagged, err := ctrl.ToggleFlag(questionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "flagged": flagged})
}

// FocusQuestion godoc
// POST /api/v1/student/attempts/:attempt_id/questions/:question_id/focus
// Starts timing the question.
func (h *AttemptHandler) FocusQuestion(c *gin.Context) {
	ctrl, questionID, ok := h.liveQuestion(c)
	if !ok {
		return
	}

	if err := ctrl.FocusQuestion(questionID); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// User-initiated submission, also the retry path after a failure.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	ctrl, ok := h.live(c)
	if !ok {
		return
	}

	// The submission must not be cut short by the client going away.
	a, err := ctrl.RequestSubmit(context.WithoutCancel(c.Request.Context()), model.SubmitReasonUserInitiated)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": a})
}

func (h *AttemptHandler) live(c *gin.Context) (*attempt.Controller, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctrl, err := h.sessions.Get(attemptID, claims.UserID)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return ctrl, true
}

func (h *AttemptHandler) liveQuestion(c *gin.Context) (*attempt.Controller, uuid.UUID, bool) {
	ctrl, ok := h.live(c)
	if !ok {
		return nil, uuid.Nil, false
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return ctrl, questionID, true
}

func (h *AttemptHandler) fail(c *gin.Context, err error) {
	status, code := attemptError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Attempt request failed")
	}
	response.Fail(c, status, code)
}
