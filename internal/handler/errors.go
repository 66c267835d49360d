package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// attemptError maps engine and service errors to an HTTP status and API code.
// The same codes are sent over the WebSocket.
func attemptError(err error) (int, response.ErrCode) {
	var (
		startErr   *attempt.StartError
		persistErr *attempt.PersistError
		submitErr  *attempt.SubmitError
	)

	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrSessionForbidden):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrAssessmentUnavailable):
		return http.StatusNotFound, response.ErrAssessmentUnavailable
	case errors.Is(err, service.ErrAttemptInProgress):
		return http.StatusConflict, response.ErrAttemptInProgress
	case errors.Is(err, attempt.ErrEmptyCatalog):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case errors.As(err, &startErr):
		return http.StatusBadGateway, response.ErrAttemptStartFailed
	case errors.Is(err, attempt.ErrDisposed):
		return http.StatusConflict, response.ErrSessionClosed
	case errors.Is(err, attempt.ErrAttemptNotActive),
		errors.Is(err, attempt.ErrAlreadyStarted):
		return http.StatusConflict, response.ErrAttemptNotActive
	case errors.Is(err, attempt.ErrUnknownQuestion):
		return http.StatusNotFound, response.ErrUnknownQuestion
	case errors.Is(err, attempt.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswer
	case errors.As(err, &persistErr):
		return http.StatusBadGateway, response.ErrSaveFailed
	case errors.As(err, &submitErr):
		return http.StatusBadGateway, response.ErrSubmitFailed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
