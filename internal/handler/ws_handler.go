package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// outboxSize bounds the notifications queued for one socket. Ticks are
// dropped when the client falls behind.
const outboxSize = 64

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs one attempt session per socket.
type WSHandler struct {
	sessions *service.SessionManager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionManager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/assessments/:assessment_id/attempt
// Opening the socket starts the attempt, or resumes the one the student
// already has running. Closing it saves the answers and ends the session.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	out := ws.NewWriter(conn)
	studentID := claims.UserID

	ctrl, err := h.sessions.Open(c.Request.Context(), assessmentID, studentID)
	if err != nil {
		h.log.Warn().Err(err).
			Int("student_id", studentID).
			Str("assessment_id", assessmentID.String()).
			Msg("Attempt could not be opened")
		writeAttemptError(out, err)
		return
	}
	a := ctrl.Attempt()
	defer h.sessions.Close(context.Background(), ctrl)

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("attempt_id", a.ID.String()).
		Logger()
	wsLog.Info().Bool("resumed", ctrl.Resumed()).Msg("Student connected")

	if err := out.WriteTyped(ws.StartedResponse{
		Event:     ws.EventStarted,
		Attempt:   a,
		Timer:     attempt.FormatClock(a.SecondsRemaining),
		Questions: ctrl.Questions(),
		Answers:   ctrl.Answers(),
		Resumed:   ctrl.Resumed(),
	}); err != nil {
		wsLog.Debug().Err(err).Msg("Write started failed")
		return
	}

	stop := h.forwardNotifications(ctrl, out)
	defer stop()

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if ws.IsPayloadError(err) {
				out.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		h.dispatch(ctrl, out, wsLog, &msg)
	}
}

// forwardNotifications relays controller notifications to the socket from a
// single goroutine. When the session is closed from elsewhere, such as a newer
// socket of the same student taking over, the client is told and the socket is
// closed. The returned function stops it and waits for it to exit.
func (h *WSHandler) forwardNotifications(ctrl *attempt.Controller, out *ws.Writer) func() {
	outbox := make(chan interface{}, outboxSize)
	closed := make(chan struct{})
	var closeOnce sync.Once
	cancel := ctrl.Subscribe(func(n attempt.Notification) {
		var msg interface{}
		switch n.Kind {
		case attempt.NotificationClosed:
			closeOnce.Do(func() { close(closed) })
			return
		case attempt.NotificationTick:
			msg = ws.TickResponse{
				Event:            ws.EventTick,
				SecondsRemaining: n.Attempt.SecondsRemaining,
				Timer:            attempt.FormatClock(n.Attempt.SecondsRemaining),
			}
		default:
			msg = ws.StatusResponse{Event: ws.EventStatus, Attempt: n.Attempt}
		}
		// Listeners must not block.
		select {
		case outbox <- msg:
		default:
		}
	})

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case <-done:
				return
			case <-closed:
				out.WriteError(string(response.ErrSessionClosed), response.GetMessage(response.ErrSessionClosed))
				out.Close(websocket.CloseGoingAway, "session closed")
				return
			case msg := <-outbox:
				if err := out.WriteTyped(msg); err != nil {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		close(done)
		<-exited
	}
}

func (h *WSHandler) dispatch(ctrl *attempt.Controller, out *ws.Writer, wsLog zerolog.Logger, msg *ws.RequestPayload) {
	if fields := validator.Struct(msg); fields != nil {
		out.WriteError(string(response.ErrValidation), firstField(fields))
		return
	}

	switch msg.Action {
	case ws.ActionAnswer, ws.ActionFlag, ws.ActionFocus:
		questionID, err := uuid.Parse(msg.QuestionID)
		if err != nil {
			out.WriteError(string(response.ErrInvalidID), response.GetMessage(response.ErrInvalidID))
			return
		}
		h.handleQuestionAction(ctrl, out, msg, questionID)

	case ws.ActionSubmit:
		a, err := ctrl.RequestSubmit(context.Background(), model.SubmitReasonUserInitiated)
		if err != nil {
			wsLog.Warn().Err(err).Str("status", string(a.Status)).Msg("Submit failed")
			writeAttemptError(out, err)
		}

	case ws.ActionState:
		out.WriteTyped(ws.StateResponse{Event: ws.EventState, View: ctrl.View()})

	case ws.ActionPing:
		out.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		out.WriteError(string(response.ErrUnknownAction), "unknown action: "+string(msg.Action))
	}
}

func (h *WSHandler) handleQuestionAction(ctrl *attempt.Controller, out *ws.Writer, msg *ws.RequestPayload, questionID uuid.UUID) {
	switch msg.Action {
	case ws.ActionAnswer:
		if err := ctrl.RecordAnswer(questionID, msg.AnswerValue()); err != nil {
			writeAttemptError(out, err)
			return
		}
		out.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QuestionID: questionID.String()})

	case ws.ActionFlag:
		flagged, err := ctrl.ToggleFlag(questionID)
		if err != nil {
			writeAttemptError(out, err)
			return
		}
		out.WriteTyped(ws.FlaggedResponse{Event: ws.EventFlagged, QuestionID: questionID.String(), Flagged: flagged})

	case ws.ActionFocus:
		if err := ctrl.FocusQuestion(questionID); err != nil {
			writeAttemptError(out, err)
		}
	}
}

func writeAttemptError(out *ws.Writer, err error) {
	_, code := attemptError(err)
	out.WriteError(string(code), response.GetMessage(code))
}

func firstField(fields map[string]string) string {
	for _, msg := range fields {
		return msg
	}
	return response.GetMessage(response.ErrValidation)
}
