package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

// memStarter hands a student back the attempt already running for an
// assessment, with the answers the recorder holds.
type memStarter struct {
	mu       sync.Mutex
	recorder *memRecorder
	running  map[string]attempt.StartedAttempt
}

func (s *memStarter) StartAttempt(ctx context.Context, assessmentID uuid.UUID, studentID int) (attempt.StartedAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s/%d", assessmentID, studentID)
	if started, ok := s.running[key]; ok {
		started.Resumed = true
		started.Answers = s.recorder.All()
		return started, nil
	}
	started := attempt.StartedAttempt{ID: uuid.New(), StartedAt: time.Now()}
	s.running[key] = started
	return started, nil
}

type stubQuestions struct {
	sets map[uuid.UUID]*model.QuestionSet
}

func (s stubQuestions) FetchQuestions(ctx context.Context, assessmentID uuid.UUID) (*model.QuestionSet, error) {
	set, ok := s.sets[assessmentID]
	if !ok {
		return nil, service.ErrAssessmentUnavailable
	}
	return set, nil
}

type memRecorder struct {
	mu      sync.Mutex
	answers map[uuid.UUID]model.Answer
}

func (r *memRecorder) RecordBatch(ctx context.Context, attemptID uuid.UUID, answers []model.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range answers {
		r.answers[a.QuestionID] = a
	}
	return nil
}

func (r *memRecorder) All() []model.Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Answer, 0, len(r.answers))
	for _, a := range r.answers {
		out = append(out, a)
	}
	return out
}

func (r *memRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.answers)
}

type flakySubmitter struct {
	mu   sync.Mutex
	errs []error
}

func (s *flakySubmitter) SubmitAttempt(ctx context.Context, attemptID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

type fakeRecords struct {
	attempts map[uuid.UUID]*model.Attempt
}

func (f *fakeRecords) GetRecord(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, []model.Answer, error) {
	a, ok := f.attempts[attemptID]
	if !ok {
		return nil, nil, service.ErrAttemptNotFound
	}
	return a, nil, nil
}

type testEnv struct {
	auth      *service.AuthService
	sessions  *service.SessionManager
	recorder  *memRecorder
	submitter *flakySubmitter
	records   *fakeRecords
	set       *model.QuestionSet
	router    *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	env := &testEnv{
		auth:      service.NewAuthService(&config.Config{JWTSecret: "handler-secret", JWTExpiry: time.Hour}),
		recorder:  &memRecorder{answers: map[uuid.UUID]model.Answer{}},
		submitter: &flakySubmitter{},
		records:   &fakeRecords{attempts: map[uuid.UUID]*model.Attempt{}},
		set:       sampleSet(),
	}
	deps := attempt.Dependencies{
		Starter:   &memStarter{recorder: env.recorder, running: map[string]attempt.StartedAttempt{}},
		Questions: stubQuestions{sets: map[uuid.UUID]*model.QuestionSet{env.set.AssessmentID: env.set}},
		Recorder:  env.recorder,
		Submitter: env.submitter,
	}
	settings := attempt.Settings{
		TickInterval:            time.Hour,
		AutosaveInterval:        time.Hour,
		DefaultTimeLimitSeconds: 600,
		RequestTimeout:          time.Second,
	}
	env.sessions = service.NewSessionManager(deps, settings, zerolog.Nop())
	t.Cleanup(func() { env.sessions.Shutdown(context.Background()) })

	attempts := NewAttemptHandler(env.sessions, env.records, zerolog.Nop())
	stream := NewWSHandler(env.sessions, zerolog.Nop(), nil)

	r := gin.New()
	api := r.Group("/api/v1/student", middleware.RequireStudentJWT(env.auth))
	api.GET("/attempts/:attempt_id", attempts.GetAttempt)
	api.PUT("/attempts/:attempt_id/answers/:question_id", attempts.RecordAnswer)
	api.POST("/attempts/:attempt_id/questions/:question_id/flag", attempts.ToggleFlag)
	api.POST("/attempts/:attempt_id/questions/:question_id/focus", attempts.FocusQuestion)
	api.POST("/attempts/:attempt_id/submit", attempts.SubmitAttempt)
	r.GET("/ws/v1/student/assessments/:assessment_id/attempt", middleware.RequireStudentWSAuth(env.auth), stream.AttemptStream)
	env.router = r
	return env
}

func (e *testEnv) token(t *testing.T, studentID int) string {
	t.Helper()
	tok, err := e.auth.GenerateStudentToken(studentID, 1)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, studentID int, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+e.token(t, studentID))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func sampleSet() *model.QuestionSet {
	limit := 1800
	return &model.QuestionSet{
		AssessmentID:     uuid.New(),
		Title:            "Fisika Dasar",
		TimeLimitSeconds: &limit,
		Questions: []model.Question{
			{
				ID:       uuid.New(),
				Text:     "Satuan gaya?",
				Category: model.QuestionCategoryObjective,
				Type:     model.QuestionTypeMultipleChoice,
				Marks:    1,
				Options:  []model.Option{{ID: "a", Text: "Newton"}, {ID: "b", Text: "Joule"}},
			},
			{
				ID:       uuid.New(),
				Text:     "Jelaskan hukum Newton pertama.",
				Category: model.QuestionCategorySubjective,
				Type:     model.QuestionTypeEssay,
				Marks:    4,
				OrderNum: 1,
			},
		},
	}
}
