package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

var errBackend = errors.New("backend unavailable")

type fakeStarter struct {
	id  uuid.UUID
	err error
	// resume is handed back instead of a fresh attempt when set.
	resume *StartedAttempt
}

func (f *fakeStarter) StartAttempt(ctx context.Context, assessmentID uuid.UUID, studentID int) (StartedAttempt, error) {
	if f.err != nil {
		return StartedAttempt{}, f.err
	}
	if f.resume != nil {
		return *f.resume, nil
	}
	return StartedAttempt{ID: f.id}, nil
}

type fakeQuestions struct {
	set *model.QuestionSet
	err error
}

func (f *fakeQuestions) FetchQuestions(ctx context.Context, assessmentID uuid.UUID) (*model.QuestionSet, error) {
	return f.set, f.err
}

// fakeRecorder keeps every batch it receives. When gate is set, each call
// signals entered and waits for gate before returning.
type fakeRecorder struct {
	mu      sync.Mutex
	batches [][]model.Answer
	errs    []error

	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeRecorder) RecordBatch(ctx context.Context, attemptID uuid.UUID, answers []model.Answer) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.batches = append(f.batches, answers)
	return nil
}

func (f *fakeRecorder) Batches() [][]model.Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]model.Answer, len(f.batches))
	copy(out, f.batches)
	return out
}

// Persisted folds every recorded batch into last-write-wins per question.
func (f *fakeRecorder) Persisted() map[uuid.UUID]model.Answer {
	out := map[uuid.UUID]model.Answer{}
	for _, b := range f.Batches() {
		for _, a := range b {
			out[a.QuestionID] = a
		}
	}
	return out
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls int
	errs  []error

	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeSubmitter) SubmitAttempt(ctx context.Context, attemptID uuid.UUID) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeSubmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.AttemptEvent
}

func (f *fakeEvents) PublishAttemptEvent(ctx context.Context, ev model.AttemptEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) Types() []model.AttemptEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AttemptEventType, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func objective(id uuid.UUID, options ...string) model.Question {
	q := model.Question{ID: id, Text: "pick one", Category: model.QuestionCategoryObjective, Type: model.QuestionTypeMultipleChoice, Marks: 1}
	for _, o := range options {
		q.Options = append(q.Options, model.Option{ID: o, Text: "option " + o})
	}
	return q
}

func subjective(id uuid.UUID) model.Question {
	return model.Question{ID: id, Text: "explain", Category: model.QuestionCategorySubjective, Type: model.QuestionTypeEssay, Marks: 5}
}

// harness wires a Controller to fakes with timers far in the future, so tests
// drive the countdown and autosave by hand.
type harness struct {
	ctrl      *Controller
	clock     *fakeClock
	starter   *fakeStarter
	questions *fakeQuestions
	recorder  *fakeRecorder
	submitter *fakeSubmitter
	events    *fakeEvents

	assessmentID uuid.UUID
	q1, q2, q3   uuid.UUID
}

func newHarness(t *testing.T, timeLimit *int) *harness {
	t.Helper()
	h := &harness{
		clock:        newFakeClock(),
		starter:      &fakeStarter{id: uuid.New()},
		recorder:     &fakeRecorder{},
		submitter:    &fakeSubmitter{},
		events:       &fakeEvents{},
		assessmentID: uuid.New(),
		q1:           uuid.New(),
		q2:           uuid.New(),
		q3:           uuid.New(),
	}
	h.questions = &fakeQuestions{set: &model.QuestionSet{
		AssessmentID:     h.assessmentID,
		TimeLimitSeconds: timeLimit,
		Questions: []model.Question{
			objective(h.q1, "1", "2", "3"),
			objective(h.q2, "A", "B"),
			subjective(h.q3),
		},
	}}
	h.ctrl = NewController(Dependencies{
		Starter:   h.starter,
		Questions: h.questions,
		Recorder:  h.recorder,
		Submitter: h.submitter,
		Events:    h.events,
	}, Settings{
		TickInterval:            time.Hour,
		AutosaveInterval:        time.Hour,
		DefaultTimeLimitSeconds: 600,
		RequestTimeout:          5 * time.Second,
		Now:                     h.clock.Now,
	}, zerolog.Nop())
	t.Cleanup(h.ctrl.Dispose)
	return h
}

func (h *harness) start(t *testing.T) model.Attempt {
	t.Helper()
	a, err := h.ctrl.Start(context.Background(), h.assessmentID, 42)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return a
}
