package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

var errDown = errors.New("connection refused")

// fakeAttemptStore keeps one ACTIVE row per student and assessment, like the
// partial unique index on attempts.
type fakeAttemptStore struct {
	mu        sync.Mutex
	createErr error
	submitErr error
	submitted []uuid.UUID
	record    *model.Attempt
	limits    []int
	active    map[attemptOwner]*model.Attempt
	now       func() time.Time
}

type attemptOwner struct {
	assessmentID uuid.UUID
	studentID    int
}

func (f *fakeAttemptStore) Create(ctx context.Context, a *model.Attempt, defaultLimit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, defaultLimit)
	if f.createErr != nil {
		return f.createErr
	}
	key := attemptOwner{a.AssessmentID, a.StudentID}
	if _, ok := f.active[key]; ok {
		return repository.ErrAttemptExists
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	startedAt := now()
	a.ID = uuid.New()
	a.StartedAt = &startedAt
	a.TimeLimitSeconds = defaultLimit
	a.Status = model.AttemptStatusActive
	if f.active == nil {
		f.active = make(map[attemptOwner]*model.Attempt)
	}
	row := *a
	f.active[key] = &row
	return nil
}

func (f *fakeAttemptStore) MarkSubmitted(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, id)
	for key, row := range f.active {
		if row.ID == id {
			delete(f.active, key)
		}
	}
	return nil
}

func (f *fakeAttemptStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	if f.record == nil || f.record.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.record, nil
}

func (f *fakeAttemptStore) GetActive(ctx context.Context, assessmentID uuid.UUID, studentID int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.active[attemptOwner{assessmentID, studentID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *row
	return &out, nil
}

type fakeAnswerLister struct {
	answers []model.Answer
	err     error
}

func (f *fakeAnswerLister) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	return f.answers, f.err
}

type fakeBuffer struct {
	answers map[uuid.UUID]model.Answer
	err     error
}

func (f *fakeBuffer) Buffered(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]model.Answer, error) {
	return f.answers, f.err
}

type fakeSource struct {
	mu    sync.Mutex
	sets  map[uuid.UUID]*model.QuestionSet
	calls int
	err   error
}

func (f *fakeSource) GetQuestionSet(ctx context.Context, id uuid.UUID) (*model.QuestionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	set, ok := f.sets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return set, nil
}

func (f *fakeSource) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(f.sets))
	for id := range f.sets {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// engine collaborators for SessionManager tests.
type stubStarter struct{ err error }

func (s stubStarter) StartAttempt(ctx context.Context, assessmentID uuid.UUID, studentID int) (attempt.StartedAttempt, error) {
	if s.err != nil {
		return attempt.StartedAttempt{}, s.err
	}
	return attempt.StartedAttempt{ID: uuid.New()}, nil
}

type stubQuestions struct{ set *model.QuestionSet }

func (s stubQuestions) FetchQuestions(ctx context.Context, assessmentID uuid.UUID) (*model.QuestionSet, error) {
	return s.set, nil
}

type countingRecorder struct {
	mu      sync.Mutex
	answers int
}

func (r *countingRecorder) RecordBatch(ctx context.Context, attemptID uuid.UUID, answers []model.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers += len(answers)
	return nil
}

func (r *countingRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answers
}

type nopSubmitter struct{}

func (nopSubmitter) SubmitAttempt(ctx context.Context, attemptID uuid.UUID) error { return nil }

func sampleSet(assessmentID uuid.UUID) *model.QuestionSet {
	limit := 1800
	return &model.QuestionSet{
		AssessmentID:     assessmentID,
		Title:            "Biologi Dasar",
		TimeLimitSeconds: &limit,
		Questions: []model.Question{
			{
				ID:       uuid.New(),
				Text:     "Organel penghasil energi?",
				Category: model.QuestionCategoryObjective,
				Type:     model.QuestionTypeMultipleChoice,
				Marks:    1,
				Options:  []model.Option{{ID: "a", Text: "Mitokondria"}, {ID: "b", Text: "Ribosom"}},
			},
			{
				ID:       uuid.New(),
				Text:     "Jelaskan fotosintesis.",
				Category: model.QuestionCategorySubjective,
				Type:     model.QuestionTypeEssay,
				Marks:    5,
				OrderNum: 1,
			},
		},
	}
}

func testSettings() attempt.Settings {
	return attempt.Settings{
		TickInterval:            time.Hour,
		AutosaveInterval:        time.Hour,
		DefaultTimeLimitSeconds: 600,
		RequestTimeout:          time.Second,
	}
}

func strPtr(s string) *string { return &s }
