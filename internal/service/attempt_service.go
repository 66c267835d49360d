package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// Domain Errors
var (
	ErrAssessmentUnavailable = errors.New("assessment is not published or does not exist")
	ErrAttemptInProgress     = errors.New("student already has an active attempt for this assessment")
	ErrAttemptNotFound       = errors.New("attempt not found")
)

// AttemptStore is the attempt persistence used by AttemptService.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt, defaultLimit int) error
	MarkSubmitted(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetActive(ctx context.Context, assessmentID uuid.UUID, studentID int) (*model.Attempt, error)
}

// AnswerLister reads persisted answers.
type AnswerLister interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
}

// AnswerBuffer holds answers that may not have reached the database yet.
type AnswerBuffer interface {
	Buffered(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]model.Answer, error)
}

// AttemptService creates and finalizes attempt records. It is the start and
// submission backend of the attempt engine.
type AttemptService struct {
	attempts     AttemptStore
	answers      AnswerLister
	buffer       AnswerBuffer
	defaultLimit int
	log          zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, answers AnswerLister, buffer AnswerBuffer, defaultLimit int, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts:     attempts,
		answers:      answers,
		buffer:       buffer,
		defaultLimit: defaultLimit,
		log:          log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartAttempt inserts an ACTIVE attempt row. When the student already has
// one running it is handed back with its saved answers, so a dropped session
// can pick up where it stopped.
func (s *AttemptService) StartAttempt(ctx context.Context, assessmentID uuid.UUID, studentID int) (attempt.StartedAttempt, error) {
	a := &model.Attempt{AssessmentID: assessmentID, StudentID: studentID}
	if err := s.attempts.Create(ctx, a, s.defaultLimit); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return attempt.StartedAttempt{}, ErrAssessmentUnavailable
		case errors.Is(err, repository.ErrAttemptExists):
			return s.resumeAttempt(ctx, assessmentID, studentID)
		}
		return attempt.StartedAttempt{}, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("assessment_id", assessmentID.String()).
		Int("student_id", studentID).
		Msg("Attempt row created")
	return startedFrom(a, nil, false), nil
}

func (s *AttemptService) resumeAttempt(ctx context.Context, assessmentID uuid.UUID, studentID int) (attempt.StartedAttempt, error) {
	a, err := s.attempts.GetActive(ctx, assessmentID, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Submitted between the insert and this read.
			return attempt.StartedAttempt{}, ErrAttemptInProgress
		}
		return attempt.StartedAttempt{}, fmt.Errorf("get active attempt: %w", err)
	}

	persisted, err := s.answers.ListByAttempt(ctx, a.ID)
	if err != nil {
		return attempt.StartedAttempt{}, fmt.Errorf("list answers: %w", err)
	}
	answers := s.overlayBuffered(ctx, a.ID, persisted)

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("assessment_id", assessmentID.String()).
		Int("student_id", studentID).
		Int("answers", len(answers)).
		Msg("Resuming active attempt")
	return startedFrom(a, answers, true), nil
}

func startedFrom(a *model.Attempt, answers []model.Answer, resumed bool) attempt.StartedAttempt {
	started := attempt.StartedAttempt{
		ID:               a.ID,
		TimeLimitSeconds: a.TimeLimitSeconds,
		Answers:          answers,
		Resumed:          resumed,
	}
	if a.StartedAt != nil {
		started.StartedAt = *a.StartedAt
	}
	return started
}

// SubmitAttempt marks the attempt submitted. Safe to repeat.
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID uuid.UUID) error {
	if err := s.attempts.MarkSubmitted(ctx, attemptID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("mark submitted: %w", err)
	}
	return nil
}

// GetRecord returns the stored attempt with its answers. Buffered answers
// win over persisted ones. Used when no live session exists for the attempt.
func (s *AttemptService) GetRecord(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, []model.Answer, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, err
	}

	answers, err := s.answers.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, fmt.Errorf("list answers: %w", err)
	}
	return a, s.overlayBuffered(ctx, attemptID, answers), nil
}

func (s *AttemptService) overlayBuffered(ctx context.Context, attemptID uuid.UUID, persisted []model.Answer) []model.Answer {
	out := make([]model.Answer, 0, len(persisted))
	if s.buffer == nil {
		return append(out, persisted...)
	}

	buffered, err := s.buffer.Buffered(ctx, attemptID)
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Answer buffer unavailable, using persisted answers")
		return append(out, persisted...)
	}

	seen := make(map[uuid.UUID]bool, len(persisted))
	for _, a := range persisted {
		seen[a.QuestionID] = true
		if b, ok := buffered[a.QuestionID]; ok {
			a = b
		}
		out = append(out, a)
	}
	var extra []model.Answer
	for id, b := range buffered {
		if !seen[id] {
			extra = append(extra, b)
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		return extra[i].QuestionID.String() < extra[j].QuestionID.String()
	})
	return append(out, extra...)
}
