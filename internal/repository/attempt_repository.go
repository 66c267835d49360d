package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// AttemptRepository handles attempt rows.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts an ACTIVE attempt for a published assessment. The stored time
// limit falls back to defaultLimit when the assessment has none. It returns
// ErrNotFound when the assessment is not published and ErrAttemptExists when
// the student already has a live attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt, defaultLimit int) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (assessment_id, student_id, status, time_limit_seconds)
		 SELECT a.id, $2, $3, COALESCE(a.time_limit_seconds, $4)
		 FROM assessments a
		 WHERE a.id = $1 AND a.status = $5
		 RETURNING id, started_at, time_limit_seconds`,
		a.AssessmentID, a.StudentID, model.AttemptStatusActive, defaultLimit, model.AssessmentStatusPublished,
	).Scan(&a.ID, &a.StartedAt, &a.TimeLimitSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAttemptExists
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	a.Status = model.AttemptStatusActive
	a.SecondsRemaining = a.TimeLimitSeconds
	return nil
}

// MarkSubmitted finalizes an attempt. Repeating the call keeps the first
// submitted_at.
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $2, submitted_at = COALESCE(submitted_at, NOW())
		 WHERE id = $1 AND status IN ($3, $2)`,
		id, model.AttemptStatusSubmitted, model.AttemptStatusActive,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves an attempt row.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, assessment_id, student_id, status, time_limit_seconds, started_at, submitted_at
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.AssessmentID, &a.StudentID, &a.Status, &a.TimeLimitSeconds, &a.StartedAt, &a.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// GetActive retrieves the ACTIVE attempt of a student for an assessment.
func (r *AttemptRepository) GetActive(ctx context.Context, assessmentID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, assessment_id, student_id, status, time_limit_seconds, started_at, submitted_at
		 FROM attempts WHERE assessment_id = $1 AND student_id = $2 AND status = $3`,
		assessmentID, studentID, model.AttemptStatusActive,
	).Scan(&a.ID, &a.AssessmentID, &a.StudentID, &a.Status, &a.TimeLimitSeconds, &a.StartedAt, &a.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}
