package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// AnswerRepository persists attempt answers.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// A row only moves forward: a batch queued earlier than the stored one is
// ignored, so a re-queued batch can never overwrite a newer answer.
const upsertAnswerSQL = `
INSERT INTO attempt_answers
	(attempt_id, question_id, selected_option_id, text_response, first_interaction_at, time_spent_seconds, saved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (attempt_id, question_id) DO UPDATE
SET selected_option_id   = EXCLUDED.selected_option_id,
	text_response        = EXCLUDED.text_response,
	first_interaction_at = COALESCE(attempt_answers.first_interaction_at, EXCLUDED.first_interaction_at),
	time_spent_seconds   = GREATEST(attempt_answers.time_spent_seconds, EXCLUDED.time_spent_seconds),
	saved_at             = EXCLUDED.saved_at,
	updated_at           = NOW()
WHERE attempt_answers.saved_at <= EXCLUDED.saved_at`

// UpsertBatch writes every answer of the batch in one round trip.
func (r *AnswerRepository) UpsertBatch(ctx context.Context, batch model.AnswerBatch) error {
	if len(batch.Answers) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, a := range batch.Answers {
		b.Queue(upsertAnswerSQL,
			batch.AttemptID, a.QuestionID, a.SelectedOptionID, a.TextResponse,
			a.FirstInteractionAt, a.TimeSpentSeconds, batch.QueuedAt,
		)
	}

	br := r.pool.SendBatch(ctx, b)
	defer br.Close()

	for _, a := range batch.Answers {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert answer %s: %w", a.QuestionID, err)
		}
	}
	return br.Close()
}

// ListByAttempt returns the persisted answers of an attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, selected_option_id, text_response, first_interaction_at, time_spent_seconds
		 FROM attempt_answers WHERE attempt_id = $1
		 ORDER BY first_interaction_at NULLS LAST, question_id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.QuestionID, &a.SelectedOptionID, &a.TextResponse, &a.FirstInteractionAt, &a.TimeSpentSeconds); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
