package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// QuestionRepository reads published assessments and their questions.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetQuestionSet loads a published assessment with its questions ordered by order_num.
func (r *QuestionRepository) GetQuestionSet(ctx context.Context, assessmentID uuid.UUID) (*model.QuestionSet, error) {
	set := &model.QuestionSet{AssessmentID: assessmentID}
	err := r.pool.QueryRow(ctx,
		`SELECT title, time_limit_seconds FROM assessments
		 WHERE id = $1 AND status = $2`, assessmentID, model.AssessmentStatusPublished,
	).Scan(&set.Title, &set.TimeLimitSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, category, question_type, options, marks, order_num
		 FROM questions WHERE assessment_id = $1
		 ORDER BY order_num, id`, assessmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Category, &q.Type, &q.Options, &q.Marks, &q.OrderNum); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		set.Questions = append(set.Questions, q)
	}
	return set, rows.Err()
}

// ListPublishedIDs returns the ids of every published assessment.
func (r *QuestionRepository) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM assessments WHERE status = $1 ORDER BY created_at`, model.AssessmentStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateAssessment inserts an assessment and its questions in one transaction.
// Used by the seeding tool.
func (r *QuestionRepository) CreateAssessment(ctx context.Context, set *model.QuestionSet, status model.AssessmentStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO assessments (title, time_limit_seconds, status)
		 VALUES ($1, $2, $3) RETURNING id`,
		set.Title, set.TimeLimitSeconds, status,
	).Scan(&set.AssessmentID); err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}

	for i := range set.Questions {
		q := &set.Questions[i]
		if q.Options == nil {
			q.Options = []model.Option{}
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO questions (assessment_id, question_text, category, question_type, options, marks, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			set.AssessmentID, q.Text, q.Category, q.Type, q.Options, q.Marks, q.OrderNum,
		).Scan(&q.ID); err != nil {
			return fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}

	return tx.Commit(ctx)
}
