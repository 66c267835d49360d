package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// AnswerRecorder buffers answer batches in Redis and queues them for the
// persistence worker. Writes are keyed by question id, so repeating a batch
// is harmless.
type AnswerRecorder struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger
}

// NewAnswerRecorder creates a new AnswerRecorder. ttl bounds the lifetime of
// an attempt's answer hash.
func NewAnswerRecorder(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *AnswerRecorder {
	return &AnswerRecorder{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
		log: log.With().Str("component", "answer_recorder").Logger(),
	}
}

// RecordBatch writes the answers to the attempt hash and pushes one batch onto
// the persist queue, in a single pipeline.
func (r *AnswerRecorder) RecordBatch(ctx context.Context, attemptID uuid.UUID, answers []model.Answer) error {
	if len(answers) == 0 {
		return nil
	}

	batch := model.AnswerBatch{
		AttemptID: attemptID,
		Answers:   make([]model.Answer, len(answers)),
		QueuedAt:  r.now().UTC(),
	}
	fields := make(map[string]interface{}, len(answers))
	for i, a := range answers {
		a.Dirty = false
		batch.Answers[i] = a

		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal answer %s: %w", a.QuestionID, err)
		}
		fields[a.QuestionID.String()] = raw
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	key := config.CacheKey.AttemptAnswersKey(attemptID.String())
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, r.ttl)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record batch: %w", err)
	}

	r.log.Debug().
		Str("attempt_id", attemptID.String()).
		Int("count", len(answers)).
		Msg("Answer batch queued")
	return nil
}

// Buffered returns the latest answers of an attempt held in Redis.
func (r *AnswerRecorder) Buffered(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]model.Answer, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]model.Answer, len(raw))
	for field, value := range raw {
		id, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		var a model.Answer
		if err := json.Unmarshal([]byte(value), &a); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", field, err)
		}
		out[id] = a
	}
	return out, nil
}
