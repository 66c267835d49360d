package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const (
	AutosavePollTimeout  = 1 * time.Second
	AutosaveRetryDelay   = 5 * time.Second
	autosaveDrainTimeout = 30 * time.Second
)

// AnswerWriter persists one answer batch.
type AnswerWriter interface {
	UpsertBatch(ctx context.Context, batch model.AnswerBatch) error
}

// AutosaveWorker consumes persist_answers_queue and upserts each batch into PostgreSQL.
type AutosaveWorker struct {
	writer     AnswerWriter
	rdb        *redis.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(writer AnswerWriter, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		writer:     writer,
		rdb:        rdb,
		retryDelay: AutosaveRetryDelay,
		log:        log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the worker loop and returns once ctx is cancelled and the
// queue has been drained. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), autosaveDrainTimeout)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, AutosavePollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			w.sleep(ctx)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.persist(ctx, result[1]); err != nil {
		w.log.Warn().Err(err).Dur("retry_in", w.retryDelay).Msg("Persist error, requeued")
		// A requeued batch can never overwrite a newer one: the upsert is guarded by queued_at.
		if perr := w.rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, result[1]).Err(); perr != nil {
			w.log.Error().Err(perr).Msg("Requeue failed, batch lost from queue")
		}
		w.sleep(ctx)
	}
}

// persist decodes and writes one payload. Malformed payloads are dropped.
func (w *AutosaveWorker) persist(ctx context.Context, raw string) error {
	var batch model.AnswerBatch
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error, dropping payload")
		return nil
	}

	if err := w.writer.UpsertBatch(ctx, batch); err != nil {
		return err
	}

	w.log.Debug().
		Str("attempt_id", batch.AttemptID.String()).
		Int("count", len(batch.Answers)).
		Msg("Answer batch persisted")
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for ctx.Err() == nil {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				w.log.Error().Err(err).Msg("Drain pop error")
			}
			break
		}

		if err := w.persist(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			if err := w.rdb.LPush(ctx, config.WorkerKey.PersistAnswersQueue, raw).Err(); err != nil {
				w.log.Error().Err(err).Msg("Requeue failed, batch lost from queue")
			}
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

func (w *AutosaveWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
