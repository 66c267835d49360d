package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// SubmissionCoordinator is the only path to a terminal attempt state. It
// runs flush-then-submit at most once at a time and never twice successfully.
type SubmissionCoordinator struct {
	state     *state
	store     *AnswerStore
	recorder  BatchRecorder
	submitter Submitter
	timeout   time.Duration
	now       func() time.Time
	log       zerolog.Logger

	hooks coordinatorHooks

	mu   sync.Mutex
	runs int
}

type coordinatorHooks struct {
	// freeze runs after the Submitting transition and before the flush.
	freeze func()
	// finish runs after every terminal transition, success or failure.
	finish func(a model.Attempt, err error)
}

func newSubmissionCoordinator(st *state, store *AnswerStore, recorder BatchRecorder, submitter Submitter, timeout time.Duration, now func() time.Time, hooks coordinatorHooks, log zerolog.Logger) *SubmissionCoordinator {
	return &SubmissionCoordinator{
		state:     st,
		store:     store,
		recorder:  recorder,
		submitter: submitter,
		timeout:   timeout,
		now:       now,
		hooks:     hooks,
		log:       log.With().Str("component", "submission").Logger(),
	}
}

// Submit moves Active or Failed to Submitting and runs the flush and submit
// steps. Any other status is a no-op that returns the current record.
func (c *SubmissionCoordinator) Submit(ctx context.Context, reason model.SubmitReason) (model.Attempt, error) {
	a, ok := c.state.transition(model.AttemptStatusSubmitting, model.AttemptStatusActive, model.AttemptStatusFailed)
	if !ok {
		c.log.Debug().
			Str("status", string(a.Status)).
			Str("reason", string(reason)).
			Msg("Submission already in progress or finished, ignoring")
		return a, nil
	}
	c.state.update(func(a *model.Attempt) { a.SubmitReason = &reason })

	c.mu.Lock()
	c.runs++
	retry := c.runs > 1
	c.mu.Unlock()

	if c.hooks.freeze != nil {
		c.hooks.freeze()
	}

	log := c.log.With().
		Str("attempt_id", a.ID.String()).
		Str("reason", string(reason)).
		Bool("retry", retry).
		Logger()
	log.Info().Msg("Submitting attempt")

	if err := c.flush(ctx, a.ID, retry); err != nil {
		log.Error().Err(err).Msg("Final flush failed")
		return c.fail(err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.submitter.SubmitAttempt(submitCtx, a.ID); err != nil {
		serr := &SubmitError{AttemptID: a.ID, Err: err}
		log.Error().Err(err).Msg("Submission failed")
		return c.fail(serr)
	}

	done := c.state.finish(model.AttemptStatusSubmitted, c.now(), nil)
	log.Info().Msg("Attempt submitted")
	if c.hooks.finish != nil {
		c.hooks.finish(done, nil)
	}
	return done, nil
}

// flush drains the dirty set and persists it. A retry sends the full snapshot
// since the previous run's outcome on the server is unknown.
func (c *SubmissionCoordinator) flush(ctx context.Context, attemptID uuid.UUID, retry bool) error {
	drained := c.store.DrainDirty()
	ids := answerIDs(drained)

	batch := drained
	if retry {
		batch = c.store.Snapshot()
	}
	if len(batch) == 0 {
		return nil
	}

	flushCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.recorder.RecordBatch(flushCtx, attemptID, batch); err != nil {
		c.store.Release(ids)
		return &PersistError{AttemptID: attemptID, Count: len(batch), Err: err}
	}
	c.store.MarkPersisted(ids)
	return nil
}

func (c *SubmissionCoordinator) fail(err error) (model.Attempt, error) {
	failed := c.state.finish(model.AttemptStatusFailed, time.Time{}, err)
	if c.hooks.finish != nil {
		c.hooks.finish(failed, err)
	}
	return failed, err
}
