package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AutoSaveScheduler periodically flushes dirty answers through the batch
// recorder. It is best-effort: failures are logged and retried next cycle.
type AutoSaveScheduler struct {
	attemptID uuid.UUID
	store     *AnswerStore
	recorder  BatchRecorder
	interval  time.Duration
	timeout   time.Duration
	log       zerolog.Logger

	// flushing is held for the whole of one cycle, network call included.
	flushing sync.Mutex

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAutoSaveScheduler creates a scheduler for one attempt. timeout bounds
// each batch persist call.
func NewAutoSaveScheduler(attemptID uuid.UUID, store *AnswerStore, recorder BatchRecorder, interval, timeout time.Duration, log zerolog.Logger) *AutoSaveScheduler {
	return &AutoSaveScheduler{
		attemptID: attemptID,
		store:     store,
		recorder:  recorder,
		interval:  interval,
		timeout:   timeout,
		log:       log.With().Str("component", "autosave").Logger(),
	}
}

// Start runs a cycle every interval until Stop. Calling Start twice, or after
// Stop, is a no-op.
func (s *AutoSaveScheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil || s.stopped {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// A cycle already on the network is not bound to the
				// scheduling context; Stop waits for it instead.
				cycleCtx, cycleCancel := context.WithTimeout(context.Background(), s.timeout)
				_, _ = s.RunCycle(cycleCtx)
				cycleCancel()
			}
		}
	}()
}

// RunCycle performs one flush. It returns the number of answers persisted.
// If another cycle is still in flight, or the scheduler is stopped, it skips
// and returns zero. Errors have already been logged when returned.
func (s *AutoSaveScheduler) RunCycle(ctx context.Context) (int, error) {
	if !s.flushing.TryLock() {
		s.log.Debug().Str("attempt_id", s.attemptID.String()).Msg("Previous cycle still in flight, skipping")
		return 0, nil
	}
	defer s.flushing.Unlock()

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return 0, nil
	}
	return s.cycle(ctx)
}

// FlushFinal persists what is still dirty when the session closes. It waits
// for an in-flight cycle instead of skipping and also runs after Stop.
func (s *AutoSaveScheduler) FlushFinal(ctx context.Context) (int, error) {
	s.flushing.Lock()
	defer s.flushing.Unlock()
	return s.cycle(ctx)
}

func (s *AutoSaveScheduler) cycle(ctx context.Context) (int, error) {
	batch := s.store.DrainDirty()
	if len(batch) == 0 {
		return 0, nil
	}
	ids := answerIDs(batch)

	if err := s.recorder.RecordBatch(ctx, s.attemptID, batch); err != nil {
		s.store.Release(ids)
		perr := &PersistError{AttemptID: s.attemptID, Count: len(batch), Err: err}
		s.log.Warn().Err(perr).
			Str("attempt_id", s.attemptID.String()).
			Int("count", len(batch)).
			Msg("Autosave failed, retrying next cycle")
		return 0, perr
	}

	s.store.MarkPersisted(ids)
	s.log.Debug().
		Str("attempt_id", s.attemptID.String()).
		Int("count", len(batch)).
		Msg("Autosaved answers")
	return len(batch), nil
}

// Stop prevents any new cycle from starting and waits for an in-flight cycle
// to finish. Safe to call repeatedly.
func (s *AutoSaveScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	// Wait out a cycle started through RunCycle directly.
	s.flushing.Lock()
	s.flushing.Unlock()
}
