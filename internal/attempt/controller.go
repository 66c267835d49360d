package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// AttemptStarter creates the attempt record on the backend, or hands back the
// attempt the student already has running.
type AttemptStarter interface {
	StartAttempt(ctx context.Context, assessmentID uuid.UUID, studentID int) (StartedAttempt, error)
}

// StartedAttempt is the backend record a session runs on. A resumed attempt
// carries its original start time and the answers saved so far.
type StartedAttempt struct {
	ID               uuid.UUID
	StartedAt        time.Time
	TimeLimitSeconds int
	Answers          []model.Answer
	Resumed          bool
}

// QuestionProvider loads the question set of an assessment.
type QuestionProvider interface {
	FetchQuestions(ctx context.Context, assessmentID uuid.UUID) (*model.QuestionSet, error)
}

// BatchRecorder persists a batch of answers. Must tolerate duplicates.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, attemptID uuid.UUID, answers []model.Answer) error
}

// Submitter finalizes an attempt. Must be idempotent.
type Submitter interface {
	SubmitAttempt(ctx context.Context, attemptID uuid.UUID) error
}

// EventPublisher receives lifecycle events. Optional.
type EventPublisher interface {
	PublishAttemptEvent(ctx context.Context, ev model.AttemptEvent) error
}

// Dependencies are the collaborators of a Controller. Events may be nil.
type Dependencies struct {
	Starter   AttemptStarter
	Questions QuestionProvider
	Recorder  BatchRecorder
	Submitter Submitter
	Events    EventPublisher
}

// Settings tune the timers of a Controller.
type Settings struct {
	TickInterval            time.Duration
	AutosaveInterval        time.Duration
	DefaultTimeLimitSeconds int
	RequestTimeout          time.Duration
	Now                     func() time.Time
}

func DefaultSettings() Settings {
	return Settings{
		TickInterval:            time.Second,
		AutosaveInterval:        30 * time.Second,
		DefaultTimeLimitSeconds: 3600,
		RequestTimeout:          10 * time.Second,
		Now:                     time.Now,
	}
}

type NotificationKind string

const (
	NotificationTick   NotificationKind = "tick"
	NotificationStatus NotificationKind = "status"
	NotificationClosed NotificationKind = "closed"
)

// Notification is pushed to listeners on every tick and status change.
type Notification struct {
	Kind    NotificationKind
	Attempt model.Attempt
}

// Listener must not block and must not call Dispose or Close from inside a
// notification.
type Listener func(Notification)

// Controller owns one attempt session: its state machine, answers, flags,
// countdown, autosave scheduler and submission coordinator.
type Controller struct {
	deps     Dependencies
	settings Settings
	log      zerolog.Logger

	state   *state
	answers *AnswerStore
	flags   *FlagSet

	// Assigned once by Start before the status becomes Active.
	catalog     *Catalog
	countdown   *Countdown
	autosave    *AutoSaveScheduler
	coordinator *SubmissionCoordinator

	lifecycle sync.Mutex
	disposed  bool
	resumed   bool
	closeOnce sync.Once

	focusMu   sync.Mutex
	focused   uuid.UUID
	hasFocus  bool
	focusedAt time.Time
	pending   map[uuid.UUID]int

	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int

	expiries sync.WaitGroup
}

// NewController creates a Controller in NotStarted status.
func NewController(deps Dependencies, settings Settings, log zerolog.Logger) *Controller {
	def := DefaultSettings()
	if settings.TickInterval <= 0 {
		settings.TickInterval = def.TickInterval
	}
	if settings.AutosaveInterval <= 0 {
		settings.AutosaveInterval = def.AutosaveInterval
	}
	if settings.DefaultTimeLimitSeconds <= 0 {
		settings.DefaultTimeLimitSeconds = def.DefaultTimeLimitSeconds
	}
	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = def.RequestTimeout
	}
	if settings.Now == nil {
		settings.Now = def.Now
	}

	return &Controller{
		deps:      deps,
		settings:  settings,
		log:       log.With().Str("component", "attempt_controller").Logger(),
		state:     newState(),
		answers:   NewAnswerStore(settings.Now),
		flags:     NewFlagSet(),
		pending:   make(map[uuid.UUID]int),
		listeners: make(map[int]Listener),
	}
}

// Start creates the attempt, loads the catalog and starts both timers. When
// the backend hands back a running attempt, the session picks it up with the
// time already spent deducted and its saved answers restored. A resumed
// attempt past its deadline is submitted right away.
func (c *Controller) Start(ctx context.Context, assessmentID uuid.UUID, studentID int) (model.Attempt, error) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.disposed {
		return c.state.get(), ErrDisposed
	}
	if c.state.status() != model.AttemptStatusNotStarted {
		return c.state.get(), ErrAlreadyStarted
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.settings.RequestTimeout)
	defer cancel()

	started, err := c.deps.Starter.StartAttempt(reqCtx, assessmentID, studentID)
	if err != nil {
		return c.failStart(assessmentID, studentID, err)
	}

	set, err := c.deps.Questions.FetchQuestions(reqCtx, assessmentID)
	if err != nil {
		return c.failStart(assessmentID, studentID, err)
	}
	catalog, err := NewCatalog(set)
	if err != nil {
		return c.failStart(assessmentID, studentID, err)
	}

	attemptID := started.ID
	c.log = c.log.With().
		Str("attempt_id", attemptID.String()).
		Str("assessment_id", assessmentID.String()).
		Int("student_id", studentID).
		Logger()

	limit := started.TimeLimitSeconds
	if limit <= 0 {
		limit = catalog.TimeLimit(c.settings.DefaultTimeLimitSeconds)
	}
	now := c.settings.Now()
	startedAt := started.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	remaining := limit - int(now.Sub(startedAt)/time.Second)
	remaining = max(0, min(remaining, limit))

	var restored []model.Answer
	for _, ans := range started.Answers {
		if _, ok := catalog.Get(ans.QuestionID); ok {
			restored = append(restored, ans)
		}
	}
	c.answers.Restore(restored)

	c.catalog = catalog
	c.resumed = started.Resumed
	c.countdown = NewCountdown(remaining, c.onTick, c.onExpire)
	c.autosave = NewAutoSaveScheduler(attemptID, c.answers, c.deps.Recorder, c.settings.AutosaveInterval, c.settings.RequestTimeout, c.log)
	c.coordinator = newSubmissionCoordinator(c.state, c.answers, c.deps.Recorder, c.deps.Submitter, c.settings.RequestTimeout, c.settings.Now,
		coordinatorHooks{freeze: c.freeze, finish: c.finish}, c.log)

	a := c.state.update(func(a *model.Attempt) {
		a.ID = attemptID
		a.AssessmentID = assessmentID
		a.StudentID = studentID
		a.StartedAt = &startedAt
		a.TimeLimitSeconds = limit
		a.SecondsRemaining = remaining
		a.LastError = ""
		a.Status = model.AttemptStatusActive
	})

	c.countdown.Start(c.settings.TickInterval)
	c.autosave.Start()

	c.notify(NotificationStatus, a)
	if !started.Resumed {
		c.log.Info().
			Int("time_limit_seconds", limit).
			Int("questions", catalog.Len()).
			Msg("Attempt started")
		c.publish(model.AttemptEventStarted, a, nil)
		return a, nil
	}

	c.log.Info().
		Int("seconds_remaining", remaining).
		Int("restored_answers", len(restored)).
		Msg("Attempt resumed")
	c.publish(model.AttemptEventResumed, a, nil)
	if remaining == 0 {
		// Fires onExpire; the submission waits for this call to return.
		c.countdown.Tick()
	}
	return a, nil
}

func (c *Controller) failStart(assessmentID uuid.UUID, studentID int, err error) (model.Attempt, error) {
	serr := &StartError{AssessmentID: assessmentID, StudentID: studentID, Err: err}
	a := c.state.update(func(a *model.Attempt) {
		a.AssessmentID = assessmentID
		a.StudentID = studentID
		a.Status = model.AttemptStatusFailed
		a.LastError = serr.Error()
	})
	c.log.Error().Err(err).
		Str("assessment_id", assessmentID.String()).
		Int("student_id", studentID).
		Msg("Attempt start failed")
	return a, serr
}

// RecordAnswer stores an edit. Rejected unless the attempt is Active.
func (c *Controller) RecordAnswer(questionID uuid.UUID, v model.AnswerValue) error {
	return c.state.whileActive(func() error {
		if err := c.catalog.Validate(questionID, v); err != nil {
			return err
		}
		c.answers.Upsert(questionID, v)
		c.focus(questionID)
		return nil
	})
}

// ToggleFlag flips the review flag of a question and returns the new value.
func (c *Controller) ToggleFlag(questionID uuid.UUID) (bool, error) {
	var flagged bool
	err := c.state.whileActive(func() error {
		if _, ok := c.catalog.Get(questionID); !ok {
			return ErrUnknownQuestion
		}
		flagged = c.flags.Toggle(questionID)
		return nil
	})
	return flagged, err
}

// FocusQuestion starts the interaction timer of a question and stops the
// previous one.
func (c *Controller) FocusQuestion(questionID uuid.UUID) error {
	return c.state.whileActive(func() error {
		if _, ok := c.catalog.Get(questionID); !ok {
			return ErrUnknownQuestion
		}
		c.focus(questionID)
		return nil
	})
}

// RequestSubmit is the single submission entry point for both triggers.
// While a submission runs or after it succeeded, calls are no-ops.
func (c *Controller) RequestSubmit(ctx context.Context, reason model.SubmitReason) (model.Attempt, error) {
	c.lifecycle.Lock()
	coordinator := c.coordinator
	c.lifecycle.Unlock()

	if coordinator == nil {
		return c.state.get(), ErrAttemptNotActive
	}
	return coordinator.Submit(ctx, reason)
}

// Flush runs one autosave cycle immediately. Used when the student leaves.
func (c *Controller) Flush(ctx context.Context) (int, error) {
	if c.state.status() != model.AttemptStatusActive {
		return 0, ErrAttemptNotActive
	}
	return c.autosave.RunCycle(ctx)
}

// Dispose stops the countdown and the autosave scheduler. Later edits fail
// with ErrDisposed. It is safe on every exit path and idempotent. An in-flight
// submission is left to finish.
func (c *Controller) Dispose() {
	c.dispose()
}

// Close disposes the session and persists the answers still dirty, so the
// next session of the same attempt resumes from them. It returns the number
// of answers written. A concurrent Close waits for the first one to finish;
// later calls write nothing.
func (c *Controller) Close(ctx context.Context) (int, error) {
	var (
		n   int
		err error
	)
	c.closeOnce.Do(func() { n, err = c.close(ctx) })
	return n, err
}

func (c *Controller) close(ctx context.Context) (int, error) {
	autosave, ok := c.dispose()
	if !ok || autosave == nil {
		return 0, nil
	}
	switch c.state.status() {
	case model.AttemptStatusActive, model.AttemptStatusFailed:
		return autosave.FlushFinal(ctx)
	}
	return 0, nil
}

// dispose reports false when the session was already disposed.
func (c *Controller) dispose() (*AutoSaveScheduler, bool) {
	c.lifecycle.Lock()
	if c.disposed {
		c.lifecycle.Unlock()
		return nil, false
	}
	c.disposed = true
	c.state.close()
	c.stopTimers()
	autosave := c.autosave
	c.lifecycle.Unlock()

	c.log.Debug().Msg("Attempt session disposed")
	c.notify(NotificationClosed, c.state.get())
	return autosave, true
}

// Wait blocks until a timer-triggered submission has returned.
func (c *Controller) Wait() {
	c.expiries.Wait()
}

func (c *Controller) stopTimers() {
	if c.countdown != nil {
		c.countdown.Stop()
	}
	if c.autosave != nil {
		c.autosave.Stop()
	}
}

// Resumed reports whether Start picked up an attempt from an earlier session.
func (c *Controller) Resumed() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.resumed
}

// Attempt returns the current Attempt record.
func (c *Controller) Attempt() model.Attempt {
	return c.state.get()
}

// Questions returns the catalog in order, or nil before Start.
func (c *Controller) Questions() []model.Question {
	if c.state.status() == model.AttemptStatusNotStarted || c.catalog == nil {
		return nil
	}
	return c.catalog.Questions()
}

// Answers returns a copy of every recorded answer.
func (c *Controller) Answers() []model.Answer {
	return c.answers.Snapshot()
}

// View builds the read model for the UI layer.
func (c *Controller) View() model.AttemptView {
	a := c.state.get()
	view := model.AttemptView{
		Attempt:   a,
		Timer:     FormatClock(a.SecondsRemaining),
		Questions: []model.QuestionState{},
	}
	if a.Status == model.AttemptStatusNotStarted || c.catalog == nil {
		return view
	}

	for _, q := range c.catalog.Questions() {
		qs := model.QuestionState{QuestionID: q.ID, Flagged: c.flags.Has(q.ID)}
		if ans, ok := c.answers.Get(q.ID); ok {
			qs.Answered = ans.SelectedOptionID != nil || ans.TextResponse != nil
			qs.Dirty = ans.Dirty
			qs.TimeSpentSeconds = ans.TimeSpentSeconds
		}
		if qs.Answered {
			view.AnsweredCount++
		}
		if qs.Flagged {
			view.FlaggedCount++
		}
		view.Questions = append(view.Questions, qs)
	}
	return view
}

// Subscribe registers a listener and returns its cancel function.
func (c *Controller) Subscribe(l Listener) func() {
	c.listenersMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Controller) notify(kind NotificationKind, a model.Attempt) {
	c.listenersMu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.listenersMu.Unlock()

	n := Notification{Kind: kind, Attempt: a}
	for _, l := range ls {
		l(n)
	}
}

func (c *Controller) onTick(remaining int) {
	a := c.state.setRemaining(remaining)
	c.notify(NotificationTick, a)
}

// onExpire runs on the countdown goroutine; the submission runs on its own
// so the countdown keeps ticking while the network call is pending.
func (c *Controller) onExpire() {
	c.log.Info().Msg("Time limit reached, submitting")
	c.expiries.Add(1)
	go func() {
		defer c.expiries.Done()
		_, _ = c.RequestSubmit(context.Background(), model.SubmitReasonTimerExpired)
	}()
}

// freeze runs once the status is Submitting: no new autosave cycle may start
// and the open interaction span is closed into the answer store.
func (c *Controller) freeze() {
	c.autosave.Stop()

	c.focusMu.Lock()
	c.closeSpanLocked()
	c.focusMu.Unlock()

	c.notify(NotificationStatus, c.state.get())
}

func (c *Controller) finish(a model.Attempt, err error) {
	c.countdown.Stop()
	c.autosave.Stop()

	c.notify(NotificationStatus, a)
	if err != nil {
		c.publish(model.AttemptEventFailed, a, err)
		return
	}
	c.publish(model.AttemptEventSubmitted, a, nil)
}

func (c *Controller) focus(id uuid.UUID) {
	c.focusMu.Lock()
	defer c.focusMu.Unlock()

	if !c.hasFocus || c.focused != id {
		c.closeSpanLocked()
		c.focused = id
		c.focusedAt = c.settings.Now()
		c.hasFocus = true
	}
	if secs := c.pending[id]; secs > 0 && c.answers.AddTimeSpent(id, secs) {
		delete(c.pending, id)
	}
}

func (c *Controller) closeSpanLocked() {
	if !c.hasFocus {
		return
	}
	c.hasFocus = false
	secs := int(c.settings.Now().Sub(c.focusedAt) / time.Second)
	if secs <= 0 {
		return
	}
	if !c.answers.AddTimeSpent(c.focused, secs) {
		c.pending[c.focused] += secs
	}
}

func (c *Controller) publish(t model.AttemptEventType, a model.Attempt, err error) {
	if c.deps.Events == nil {
		return
	}
	ev := model.AttemptEvent{
		Type:         t,
		AttemptID:    a.ID,
		AssessmentID: a.AssessmentID,
		StudentID:    a.StudentID,
		Status:       a.Status,
		Reason:       a.SubmitReason,
		OccurredAt:   c.settings.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.settings.RequestTimeout)
	defer cancel()
	if perr := c.deps.Events.PublishAttemptEvent(ctx, ev); perr != nil {
		c.log.Warn().Err(perr).Str("event", string(t)).Msg("Publish attempt event failed")
	}
}
