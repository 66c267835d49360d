package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/attempt"
)

var (
	ErrSessionNotFound  = errors.New("no live session for this attempt")
	ErrSessionForbidden = errors.New("attempt belongs to another student")
)

type liveSession struct {
	ctrl         *attempt.Controller
	assessmentID uuid.UUID
	studentID    int
}

type ownerKey struct {
	assessmentID uuid.UUID
	studentID    int
}

// SessionManager owns the live attempt controllers of this process, keyed by
// attempt id. A student has at most one live session per assessment.
type SessionManager struct {
	deps     attempt.Dependencies
	settings attempt.Settings
	base     zerolog.Logger
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*liveSession
	owners   map[ownerKey]*liveSession
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(deps attempt.Dependencies, settings attempt.Settings, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		deps:     deps,
		settings: settings,
		base:     log,
		log:      log.With().Str("component", "session_manager").Logger(),
		sessions: make(map[uuid.UUID]*liveSession),
		owners:   make(map[ownerKey]*liveSession),
	}
}

// Open starts or resumes the attempt of a student and registers its
// controller. A session the student still holds for the same assessment is
// closed first, so its answers are saved before the new one resumes them. On
// failure nothing is registered and the controller is disposed.
func (m *SessionManager) Open(ctx context.Context, assessmentID uuid.UUID, studentID int) (*attempt.Controller, error) {
	key := ownerKey{assessmentID: assessmentID, studentID: studentID}

	m.mu.Lock()
	prev := m.owners[key]
	if prev != nil {
		m.removeLocked(prev)
	}
	m.mu.Unlock()
	if prev != nil {
		m.release(ctx, prev, "Session replaced")
	}

	ctrl := attempt.NewController(m.deps, m.settings, m.base)
	a, err := ctrl.Start(ctx, assessmentID, studentID)
	if err != nil {
		ctrl.Dispose()
		return nil, err
	}

	s := &liveSession{ctrl: ctrl, assessmentID: assessmentID, studentID: studentID}
	m.mu.Lock()
	if old := m.owners[key]; old != nil {
		// Lost a race with a concurrent Open of the same student.
		m.removeLocked(old)
		defer m.release(ctx, old, "Session replaced")
	}
	m.sessions[a.ID] = s
	m.owners[key] = s
	live := len(m.sessions)
	m.mu.Unlock()

	m.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("student_id", studentID).
		Bool("resumed", ctrl.Resumed()).
		Int("live_sessions", live).
		Msg("Session opened")
	return ctrl, nil
}

// Get returns the controller of a live attempt owned by studentID.
func (m *SessionManager) Get(attemptID uuid.UUID, studentID int) (*attempt.Controller, error) {
	m.mu.Lock()
	s, ok := m.sessions[attemptID]
	m.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.studentID != studentID {
		return nil, ErrSessionForbidden
	}
	return s.ctrl, nil
}

// Close unregisters ctrl if it is still the live session of its attempt and
// closes it. Answers still dirty get one last flush, so the attempt can be
// resumed later. Until that flush is done a reopen by the same student waits
// for it. Closing a replaced or unknown controller only disposes it.
func (m *SessionManager) Close(ctx context.Context, ctrl *attempt.Controller) {
	id := ctrl.Attempt().ID

	m.mu.Lock()
	s, ok := m.sessions[id]
	current := ok && s.ctrl == ctrl
	if current {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !current {
		ctrl.Dispose()
		return
	}
	m.release(ctx, s, "Session closed")

	m.mu.Lock()
	m.removeLocked(s)
	m.mu.Unlock()
}

func (m *SessionManager) removeLocked(s *liveSession) {
	id := s.ctrl.Attempt().ID
	if cur, ok := m.sessions[id]; ok && cur == s {
		delete(m.sessions, id)
	}
	key := ownerKey{assessmentID: s.assessmentID, studentID: s.studentID}
	if cur, ok := m.owners[key]; ok && cur == s {
		delete(m.owners, key)
	}
}

func (m *SessionManager) release(ctx context.Context, s *liveSession, msg string) {
	log := m.log.With().Str("attempt_id", s.ctrl.Attempt().ID.String()).Logger()
	if n, err := s.ctrl.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Final flush on close failed")
	} else if n > 0 {
		log.Debug().Int("count", n).Msg("Flushed answers on close")
	}
	log.Info().Str("status", string(s.ctrl.Attempt().Status)).Msg(msg)
}

// Shutdown closes every live session.
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	live := make([]*liveSession, 0, len(m.owners))
	for _, s := range m.owners {
		m.removeLocked(s)
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		m.release(ctx, s, "Session closed")
	}
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
