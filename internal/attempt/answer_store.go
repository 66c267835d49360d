package attempt

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

type answerEntry struct {
	answer model.Answer
	// version increases on every mutation; drainedAt is the version that was
	// handed to the in-flight batch.
	version   uint64
	drainedAt uint64
	inFlight  bool
}

// AnswerStore is the single source of truth for the answers of one attempt.
type AnswerStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*answerEntry
	order   []uuid.UUID
	now     func() time.Time
}

func NewAnswerStore(now func() time.Time) *AnswerStore {
	if now == nil {
		now = time.Now
	}
	return &AnswerStore{
		entries: make(map[uuid.UUID]*answerEntry),
		now:     now,
	}
}

// Upsert overwrites only the fields set in v and marks the answer dirty.
// It reports whether this was the first edit of the question.
func (s *AnswerStore) Upsert(id uuid.UUID, v model.AnswerValue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		at := s.now()
		e = &answerEntry{answer: model.Answer{QuestionID: id, FirstInteractionAt: &at}}
		s.entries[id] = e
		s.order = append(s.order, id)
	}
	if v.SelectedOptionID != nil {
		opt := *v.SelectedOptionID
		e.answer.SelectedOptionID = &opt
	}
	if v.TextResponse != nil {
		text := *v.TextResponse
		e.answer.TextResponse = &text
	}
	s.touch(e)
	return !ok
}

// Restore loads answers persisted by an earlier session of the same attempt.
// Restored answers start clean; questions already in the store are kept.
func (s *AnswerStore) Restore(answers []model.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range answers {
		if _, ok := s.entries[a.QuestionID]; ok {
			continue
		}
		a = copyAnswer(a)
		a.Dirty = false
		s.entries[a.QuestionID] = &answerEntry{answer: a}
		s.order = append(s.order, a.QuestionID)
	}
}

// AddTimeSpent accumulates interaction time on an existing answer.
// It reports false when the question has no answer yet.
func (s *AnswerStore) AddTimeSpent(id uuid.UUID, seconds int) bool {
	if seconds <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.answer.TimeSpentSeconds += seconds
	s.touch(e)
	return true
}

func (s *AnswerStore) touch(e *answerEntry) {
	e.version++
	e.answer.Dirty = true
}

// DrainDirty returns the dirty answers that are not already in flight and
// marks them in flight. Their dirty flag stays set until MarkPersisted.
func (s *AnswerStore) DrainDirty() []model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch []model.Answer
	for _, id := range s.order {
		e := s.entries[id]
		if !e.answer.Dirty || e.inFlight {
			continue
		}
		e.inFlight = true
		e.drainedAt = e.version
		batch = append(batch, copyAnswer(e.answer))
	}
	return batch
}

// MarkPersisted clears dirty for the given questions unless they were edited
// after being drained. Unknown or already clean ids are ignored.
func (s *AnswerStore) MarkPersisted(ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		e, ok := s.entries[id]
		if !ok || !e.inFlight {
			continue
		}
		e.inFlight = false
		if e.version == e.drainedAt {
			e.answer.Dirty = false
		}
	}
}

// Release returns drained answers to the dirty pool after a failed persist.
func (s *AnswerStore) Release(ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			e.inFlight = false
		}
	}
}

// Snapshot returns a copy of every answer in first-edit order.
func (s *AnswerStore) Snapshot() []model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Answer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyAnswer(s.entries[id].answer))
	}
	return out
}

func (s *AnswerStore) Get(id uuid.UUID) (model.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return model.Answer{}, false
	}
	return copyAnswer(e.answer), true
}

func copyAnswer(a model.Answer) model.Answer {
	if a.SelectedOptionID != nil {
		v := *a.SelectedOptionID
		a.SelectedOptionID = &v
	}
	if a.TextResponse != nil {
		v := *a.TextResponse
		a.TextResponse = &v
	}
	if a.FirstInteractionAt != nil {
		v := *a.FirstInteractionAt
		a.FirstInteractionAt = &v
	}
	return a
}

func answerIDs(answers []model.Answer) []uuid.UUID {
	ids := make([]uuid.UUID, len(answers))
	for i, a := range answers {
		ids[i] = a.QuestionID
	}
	return ids
}
