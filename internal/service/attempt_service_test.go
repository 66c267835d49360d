package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptServiceStart(t *testing.T) {
	tests := []struct {
		name      string
		createErr error
		want      error
	}{
		{"created", nil, nil},
		{"assessment not published", repository.ErrNotFound, ErrAssessmentUnavailable},
		{"running attempt submitted meanwhile", repository.ErrAttemptExists, ErrAttemptInProgress},
		{"database down", errDown, errDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeAttemptStore{createErr: tt.createErr}
			svc := NewAttemptService(store, &fakeAnswerLister{}, nil, 900, zerolog.Nop())

			started, err := svc.StartAttempt(context.Background(), uuid.New(), 7)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				assert.Equal(t, uuid.Nil, started.ID)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, started.ID)
			assert.False(t, started.Resumed)
			assert.Equal(t, 900, started.TimeLimitSeconds)
			assert.False(t, started.StartedAt.IsZero())
			assert.Equal(t, []int{900}, store.limits)
		})
	}
}

func TestAttemptServiceStartResumesActiveAttempt(t *testing.T) {
	assessmentID := uuid.New()
	q1, q2 := uuid.New(), uuid.New()
	startedAt := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	store := &fakeAttemptStore{now: func() time.Time { return startedAt }}
	persisted := &fakeAnswerLister{answers: []model.Answer{{QuestionID: q1, SelectedOptionID: strPtr("a")}}}
	buffer := &fakeBuffer{answers: map[uuid.UUID]model.Answer{
		q2: {QuestionID: q2, TextResponse: strPtr("belum selesai")},
	}}
	svc := NewAttemptService(store, persisted, buffer, 900, zerolog.Nop())

	first, err := svc.StartAttempt(context.Background(), assessmentID, 7)
	require.NoError(t, err)

	again, err := svc.StartAttempt(context.Background(), assessmentID, 7)
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, startedAt, again.StartedAt)
	assert.Equal(t, 900, again.TimeLimitSeconds)
	require.Len(t, again.Answers, 2)
	assert.Equal(t, "a", *again.Answers[0].SelectedOptionID)
	assert.Equal(t, "belum selesai", *again.Answers[1].TextResponse)

	// Another student, or the same one after submitting, gets a fresh attempt.
	other, err := svc.StartAttempt(context.Background(), assessmentID, 8)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	require.NoError(t, svc.SubmitAttempt(context.Background(), first.ID))
	next, err := svc.StartAttempt(context.Background(), assessmentID, 7)
	require.NoError(t, err)
	assert.False(t, next.Resumed)
	assert.NotEqual(t, first.ID, next.ID)
}

func TestAttemptServiceResumeListFailure(t *testing.T) {
	store := &fakeAttemptStore{}
	svc := NewAttemptService(store, &fakeAnswerLister{err: errDown}, nil, 900, zerolog.Nop())
	assessmentID := uuid.New()

	_, err := svc.StartAttempt(context.Background(), assessmentID, 7)
	require.NoError(t, err)
	_, err = svc.StartAttempt(context.Background(), assessmentID, 7)
	assert.ErrorIs(t, err, errDown)
}

func TestAttemptServiceSubmitIsRepeatable(t *testing.T) {
	store := &fakeAttemptStore{}
	svc := NewAttemptService(store, &fakeAnswerLister{}, nil, 900, zerolog.Nop())
	id := uuid.New()

	require.NoError(t, svc.SubmitAttempt(context.Background(), id))
	require.NoError(t, svc.SubmitAttempt(context.Background(), id))
	assert.Equal(t, []uuid.UUID{id, id}, store.submitted)

	store.submitErr = repository.ErrNotFound
	assert.ErrorIs(t, svc.SubmitAttempt(context.Background(), id), ErrAttemptNotFound)

	store.submitErr = errDown
	assert.ErrorIs(t, svc.SubmitAttempt(context.Background(), id), errDown)
}

func TestAttemptServiceGetRecordOverlaysBuffer(t *testing.T) {
	id := uuid.New()
	q1, q2, q3 := uuid.New(), uuid.New(), uuid.New()
	store := &fakeAttemptStore{record: &model.Attempt{ID: id, Status: model.AttemptStatusActive}}
	persisted := &fakeAnswerLister{answers: []model.Answer{
		{QuestionID: q1, SelectedOptionID: strPtr("a")},
		{QuestionID: q2, TextResponse: strPtr("draft")},
	}}
	buffer := &fakeBuffer{answers: map[uuid.UUID]model.Answer{
		q2: {QuestionID: q2, TextResponse: strPtr("final")},
		q3: {QuestionID: q3, SelectedOptionID: strPtr("b")},
	}}
	svc := NewAttemptService(store, persisted, buffer, 900, zerolog.Nop())

	a, answers, err := svc.GetRecord(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)
	require.Len(t, answers, 3)
	assert.Equal(t, "a", *answers[0].SelectedOptionID)
	assert.Equal(t, "final", *answers[1].TextResponse)
	assert.Equal(t, q3, answers[2].QuestionID)

	buffer.err = errDown
	_, answers, err = svc.GetRecord(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "draft", *answers[1].TextResponse)

	_, _, err = svc.GetRecord(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}
