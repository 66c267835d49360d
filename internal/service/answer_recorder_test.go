package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerRecorderRecordBatch(t *testing.T) {
	mr, rdb := newTestRedis(t)
	rec := NewAnswerRecorder(rdb, 2*time.Hour, zerolog.Nop())
	queuedAt := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	rec.now = func() time.Time { return queuedAt }

	attemptID, q1, q2 := uuid.New(), uuid.New(), uuid.New()
	answers := []model.Answer{
		{QuestionID: q1, SelectedOptionID: strPtr("a"), Dirty: true},
		{QuestionID: q2, TextResponse: strPtr("klorofil"), TimeSpentSeconds: 40, Dirty: true},
	}
	require.NoError(t, rec.RecordBatch(context.Background(), attemptID, answers))

	key := config.CacheKey.AttemptAnswersKey(attemptID.String())
	assert.Equal(t, 2*time.Hour, mr.TTL(key))

	queue, err := mr.List(config.WorkerKey.PersistAnswersQueue)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	var batch model.AnswerBatch
	require.NoError(t, json.Unmarshal([]byte(queue[0]), &batch))
	assert.Equal(t, attemptID, batch.AttemptID)
	assert.True(t, queuedAt.Equal(batch.QueuedAt))
	require.Len(t, batch.Answers, 2)
	assert.False(t, batch.Answers[0].Dirty)
	assert.True(t, answers[0].Dirty, "caller's slice is untouched")

	buffered, err := rec.Buffered(context.Background(), attemptID)
	require.NoError(t, err)
	require.Len(t, buffered, 2)
	assert.Equal(t, "klorofil", *buffered[q2].TextResponse)
	assert.Equal(t, 40, buffered[q2].TimeSpentSeconds)
}

func TestAnswerRecorderRepeatedBatchIsIdempotent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	rec := NewAnswerRecorder(rdb, time.Hour, zerolog.Nop())

	attemptID, q := uuid.New(), uuid.New()
	first := []model.Answer{{QuestionID: q, SelectedOptionID: strPtr("a")}}
	second := []model.Answer{{QuestionID: q, SelectedOptionID: strPtr("b")}}
	require.NoError(t, rec.RecordBatch(context.Background(), attemptID, first))
	require.NoError(t, rec.RecordBatch(context.Background(), attemptID, second))
	require.NoError(t, rec.RecordBatch(context.Background(), attemptID, second))

	keys, err := mr.HKeys(config.CacheKey.AttemptAnswersKey(attemptID.String()))
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	buffered, err := rec.Buffered(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Equal(t, "b", *buffered[q].SelectedOptionID)
}

func TestAnswerRecorderEmptyBatchAndFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	rec := NewAnswerRecorder(rdb, time.Hour, zerolog.Nop())

	require.NoError(t, rec.RecordBatch(context.Background(), uuid.New(), nil))
	assert.False(t, mr.Exists(config.WorkerKey.PersistAnswersQueue))

	mr.SetError("READONLY replica")
	err := rec.RecordBatch(context.Background(), uuid.New(), []model.Answer{{QuestionID: uuid.New(), TextResponse: strPtr("x")}})
	assert.Error(t, err)
}
