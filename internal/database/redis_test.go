package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{RedisURL: "redis://" + mr.Addr() + "/0", RequestTimeout: time.Second}
	rdb, err := NewRedisClient(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClientErrors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), &config.Config{RedisURL: "not a url", RequestTimeout: time.Second}, zerolog.Nop())
	assert.ErrorContains(t, err, "parse redis URL")

	_, err = NewRedisClient(context.Background(), &config.Config{RedisURL: "redis://127.0.0.1:1", RequestTimeout: 200 * time.Millisecond}, zerolog.Nop())
	assert.ErrorContains(t, err, "ping redis")
}
