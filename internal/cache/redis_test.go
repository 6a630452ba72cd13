package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fer-inference/internal/config"
	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/evaluation"
	"github.com/Brownie44l1/fer-inference/internal/handlers"
)

// newTestClient connects to the Redis named by REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis cache test")
	}

	c, err := NewClient(context.Background(), config.RedisConfig{Addr: addr, ConnectTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Health(ctx))
	key := "fer:test:" + uuid.NewString()
	t.Cleanup(func() { _ = c.Delete(ctx, key) })

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	var matrix evaluation.ConfusionMatrix
	matrix.Add(emotion.Happy, emotion.Happy)
	matrix.Add(emotion.Happy, emotion.Sad)
	want := &evaluation.Result{
		Mode:               evaluation.ModeFull,
		OverallAccuracy:    0.5,
		TotalImages:        2,
		CorrectPredictions: 1,
		ClassMetrics:       map[string]evaluation.ClassMetrics{"Happy": {Accuracy: 0.5, Correct: 1, Total: 2}},
		ConfusionMatrix:    matrix,
		SkippedImages:      3,
		BiasCorrected:      true,
	}
	require.NoError(t, c.Set(ctx, key, want, time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestUnreachableRedis(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedisConfig{
		Addr:           "127.0.0.1:1",
		ConnectTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}

var (
	_ evaluation.Cache       = (*Client)(nil)
	_ handlers.HealthChecker = (*Client)(nil)
)
