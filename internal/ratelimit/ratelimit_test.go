package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/pkg/kv/memory"
)

func testLimiter(t *testing.T) *Limiter {
	t.Helper()
	st := memory.NewStore()
	t.Cleanup(func() { _ = st.Close() })
	return NewLimiter(st, zap.NewNop().Sugar())
}

func TestLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("enforces hourly cap", func(t *testing.T) {
		l := testLimiter(t)
		limits := model.RateLimits{PostsPerHour: 2}

		for i := 0; i < 2; i++ {
			ok, err := l.Allow(ctx, "conn-1", limits)
			require.NoError(t, err)
			assert.True(t, ok, "attempt %d should pass", i+1)
		}
		ok, err := l.Allow(ctx, "conn-1", limits)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("daily refusal rolls back the hour slot", func(t *testing.T) {
		l := testLimiter(t)
		limits := model.RateLimits{PostsPerHour: 10, PostsPerDay: 1}

		ok, err := l.Allow(ctx, "conn-1", limits)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(ctx, "conn-1", limits)
		require.NoError(t, err)
		assert.False(t, ok)

		hour, day, err := l.Usage(ctx, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), hour)
		assert.Equal(t, int64(1), day)
	})

	t.Run("zero limits are uncapped", func(t *testing.T) {
		l := testLimiter(t)
		for i := 0; i < 50; i++ {
			ok, err := l.Allow(ctx, "conn-1", model.RateLimits{})
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("connectors have independent budgets", func(t *testing.T) {
		l := testLimiter(t)
		limits := model.RateLimits{PostsPerHour: 1}

		ok, err := l.Allow(ctx, "conn-a", limits)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(ctx, "conn-b", limits)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("window rollover resets the hourly budget", func(t *testing.T) {
		l := testLimiter(t)
		base := time.Date(2026, 5, 1, 10, 59, 0, 0, time.UTC)
		l.now = func() time.Time { return base }
		limits := model.RateLimits{PostsPerHour: 1}

		ok, err := l.Allow(ctx, "conn-1", limits)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(ctx, "conn-1", limits)
		require.NoError(t, err)
		require.False(t, ok)

		l.now = func() time.Time { return base.Add(2 * time.Minute) }
		ok, err = l.Allow(ctx, "conn-1", limits)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestLimiter_Usage(t *testing.T) {
	ctx := context.Background()
	l := testLimiter(t)

	hour, day, err := l.Usage(ctx, "conn-1")
	require.NoError(t, err)
	assert.Zero(t, hour)
	assert.Zero(t, day)

	_, err = l.Allow(ctx, "conn-1", model.RateLimits{PostsPerHour: 5, PostsPerDay: 5})
	require.NoError(t, err)

	hour, day, err = l.Usage(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hour)
	assert.Equal(t, int64(1), day)
}
