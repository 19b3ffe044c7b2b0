// Package ratelimit tracks per-connector publish counters in hour and day
// windows. Counters live in a kv.Store so every worker in a deployment sees
// the same budget; they gate external API usage and must never be exceeded.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/pkg/kv"
)

// Limiter implements the canPost capability of the publisher contract.
type Limiter struct {
	store  kv.Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewLimiter(store kv.Store, logger *zap.SugaredLogger) *Limiter {
	return &Limiter{store: store, logger: logger, now: time.Now}
}

func hourKey(connectorID string, t time.Time) string {
	return fmt.Sprintf("bc:rl:%s:h:%s", connectorID, t.UTC().Format("2006010215"))
}

func dayKey(connectorID string, t time.Time) string {
	return fmt.Sprintf("bc:rl:%s:d:%s", connectorID, t.UTC().Format("20060102"))
}

// Allow consumes one publish slot for the connector if both the hourly and
// daily budgets permit. The increment-then-compare on the shared store keeps
// check and consume atomic: a slot counted by a concurrent worker is visible
// in the value INCR returns, and a refused increment is rolled back.
// A zero or negative limit means that window is uncapped.
func (l *Limiter) Allow(ctx context.Context, connectorID string, limits model.RateLimits) (bool, error) {
	now := l.now()

	ok, err := l.consume(ctx, hourKey(connectorID, now), int64(limits.PostsPerHour), 2*time.Hour)
	if err != nil {
		return false, fmt.Errorf("hour window: %w", err)
	}
	if !ok {
		l.logger.Debugw("Connector hourly rate limit reached", "connector", connectorID)
		return false, nil
	}

	ok, err = l.consume(ctx, dayKey(connectorID, now), int64(limits.PostsPerDay), 48*time.Hour)
	if err != nil {
		return false, fmt.Errorf("day window: %w", err)
	}
	if !ok {
		// Give back the hour slot taken above.
		if _, derr := l.store.DecrBy(ctx, hourKey(connectorID, now), 1); derr != nil {
			l.logger.Warnw("Failed to roll back hour counter", "connector", connectorID, "error", derr)
		}
		l.logger.Debugw("Connector daily rate limit reached", "connector", connectorID)
		return false, nil
	}
	return true, nil
}

func (l *Limiter) consume(ctx context.Context, key string, limit int64, ttl time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	count, err := l.store.IncrBy(ctx, key, 1)
	if err != nil {
		return false, err
	}
	if count == 1 {
		// First hit in this window; bound its lifetime.
		if _, err := l.store.Expire(ctx, key, ttl); err != nil {
			l.logger.Warnw("Failed to set rate counter TTL", "key", key, "error", err)
		}
	}
	if count > limit {
		if _, err := l.store.DecrBy(ctx, key, 1); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Usage reports the consumed slots in the current hour and day windows.
func (l *Limiter) Usage(ctx context.Context, connectorID string) (hour, day int64, err error) {
	now := l.now()
	hour, err = l.current(ctx, hourKey(connectorID, now))
	if err != nil {
		return 0, 0, err
	}
	day, err = l.current(ctx, dayKey(connectorID, now))
	if err != nil {
		return 0, 0, err
	}
	return hour, day, nil
}

func (l *Limiter) current(ctx context.Context, key string) (int64, error) {
	val, err := l.store.GetString(ctx, key)
	if err == kv.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
		return 0, fmt.Errorf("parse counter %s: %w", key, err)
	}
	return n, nil
}
