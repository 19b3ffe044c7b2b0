// Package kv provides a small pluggable key-value store used for connector
// rate-limit counters and scheduler caches. Backends register themselves via
// RegisterBackend; memory and redis implementations ship in subpackages.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not found.
var ErrNotFound = errors.New("not found")

// Store is the subset of Redis-like operations the engine relies on.
// IncrBy must be atomic across concurrent callers; rate limiting depends on it.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	SetString(ctx context.Context, key string, value string, ttl ...time.Duration) error
	GetString(ctx context.Context, key string) (string, error)

	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	DecrBy(ctx context.Context, key string, n int64) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
