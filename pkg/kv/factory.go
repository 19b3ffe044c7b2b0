package kv

import (
	"fmt"
	"time"
)

// Backend identifies a registered storage backend.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config holds configuration for creating a Store instance.
type Config struct {
	Backend Backend

	// RedisAddr is the host:port of the Redis server (required for redis).
	RedisAddr string

	// JanitorInterval controls how often the in-memory store evicts expired
	// keys. Defaults to 30 seconds.
	JanitorInterval time.Duration
}

// StoreFactory creates a Store from a Config.
type StoreFactory func(cfg Config) (Store, error)

var factories = make(map[Backend]StoreFactory)

// RegisterBackend registers a store factory for a backend. Called from
// backend package init functions.
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

// NewStoreFromConfig creates a Store for the configured backend.
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 30 * time.Second
	}

	factory, ok := factories[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported kv backend: %s (supported: %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis)
	}
	return factory(cfg)
}
