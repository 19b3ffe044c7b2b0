// Package memory implements kv.Store with in-process maps. It backs unit
// tests and single-node deployments without Redis.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/mejba13/brandcaster-ai/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendMemory, func(cfg kv.Config) (kv.Store, error) {
		return New(cfg.JanitorInterval), nil
	})
}

// Store is an in-memory implementation of kv.Store.
type Store struct {
	mu          sync.Mutex
	values      map[string][]byte
	expirations map[string]time.Time

	janitorStop chan struct{}
	stopOnce    sync.Once
}

// New creates an in-memory store. A positive janitorInterval starts a
// background goroutine evicting expired keys.
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		values:      make(map[string][]byte),
		expirations: make(map[string]time.Time),
		janitorStop: make(chan struct{}),
	}
	if janitorInterval > 0 {
		go s.janitor(janitorInterval)
	}
	return s
}

// NewStore creates a store with the default janitor interval.
func NewStore() *Store {
	return New(30 * time.Second)
}

func (s *Store) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, expiry := range s.expirations {
				if now.After(expiry) {
					delete(s.values, key)
					delete(s.expirations, key)
				}
			}
			s.mu.Unlock()
		case <-s.janitorStop:
			return
		}
	}
}

// expiredLocked reports and reaps an expired key. Caller holds mu.
func (s *Store) expiredLocked(key string) bool {
	expiry, ok := s.expirations[key]
	if !ok || time.Now().Before(expiry) {
		return false
	}
	delete(s.values, key)
	delete(s.expirations, key)
	return true
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	delete(s.expirations, key)
	if len(ttl) > 0 && ttl[0] > 0 {
		s.expirations[key] = time.Now().Add(ttl[0])
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiredLocked(key) {
		return nil, kv.ErrNotFound
	}
	value, ok := s.values[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) SetString(ctx context.Context, key string, value string, ttl ...time.Duration) error {
	return s.Set(ctx, key, []byte(value), ttl...)
}

func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if _, ok := s.values[key]; ok {
			delete(s.values, key)
			delete(s.expirations, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, key := range keys {
		if s.expiredLocked(key) {
			continue
		}
		if _, ok := s.values[key]; ok {
			count++
		}
	}
	return count, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiredLocked(key) {
		return false, nil
	}
	if _, ok := s.values[key]; !ok {
		return false, nil
	}
	s.expirations[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiredLocked(key) {
		return -2 * time.Second, nil
	}
	if _, ok := s.values[key]; !ok {
		return -2 * time.Second, nil
	}
	expiry, ok := s.expirations[key]
	if !ok {
		return -1 * time.Second, nil
	}
	return time.Until(expiry), nil
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expiredLocked(key)

	var current int64
	if raw, ok := s.values[key]; ok {
		parsed, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current += n
	s.values[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

func (s *Store) DecrBy(ctx context.Context, key string, n int64) (int64, error) {
	return s.IncrBy(ctx, key, -n)
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.janitorStop) })
	return nil
}
