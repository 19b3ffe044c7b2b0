package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mejba13/brandcaster-ai/pkg/kv"
)

const (
	learnedKeyPrefix = "bc:sched:learned:"
	learnedTTL       = 24 * time.Hour
	learnedWindow    = 90 * 24 * time.Hour
	// minEngagementSamples gates learning so a single lucky post does
	// not steer the schedule.
	minEngagementSamples = 50
)

// EngagementStore supplies historical engagement aggregated by hour of day.
type EngagementStore interface {
	EngagementByHour(ctx context.Context, brandID string, since time.Time) (map[int]int64, error)
}

// EngagementTimes derives optimal posting hours from past engagement,
// cached in the kv store so the aggregate query runs at most daily.
type EngagementTimes struct {
	store EngagementStore
	cache kv.Store
	now   func() time.Time
}

func NewEngagementTimes(store EngagementStore, cache kv.Store) *EngagementTimes {
	return &EngagementTimes{store: store, cache: cache, now: time.Now}
}

// OptimalTimes returns up to three top-engagement hours as "HH:00"
// strings, or nil when history is too thin to learn from.
func (e *EngagementTimes) OptimalTimes(ctx context.Context, brandID string) ([]string, error) {
	key := learnedKeyPrefix + brandID
	if raw, err := e.cache.Get(ctx, key); err == nil {
		var times []string
		if json.Unmarshal(raw, &times) == nil {
			return times, nil
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("read learned times cache: %w", err)
	}

	byHour, err := e.store.EngagementByHour(ctx, brandID, e.now().Add(-learnedWindow))
	if err != nil {
		return nil, fmt.Errorf("aggregate engagement: %w", err)
	}

	times := topHours(byHour)
	// Cache nil results too, as an empty list, to avoid re-querying.
	if data, err := json.Marshal(times); err == nil {
		_ = e.cache.Set(ctx, key, data, learnedTTL)
	}
	return times, nil
}

func topHours(byHour map[int]int64) []string {
	var total int64
	type hourCount struct {
		hour  int
		count int64
	}
	ranked := make([]hourCount, 0, len(byHour))
	for h, c := range byHour {
		total += c
		ranked = append(ranked, hourCount{hour: h, count: c})
	}
	if total < minEngagementSamples {
		return nil
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].hour < ranked[j].hour
	})

	n := 3
	if len(ranked) < n {
		n = len(ranked)
	}
	top := ranked[:n]
	sort.Slice(top, func(i, j int) bool { return top[i].hour < top[j].hour })

	times := make([]string, 0, n)
	for _, hc := range top {
		times = append(times, fmt.Sprintf("%02d:00", hc.hour))
	}
	return times
}
