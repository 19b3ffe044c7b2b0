package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/config"
	"github.com/mejba13/brandcaster-ai/internal/model"
)

type fakeJobStore struct {
	countsByDay map[string]int // keyed by "2006-01-02" in UTC day start
	scheduled   []time.Time
}

func (f *fakeJobStore) CountBrandJobsForDay(_ context.Context, _ string, dayStart, _ time.Time) (int, error) {
	return f.countsByDay[dayStart.Format("2006-01-02")], nil
}

func (f *fakeJobStore) BrandScheduledTimes(_ context.Context, _ string, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, t := range f.scheduled {
		if !t.Before(from) && t.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeLearned struct {
	times []string
	err   error
}

func (f *fakeLearned) OptimalTimes(context.Context, string) ([]string, error) {
	return f.times, f.err
}

func testScheduler(jobs JobStore, learned LearnedTimes, now time.Time) *Scheduler {
	s := New(jobs, learned, config.SchedulerConfig{LookaheadDays: 14}, zap.NewNop().Sugar())
	s.now = func() time.Time { return now }
	return s
}

func brandWith(settings model.BrandSettings) model.Brand {
	return model.Brand{ID: "brand-1", Name: "Acme", Settings: settings}
}

func TestNextAvailableSlot_FirstOptimalTime(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s := testScheduler(&fakeJobStore{}, nil, now)
	brand := brandWith(model.BrandSettings{PostsPerDay: 1})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	// Default table for one post a day is 10:00.
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_SkipsSaturatedDay(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	jobs := &fakeJobStore{countsByDay: map[string]int{"2026-03-02": 2}}
	s := testScheduler(jobs, nil, now)
	brand := brandWith(model.BrandSettings{PostsPerDay: 2})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_SkipsPastTimes(t *testing.T) {
	// 16:00, past both default two-post slots (09:00, 15:00). The hour
	// scan picks the next free hour instead.
	now := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	s := testScheduler(&fakeJobStore{}, nil, now)
	brand := brandWith(model.BrandSettings{PostsPerDay: 2})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_RespectsQuietHours(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s := testScheduler(&fakeJobStore{}, nil, now)
	brand := brandWith(model.BrandSettings{
		PostsPerDay: 1,
		QuietHours:  []model.QuietHours{{Start: 8, End: 12}},
	})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	// 10:00 sits inside quiet hours; the hour scan lands on 12:00.
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_QuietHoursWrapMidnight(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s := testScheduler(&fakeJobStore{}, nil, now)
	brand := brandWith(model.BrandSettings{
		PostsPerDay: 1,
		QuietHours:  []model.QuietHours{{Start: 21, End: 11}},
	})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_AvoidsProximity(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	jobs := &fakeJobStore{
		countsByDay: map[string]int{"2026-03-02": 1},
		scheduled:   []time.Time{time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)},
	}
	s := testScheduler(jobs, nil, now)
	brand := brandWith(model.BrandSettings{PostsPerDay: 2})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	// 09:00 is within 30 minutes of the 09:15 job; 15:00 is free.
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_BrandTimesTakePrecedence(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	learned := &fakeLearned{times: []string{"13:00"}}
	s := testScheduler(&fakeJobStore{}, learned, now)
	brand := brandWith(model.BrandSettings{
		PostsPerDay:         1,
		OptimalPostingTimes: []string{"19:30"},
	})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 19, 30, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_LearnedTimesBeforeDefaults(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	learned := &fakeLearned{times: []string{"13:00"}}
	s := testScheduler(&fakeJobStore{}, learned, now)
	brand := brandWith(model.BrandSettings{PostsPerDay: 1})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_FallbackWhenWindowFull(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	counts := make(map[string]int)
	for d := 0; d < 20; d++ {
		counts[now.AddDate(0, 0, d).Format("2006-01-02")] = 5
	}
	s := testScheduler(&fakeJobStore{countsByDay: counts}, nil, now)
	brand := brandWith(model.BrandSettings{PostsPerDay: 1})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), slot)
}

func TestDefaultTimes(t *testing.T) {
	tests := []struct {
		postsPerDay int
		expected    []string
	}{
		{0, []string{"10:00"}},
		{1, []string{"10:00"}},
		{2, []string{"09:00", "15:00"}},
		{3, []string{"09:00", "13:00", "17:00"}},
		{4, []string{"08:00", "11:00", "14:00", "17:00"}},
		{5, []string{"08:00", "11:30", "15:00", "18:30", "22:00"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, DefaultTimes(tt.postsPerDay), "postsPerDay=%d", tt.postsPerDay)
	}
}

func TestCalculateSlot(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	t.Run("uses optimal times table", func(t *testing.T) {
		brand := brandWith(model.BrandSettings{PostsPerDay: 3})
		assert.Equal(t, day.Add(9*time.Hour), CalculateSlot(brand, day, 0))
		assert.Equal(t, day.Add(13*time.Hour), CalculateSlot(brand, day, 1))
		assert.Equal(t, day.Add(17*time.Hour), CalculateSlot(brand, day, 2))
	})

	t.Run("brand times override defaults", func(t *testing.T) {
		brand := brandWith(model.BrandSettings{
			PostsPerDay:         1,
			OptimalPostingTimes: []string{"06:45"},
		})
		got := CalculateSlot(brand, day, 0)
		assert.Equal(t, day.Add(6*time.Hour+45*time.Minute), got)
	})

	t.Run("indexes beyond table spread by interval", func(t *testing.T) {
		brand := brandWith(model.BrandSettings{PostsPerDay: 2})
		// 24h / 2 posts = 12h interval for index 2 and up.
		assert.Equal(t, day.Add(24*time.Hour), CalculateSlot(brand, day, 2))
	})
}

func TestNextAvailableSlot_BrandTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// March 2 2026: New York is UTC-5.
	now := time.Date(2026, 3, 2, 1, 0, 0, 0, ny)
	s := testScheduler(&fakeJobStore{}, nil, now.UTC())
	brand := brandWith(model.BrandSettings{PostsPerDay: 1, Timezone: "America/New_York"})

	slot, err := s.NextAvailableSlot(context.Background(), brand, now.UTC())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, ny).UTC(), slot)
}
