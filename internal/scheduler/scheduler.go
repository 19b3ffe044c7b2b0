package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/config"
	"github.com/mejba13/brandcaster-ai/internal/model"
)

// minGapDefault keeps two posts of one brand at least this far apart.
const minGapDefault = 30 * time.Minute

// defaultSlotTimes is the built-in optimal-times table keyed by
// posts_per_day, used when a brand configures none and no learned
// times exist yet.
var defaultSlotTimes = map[int][]string{
	1: {"10:00"},
	2: {"09:00", "15:00"},
	3: {"09:00", "13:00", "17:00"},
	4: {"08:00", "11:00", "14:00", "17:00"},
}

const (
	spreadStartHour = 8
	spreadEndHour   = 22
)

// JobStore is the publish-job view the scheduler reads.
type JobStore interface {
	CountBrandJobsForDay(ctx context.Context, brandID string, dayStart, dayEnd time.Time) (int, error)
	BrandScheduledTimes(ctx context.Context, brandID string, from, to time.Time) ([]time.Time, error)
}

// LearnedTimes supplies posting times derived from engagement history.
// Implementations return nil when nothing has been learned yet.
type LearnedTimes interface {
	OptimalTimes(ctx context.Context, brandID string) ([]string, error)
}

// Scheduler places publish timestamps that respect a brand's daily
// quota, quiet hours, and spacing constraints.
type Scheduler struct {
	jobs    JobStore
	learned LearnedTimes
	logger  *zap.SugaredLogger

	lookaheadDays int
	minGap        time.Duration
	now           func() time.Time
}

func New(jobs JobStore, learned LearnedTimes, cfg config.SchedulerConfig, logger *zap.SugaredLogger) *Scheduler {
	s := &Scheduler{
		jobs:          jobs,
		learned:       learned,
		logger:        logger,
		lookaheadDays: cfg.LookaheadDays,
		minGap:        cfg.MinGap,
		now:           time.Now,
	}
	if s.lookaheadDays < 1 {
		s.lookaheadDays = 30
	}
	if s.minGap <= 0 {
		s.minGap = minGapDefault
	}
	return s
}

// NextAvailableSlot finds the earliest acceptable publish time for the
// brand at or after startFrom. The scan is bounded by the lookahead
// window; when nothing fits it falls back to now+1h so callers always
// get a usable timestamp.
func (s *Scheduler) NextAvailableSlot(ctx context.Context, brand model.Brand, startFrom time.Time) (time.Time, error) {
	loc := brand.Settings.Location()
	now := s.now().In(loc)
	start := startFrom.In(loc)
	if start.Before(now) {
		start = now
	}

	times := s.optimalTimes(ctx, brand)

	for dayOffset := 0; dayOffset < s.lookaheadDays; dayOffset++ {
		day := start.AddDate(0, 0, dayOffset)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
		dayEnd := dayStart.AddDate(0, 0, 1)

		count, err := s.jobs.CountBrandJobsForDay(ctx, brand.ID, dayStart.UTC(), dayEnd.UTC())
		if err != nil {
			return time.Time{}, fmt.Errorf("count jobs for %s: %w", dayStart.Format("2006-01-02"), err)
		}
		if count >= brand.Settings.PostsPerDay {
			continue
		}

		taken, err := s.jobs.BrandScheduledTimes(ctx, brand.ID, dayStart.UTC(), dayEnd.UTC())
		if err != nil {
			return time.Time{}, fmt.Errorf("scheduled times for %s: %w", dayStart.Format("2006-01-02"), err)
		}

		if slot, ok := s.placeInDay(brand, dayStart, now, times, taken); ok {
			return slot.UTC(), nil
		}
	}

	fallback := s.now().Add(time.Hour).UTC()
	s.logger.Warnw("no publish slot within lookahead window, using fallback",
		"brand_id", brand.ID,
		"lookahead_days", s.lookaheadDays,
		"fallback", fallback,
	)
	return fallback, nil
}

// placeInDay tries the brand's optimal times in order, then scans hours
// 08-22. A candidate is rejected when it is in the past, falls in quiet
// hours, or lands too close to an existing scheduled time.
func (s *Scheduler) placeInDay(brand model.Brand, dayStart, now time.Time, times []string, taken []time.Time) (time.Time, bool) {
	for _, hhmm := range times {
		candidate, err := atTime(dayStart, hhmm)
		if err != nil {
			continue
		}
		if s.acceptable(brand, candidate, now, taken) {
			return candidate, true
		}
	}
	for hour := spreadStartHour; hour <= spreadEndHour; hour++ {
		candidate := dayStart.Add(time.Duration(hour) * time.Hour)
		if s.acceptable(brand, candidate, now, taken) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

func (s *Scheduler) acceptable(brand model.Brand, candidate, now time.Time, taken []time.Time) bool {
	if candidate.Before(now) {
		return false
	}
	for _, q := range brand.Settings.QuietHours {
		if q.Contains(candidate.Hour()) {
			return false
		}
	}
	loc := candidate.Location()
	for _, t := range taken {
		if gap := candidate.Sub(t.In(loc)); gap > -s.minGap && gap < s.minGap {
			return false
		}
	}
	return true
}

// optimalTimes resolves the posting-time preference order: brand
// settings, then learned-from-analytics times, then the default table.
func (s *Scheduler) optimalTimes(ctx context.Context, brand model.Brand) []string {
	if len(brand.Settings.OptimalPostingTimes) > 0 {
		return brand.Settings.OptimalPostingTimes
	}
	if s.learned != nil {
		if learned, err := s.learned.OptimalTimes(ctx, brand.ID); err != nil {
			s.logger.Debugw("learned posting times unavailable", "brand_id", brand.ID, "err", err)
		} else if len(learned) > 0 {
			return learned
		}
	}
	return DefaultTimes(brand.Settings.PostsPerDay)
}

// DefaultTimes returns the built-in posting times for a daily quota.
// Quotas beyond the table spread evenly between 08:00 and 22:00.
func DefaultTimes(postsPerDay int) []string {
	if postsPerDay < 1 {
		postsPerDay = 1
	}
	if times, ok := defaultSlotTimes[postsPerDay]; ok {
		return times
	}

	span := float64(spreadEndHour-spreadStartHour) * 60 // minutes
	step := span / float64(postsPerDay-1)
	times := make([]string, 0, postsPerDay)
	for i := 0; i < postsPerDay; i++ {
		m := spreadStartHour*60 + int(float64(i)*step)
		times = append(times, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return times
}

// CalculateSlot maps a slot index on a given day to a concrete time,
// for bulk pre-scheduling. Indexes beyond the optimal-times table
// spread evenly across 24h/postsPerDay.
func CalculateSlot(brand model.Brand, date time.Time, slotIndex int) time.Time {
	loc := brand.Settings.Location()
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)

	times := brand.Settings.OptimalPostingTimes
	if len(times) == 0 {
		times = DefaultTimes(brand.Settings.PostsPerDay)
	}
	if slotIndex < len(times) {
		if t, err := atTime(dayStart, times[slotIndex]); err == nil {
			return t
		}
	}

	perDay := brand.Settings.PostsPerDay
	if perDay < 1 {
		perDay = 1
	}
	interval := 24 * time.Hour / time.Duration(perDay)
	return dayStart.Add(time.Duration(slotIndex) * interval)
}

func atTime(dayStart time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	return dayStart.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}
