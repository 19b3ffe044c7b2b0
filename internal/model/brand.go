package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Brand is a tenant owning its own voice, schedule, categories and connectors.
type Brand struct {
	ID        string        `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Voice     string        `json:"voice" db:"voice"`
	Settings  BrandSettings `json:"settings" db:"settings"`
	Active    bool          `json:"active" db:"active"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// QuietHours is a half-open hour range [Start, End) during which no
// publishing should occur. Ranges may wrap midnight (Start > End).
type QuietHours struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the given hour falls inside the quiet range.
func (q QuietHours) Contains(hour int) bool {
	if q.Start <= q.End {
		return hour >= q.Start && hour < q.End
	}
	// Wraps midnight, e.g. 22-6.
	return hour >= q.Start || hour < q.End
}

type BrandSettings struct {
	PostsPerDay          int              `json:"posts_per_day"`
	QuietHours           []QuietHours     `json:"quiet_hours"`
	Timezone             string           `json:"timezone"`
	AutoApprove          bool             `json:"auto_approve"`
	AutoApproveThreshold *decimal.Decimal `json:"auto_approve_threshold,omitempty"`
	AutoPublish          bool             `json:"auto_publish"`
	OptimalPostingTimes  []string         `json:"optimal_posting_times"` // "HH:MM", ordered by preference
}

// DefaultAutoApproveThreshold applies when a brand has no explicit threshold.
var DefaultAutoApproveThreshold = decimal.NewFromFloat(0.8)

// ApproveThreshold returns the brand threshold, or the default when unset.
func (s BrandSettings) ApproveThreshold() decimal.Decimal {
	if s.AutoApproveThreshold != nil {
		return *s.AutoApproveThreshold
	}
	return DefaultAutoApproveThreshold
}

// Location resolves the brand timezone, falling back to UTC.
func (s BrandSettings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s BrandSettings) Validate() error {
	if s.PostsPerDay < 1 {
		return fmt.Errorf("posts_per_day must be >= 1, got %d", s.PostsPerDay)
	}
	for _, q := range s.QuietHours {
		if q.Start < 0 || q.Start > 23 || q.End < 0 || q.End > 24 {
			return fmt.Errorf("quiet hours range %d-%d out of bounds", q.Start, q.End)
		}
	}
	for _, t := range s.OptimalPostingTimes {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("invalid optimal posting time %q: %w", t, err)
		}
	}
	return nil
}

// Category scopes topic discovery for a brand.
type Category struct {
	ID          string    `json:"id" db:"id"`
	BrandID     string    `json:"brand_id" db:"brand_id"`
	Name        string    `json:"name" db:"name"`
	Keywords    []string  `json:"keywords" db:"keywords"`
	SourceNames []string  `json:"source_names,omitempty" db:"source_names"` // overrides default trend sources
	FeedURLs    []string  `json:"feed_urls,omitempty" db:"feed_urls"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
