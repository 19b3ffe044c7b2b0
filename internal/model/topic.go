package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TopicStatus string

const (
	TopicDiscovered TopicStatus = "discovered"
	TopicQueued     TopicStatus = "queued"
	TopicUsed       TopicStatus = "used"
	TopicExpired    TopicStatus = "expired"
)

// Topic is a discovered candidate subject for content generation.
type Topic struct {
	ID              string          `json:"id" db:"id"`
	BrandID         string          `json:"brand_id" db:"brand_id"`
	CategoryID      string          `json:"category_id" db:"category_id"`
	Title           string          `json:"title" db:"title"`
	Description     string          `json:"description" db:"description"`
	Keywords        []string        `json:"keywords" db:"keywords"`
	SourceURLs      []string        `json:"source_urls" db:"source_urls"`
	ConfidenceScore decimal.Decimal `json:"confidence_score" db:"confidence_score"`
	Status          TopicStatus     `json:"status" db:"status"`
	TrendingAt      time.Time       `json:"trending_at" db:"trending_at"`
	UsedAt          *time.Time      `json:"used_at,omitempty" db:"used_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// TopicCandidate is the raw output of a trend source before scoring and
// deduplication.
type TopicCandidate struct {
	Title       string
	Description string
	Keywords    []string
	SourceURLs  []string
	Metadata    map[string]any
}
