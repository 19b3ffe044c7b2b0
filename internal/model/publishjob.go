package model

import (
	"time"

	"github.com/google/uuid"
)

type PublishJobStatus string

const (
	PublishPending    PublishJobStatus = "pending"
	PublishProcessing PublishJobStatus = "processing"
	PublishPublished  PublishJobStatus = "published"
	PublishFailed     PublishJobStatus = "failed"
)

// publishJobNamespace scopes idempotency keys to this system.
var publishJobNamespace = uuid.MustParse("7b1c9c1e-5a1f-4f8e-9d0a-3f2b1d6e8a44")

// PublishIdempotencyKey derives a deterministic key for one logical publish of
// a variant through a connector. Re-dispatch of the same triple always maps to
// the same key, and the store enforces uniqueness on it.
func PublishIdempotencyKey(variantID, connectorID string, platform Platform) string {
	return uuid.NewSHA1(publishJobNamespace, []byte(variantID+"|"+connectorID+"|"+string(platform))).String()
}

// PublishResult is the opaque success payload from an external platform.
type PublishResult struct {
	ExternalID string `json:"external_id"`
	URL        string `json:"url,omitempty"`
}

// PublishJob is the durable record of one publish attempt for one
// (variant, connector) pair.
type PublishJob struct {
	ID             string           `json:"id" db:"id"`
	BrandID        string           `json:"brand_id" db:"brand_id"`
	DraftID        string           `json:"draft_id" db:"draft_id"`
	VariantID      string           `json:"variant_id" db:"variant_id"`
	ConnectorID    string           `json:"connector_id" db:"connector_id"`
	Platform       Platform         `json:"platform" db:"platform"`
	IdempotencyKey string           `json:"idempotency_key" db:"idempotency_key"`
	Status         PublishJobStatus `json:"status" db:"status"`
	AttemptCount   int              `json:"attempt_count" db:"attempt_count"`
	ScheduledAt    *time.Time       `json:"scheduled_at,omitempty" db:"scheduled_at"`
	PublishedAt    *time.Time       `json:"published_at,omitempty" db:"published_at"`
	Result         *PublishResult   `json:"result,omitempty" db:"result"`
	LastError      string           `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// RetryHorizon is how long a publish job keeps retrying after creation before
// it is abandoned, independent of the per-attempt ceiling.
const RetryHorizon = 24 * time.Hour

// Expired reports whether the job's retry-until horizon has passed.
func (j *PublishJob) Expired(now time.Time) bool {
	return now.Sub(j.CreatedAt) > RetryHorizon
}
