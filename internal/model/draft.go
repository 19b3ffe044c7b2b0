package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DraftStatus string

const (
	DraftStatusDraft         DraftStatus = "draft"
	DraftStatusPendingReview DraftStatus = "pending_review"
	DraftStatusApproved      DraftStatus = "approved"
	DraftStatusPublished     DraftStatus = "published"
	DraftStatusRejected      DraftStatus = "rejected"
)

// DraftStage is the persisted position of a draft in the generation pipeline.
// The queue driver advances it; it is never inferred from which jobs exist.
type DraftStage string

const (
	StageBrief      DraftStage = "brief"
	StageOutline    DraftStage = "outline"
	StageBody       DraftStage = "body"
	StageModeration DraftStage = "moderation"
	StageVariants   DraftStage = "variants"
	StageDone       DraftStage = "done"
)

// OutlineSection is one stub of a draft outline, ordered by Position.
type OutlineSection struct {
	Position int    `json:"position"`
	Heading  string `json:"heading"`
	Summary  string `json:"summary,omitempty"`
}

// SEOMetadata carries the generated search/social metadata for a draft.
type SEOMetadata struct {
	MetaDescription string   `json:"meta_description,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Slug            string   `json:"slug,omitempty"`
	OGTitle         string   `json:"og_title,omitempty"`
	OGDescription   string   `json:"og_description,omitempty"`
	OGImage         string   `json:"og_image,omitempty"`
}

// ModerationViolation is one policy finding from the moderation collaborator.
type ModerationViolation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ContentDraft is one generated piece of content moving through the pipeline.
// Soft-deleted via DeletedAt rather than removed.
type ContentDraft struct {
	ID                  string                `json:"id" db:"id"`
	BrandID             string                `json:"brand_id" db:"brand_id"`
	TopicID             string                `json:"topic_id" db:"topic_id"`
	Title               string                `json:"title" db:"title"`
	StrategyBrief       string                `json:"strategy_brief" db:"strategy_brief"`
	Outline             []OutlineSection      `json:"outline" db:"outline"`
	Body                string                `json:"body" db:"body"`
	SEO                 SEOMetadata           `json:"seo_metadata" db:"seo_metadata"`
	ConfidenceScore     decimal.Decimal       `json:"confidence_score" db:"confidence_score"`
	Status              DraftStatus           `json:"status" db:"status"`
	Stage               DraftStage            `json:"stage" db:"stage"`
	RegenerationAttempt int                   `json:"regeneration_attempt" db:"regeneration_attempt"`
	Violations          []ModerationViolation `json:"violations,omitempty" db:"violations"`
	ApprovedBy          *string               `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt          *time.Time            `json:"approved_at,omitempty" db:"approved_at"`
	PublishedAt         *time.Time            `json:"published_at,omitempty" db:"published_at"`
	DeletedAt           *time.Time            `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt           time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at" db:"updated_at"`
}

type ApprovalStatus string

const (
	ApprovalApproved         ApprovalStatus = "approved"
	ApprovalRejected         ApprovalStatus = "rejected"
	ApprovalChangesRequested ApprovalStatus = "changes_requested"
)

// SystemReviewer identifies auto-approvals in Approval records.
const SystemReviewer = "system"

// Approval is one review decision over a draft.
type Approval struct {
	ID        string         `json:"id" db:"id"`
	DraftID   string         `json:"draft_id" db:"draft_id"`
	Reviewer  string         `json:"reviewer" db:"reviewer"`
	Status    ApprovalStatus `json:"status" db:"status"`
	Changes   map[string]any `json:"changes,omitempty" db:"changes"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
