package model

import (
	"fmt"
	"time"
)

// Platform identifies a publish target type.
type Platform string

const (
	PlatformWebsite   Platform = "website"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
)

// AllPlatforms lists every supported platform in variant-generation order.
var AllPlatforms = []Platform{
	PlatformWebsite,
	PlatformFacebook,
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformInstagram,
}

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// IsSocial reports whether the platform publishes through a SocialConnector.
func (p Platform) IsSocial() bool {
	return p != PlatformWebsite
}

type VariantStatus string

const (
	VariantPending   VariantStatus = "pending"
	VariantScheduled VariantStatus = "scheduled"
	VariantPublished VariantStatus = "published"
	VariantFailed    VariantStatus = "failed"
)

// VariantFormatting carries hashtags/mentions metadata for social renderings.
type VariantFormatting struct {
	Hashtags []string `json:"hashtags,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
}

// ContentVariant is a platform-specific rendering of a draft. Exactly one
// variant exists per (draft, platform) pair.
type ContentVariant struct {
	ID           string            `json:"id" db:"id"`
	DraftID      string            `json:"draft_id" db:"draft_id"`
	Platform     Platform          `json:"platform" db:"platform"`
	Title        string            `json:"title" db:"title"`
	Content      string            `json:"content" db:"content"`
	Formatting   VariantFormatting `json:"formatting" db:"formatting"`
	Status       VariantStatus     `json:"status" db:"status"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty" db:"scheduled_for"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}
