package model

import "time"

// RateLimits caps connector publish throughput per window.
type RateLimits struct {
	PostsPerHour int `json:"posts_per_hour"`
	PostsPerDay  int `json:"posts_per_day"`
}

// WebsiteConnector is a configured SQL-backed website publish target.
// ConnectionString is stored encrypted; FieldMapping maps canonical content
// fields (title, body, slug, meta_description, published_at) to the target
// table's column names.
type WebsiteConnector struct {
	ID                  string            `json:"id" db:"id"`
	BrandID             string            `json:"brand_id" db:"brand_id"`
	Name                string            `json:"name" db:"name"`
	Driver              string            `json:"driver" db:"driver"` // "pgx" or "mysql"
	EncryptedConnString string            `json:"-" db:"encrypted_conn_string"`
	Table               string            `json:"table" db:"table_name"`
	FieldMapping        map[string]string `json:"field_mapping" db:"field_mapping"`
	RateLimits          RateLimits        `json:"rate_limits" db:"rate_limits"`
	Active              bool              `json:"active" db:"active"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" db:"updated_at"`
}

// SocialConnector is a configured social account publish target.
// EncryptedToken holds the OAuth access token at rest.
type SocialConnector struct {
	ID               string         `json:"id" db:"id"`
	BrandID          string         `json:"brand_id" db:"brand_id"`
	Platform         Platform       `json:"platform" db:"platform"`
	AccountRef       string         `json:"account_ref" db:"account_ref"` // page id, handle, urn...
	EncryptedToken   string         `json:"-" db:"encrypted_token"`
	TokenExpiresAt   *time.Time     `json:"token_expires_at,omitempty" db:"token_expires_at"`
	PlatformSettings map[string]any `json:"platform_settings" db:"platform_settings"`
	RateLimits       RateLimits     `json:"rate_limits" db:"rate_limits"`
	Active           bool           `json:"active" db:"active"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// ConnectorRef is a tagged union over the two connector kinds so dispatch
// sites handle both exhaustively instead of carrying a type string plus id.
type ConnectorRef struct {
	Website *WebsiteConnector
	Social  *SocialConnector
}

func WebsiteRef(c *WebsiteConnector) ConnectorRef { return ConnectorRef{Website: c} }
func SocialRef(c *SocialConnector) ConnectorRef   { return ConnectorRef{Social: c} }

// ID returns the id of whichever connector is set.
func (r ConnectorRef) ID() string {
	switch {
	case r.Website != nil:
		return r.Website.ID
	case r.Social != nil:
		return r.Social.ID
	}
	return ""
}

// Platform returns the publish platform of the referenced connector.
func (r ConnectorRef) Platform() Platform {
	if r.Website != nil {
		return PlatformWebsite
	}
	if r.Social != nil {
		return r.Social.Platform
	}
	return ""
}

// Limits returns the referenced connector's rate limits.
func (r ConnectorRef) Limits() RateLimits {
	switch {
	case r.Website != nil:
		return r.Website.RateLimits
	case r.Social != nil:
		return r.Social.RateLimits
	}
	return RateLimits{}
}

// Valid reports whether exactly one side of the union is set.
func (r ConnectorRef) Valid() bool {
	return (r.Website != nil) != (r.Social != nil)
}
