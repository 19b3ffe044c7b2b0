package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// ActiveWebsiteConnector returns the brand's active website connector, or
// ErrNotFound when none is configured.
func (s *Store) ActiveWebsiteConnector(ctx context.Context, brandID string) (*model.WebsiteConnector, error) {
	query := `
		SELECT id, brand_id, name, driver, encrypted_conn_string, table_name,
			field_mapping, rate_limits, active, created_at, updated_at
		FROM website_connectors
		WHERE brand_id = $1 AND active
		ORDER BY created_at LIMIT 1
	`
	var c model.WebsiteConnector
	var mappingJSON, limitsJSON []byte
	err := s.db.QueryRowContext(ctx, query, brandID).Scan(
		&c.ID, &c.BrandID, &c.Name, &c.Driver, &c.EncryptedConnString, &c.Table,
		&mappingJSON, &limitsJSON, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active website connector: %w", err)
	}
	if err := json.Unmarshal(mappingJSON, &c.FieldMapping); err != nil {
		return nil, fmt.Errorf("unmarshal field mapping: %w", err)
	}
	if err := json.Unmarshal(limitsJSON, &c.RateLimits); err != nil {
		return nil, fmt.Errorf("unmarshal rate limits: %w", err)
	}
	return &c, nil
}

// ActiveSocialConnector returns the brand's active connector for a platform.
func (s *Store) ActiveSocialConnector(ctx context.Context, brandID string, platform model.Platform) (*model.SocialConnector, error) {
	query := `
		SELECT id, brand_id, platform, account_ref, encrypted_token, token_expires_at,
			platform_settings, rate_limits, active, created_at, updated_at
		FROM social_connectors
		WHERE brand_id = $1 AND platform = $2 AND active
		ORDER BY created_at LIMIT 1
	`
	c, err := scanSocialConnector(s.db.QueryRowContext(ctx, query, brandID, platform))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active social connector: %w", err)
	}
	return c, nil
}

func (s *Store) GetSocialConnector(ctx context.Context, id string) (*model.SocialConnector, error) {
	query := `
		SELECT id, brand_id, platform, account_ref, encrypted_token, token_expires_at,
			platform_settings, rate_limits, active, created_at, updated_at
		FROM social_connectors WHERE id = $1
	`
	c, err := scanSocialConnector(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get social connector %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) GetWebsiteConnector(ctx context.Context, id string) (*model.WebsiteConnector, error) {
	query := `
		SELECT id, brand_id, name, driver, encrypted_conn_string, table_name,
			field_mapping, rate_limits, active, created_at, updated_at
		FROM website_connectors WHERE id = $1
	`
	var c model.WebsiteConnector
	var mappingJSON, limitsJSON []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.BrandID, &c.Name, &c.Driver, &c.EncryptedConnString, &c.Table,
		&mappingJSON, &limitsJSON, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get website connector %s: %w", id, err)
	}
	if err := json.Unmarshal(mappingJSON, &c.FieldMapping); err != nil {
		return nil, fmt.Errorf("unmarshal field mapping: %w", err)
	}
	if err := json.Unmarshal(limitsJSON, &c.RateLimits); err != nil {
		return nil, fmt.Errorf("unmarshal rate limits: %w", err)
	}
	return &c, nil
}

// UpdateSocialToken persists a refreshed, re-encrypted token and its expiry.
func (s *Store) UpdateSocialToken(ctx context.Context, id, encryptedToken string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE social_connectors SET encrypted_token = $2, token_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, encryptedToken, expiresAt)
	if err != nil {
		return fmt.Errorf("update social token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanSocialConnector(row rowScanner) (*model.SocialConnector, error) {
	var c model.SocialConnector
	var settingsJSON, limitsJSON []byte
	err := row.Scan(
		&c.ID, &c.BrandID, &c.Platform, &c.AccountRef, &c.EncryptedToken, &c.TokenExpiresAt,
		&settingsJSON, &limitsJSON, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settingsJSON, &c.PlatformSettings); err != nil {
		return nil, fmt.Errorf("unmarshal platform settings: %w", err)
	}
	if err := json.Unmarshal(limitsJSON, &c.RateLimits); err != nil {
		return nil, fmt.Errorf("unmarshal rate limits: %w", err)
	}
	return &c, nil
}
