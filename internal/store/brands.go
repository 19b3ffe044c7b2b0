package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

func (s *Store) GetBrand(ctx context.Context, id string) (*model.Brand, error) {
	query := `
		SELECT id, name, voice, settings, active, created_at, updated_at
		FROM brands WHERE id = $1
	`
	var b model.Brand
	var settingsJSON []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.Voice, &settingsJSON, &b.Active, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get brand %s: %w", id, err)
	}
	if err := json.Unmarshal(settingsJSON, &b.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal brand settings: %w", err)
	}
	return &b, nil
}

func (s *Store) ListActiveBrands(ctx context.Context) ([]model.Brand, error) {
	query := `
		SELECT id, name, voice, settings, active, created_at, updated_at
		FROM brands WHERE active ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		var b model.Brand
		var settingsJSON []byte
		if err := rows.Scan(&b.ID, &b.Name, &b.Voice, &settingsJSON, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		if err := json.Unmarshal(settingsJSON, &b.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal brand settings: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (s *Store) UpdateBrandSettings(ctx context.Context, id string, settings model.BrandSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal brand settings: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE brands SET settings = $2, updated_at = NOW() WHERE id = $1`,
		id, settingsJSON,
	)
	if err != nil {
		return fmt.Errorf("update brand settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, brandID string) ([]model.Category, error) {
	query := `
		SELECT id, brand_id, name, keywords, source_names, feed_urls, created_at
		FROM categories WHERE brand_id = $1 ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, brandID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		var keywordsJSON, sourcesJSON, feedsJSON []byte
		if err := rows.Scan(&c.ID, &c.BrandID, &c.Name, &keywordsJSON, &sourcesJSON, &feedsJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if err := json.Unmarshal(keywordsJSON, &c.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal category keywords: %w", err)
		}
		if err := json.Unmarshal(sourcesJSON, &c.SourceNames); err != nil {
			return nil, fmt.Errorf("unmarshal category sources: %w", err)
		}
		if err := json.Unmarshal(feedsJSON, &c.FeedURLs); err != nil {
			return nil, fmt.Errorf("unmarshal category feeds: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
