package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

func (s *Store) InsertTopic(ctx context.Context, t *model.Topic) error {
	keywordsJSON, err := json.Marshal(t.Keywords)
	if err != nil {
		return fmt.Errorf("marshal topic keywords: %w", err)
	}
	urlsJSON, err := json.Marshal(t.SourceURLs)
	if err != nil {
		return fmt.Errorf("marshal topic source urls: %w", err)
	}

	query := `
		INSERT INTO topics (id, brand_id, category_id, title, description, keywords,
			source_urls, confidence_score, status, trending_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.BrandID, t.CategoryID, t.Title, t.Description,
		keywordsJSON, urlsJSON, t.ConfidenceScore, t.Status, t.TrendingAt,
	)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

// ClaimTopic moves the highest-confidence discovered topic for a brand (and
// optional category) to 'queued'. The conditional UPDATE makes the claim a
// real mutual-exclusion point: two concurrent pipeline runs can never select
// the same topic.
func (s *Store) ClaimTopic(ctx context.Context, brandID, categoryID string) (*model.Topic, error) {
	query := `
		UPDATE topics SET status = 'queued'
		WHERE id = (
			SELECT id FROM topics
			WHERE brand_id = $1
			  AND status = 'discovered'
			  AND ($2 = '' OR category_id = $2::uuid)
			ORDER BY confidence_score DESC, trending_at DESC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, brand_id, category_id, title, description, keywords,
			source_urls, confidence_score, status, trending_at, used_at, created_at
	`
	t, err := scanTopic(s.db.QueryRowContext(ctx, query, brandID, categoryID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim topic: %w", err)
	}
	return t, nil
}

// ReleaseTopic returns a queued topic to the discovered pool. Used when a
// pipeline run fails before the topic was consumed.
func (s *Store) ReleaseTopic(ctx context.Context, topicID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET status = 'discovered' WHERE id = $1 AND status = 'queued'`,
		topicID,
	)
	if err != nil {
		return fmt.Errorf("release topic: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Warnw("Release had no effect, topic not queued", "topic", topicID)
	}
	return nil
}

// MarkTopicUsed finalizes a queued topic. The status guard keeps the
// transition one-way and single-shot.
func (s *Store) MarkTopicUsed(ctx context.Context, topicID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET status = 'used', used_at = $2 WHERE id = $1 AND status = 'queued'`,
		topicID, at,
	)
	if err != nil {
		return fmt.Errorf("mark topic used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("topic %s is not queued", topicID)
	}
	return nil
}

// RecentTopicTitles returns titles of brand topics created in the window,
// for history deduplication.
func (s *Store) RecentTopicTitles(ctx context.Context, brandID string, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title FROM topics WHERE brand_id = $1 AND created_at >= $2`,
		brandID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("recent topic titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// PeekTopics reads the same claim ordering without mutating anything,
// for dry-run previews of what generation would pick.
func (s *Store) PeekTopics(ctx context.Context, brandID, categoryID string, limit int) ([]model.Topic, error) {
	query := `
		SELECT id, brand_id, category_id, title, description, keywords,
			source_urls, confidence_score, status, trending_at, used_at, created_at
		FROM topics
		WHERE brand_id = $1
		  AND status = 'discovered'
		  AND ($2 = '' OR category_id = $2::uuid)
		ORDER BY confidence_score DESC, trending_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, brandID, categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("peek topics: %w", err)
	}
	defer rows.Close()

	var topics []model.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}

// ExpireTopics ages out discovered topics older than the cutoff and reports
// how many were expired.
func (s *Store) ExpireTopics(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET status = 'expired' WHERE status = 'discovered' AND trending_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("expire topics: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) GetTopic(ctx context.Context, id string) (*model.Topic, error) {
	query := `
		SELECT id, brand_id, category_id, title, description, keywords,
			source_urls, confidence_score, status, trending_at, used_at, created_at
		FROM topics WHERE id = $1
	`
	t, err := scanTopic(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get topic %s: %w", id, err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopic(row rowScanner) (*model.Topic, error) {
	var t model.Topic
	var keywordsJSON, urlsJSON []byte
	err := row.Scan(
		&t.ID, &t.BrandID, &t.CategoryID, &t.Title, &t.Description,
		&keywordsJSON, &urlsJSON, &t.ConfidenceScore, &t.Status,
		&t.TrendingAt, &t.UsedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(keywordsJSON, &t.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal topic keywords: %w", err)
	}
	if err := json.Unmarshal(urlsJSON, &t.SourceURLs); err != nil {
		return nil, fmt.Errorf("unmarshal topic source urls: %w", err)
	}
	return &t, nil
}
