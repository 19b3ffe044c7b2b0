package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

func (s *Store) CreateDraft(ctx context.Context, d *model.ContentDraft) error {
	outlineJSON, err := json.Marshal(d.Outline)
	if err != nil {
		return fmt.Errorf("marshal outline: %w", err)
	}
	seoJSON, err := json.Marshal(d.SEO)
	if err != nil {
		return fmt.Errorf("marshal seo metadata: %w", err)
	}
	violationsJSON, err := json.Marshal(d.Violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}

	query := `
		INSERT INTO content_drafts (id, brand_id, topic_id, title, strategy_brief,
			outline, body, seo_metadata, confidence_score, status, stage,
			regeneration_attempt, violations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.BrandID, d.TopicID, d.Title, d.StrategyBrief,
		outlineJSON, d.Body, seoJSON, d.ConfidenceScore, d.Status, d.Stage,
		d.RegenerationAttempt, violationsJSON,
	)
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (*model.ContentDraft, error) {
	query := `
		SELECT id, brand_id, topic_id, title, strategy_brief, outline, body,
			seo_metadata, confidence_score, status, stage, regeneration_attempt,
			violations, approved_by, approved_at, published_at, deleted_at,
			created_at, updated_at
		FROM content_drafts WHERE id = $1 AND deleted_at IS NULL
	`
	var d model.ContentDraft
	var outlineJSON, seoJSON, violationsJSON []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.BrandID, &d.TopicID, &d.Title, &d.StrategyBrief,
		&outlineJSON, &d.Body, &seoJSON, &d.ConfidenceScore, &d.Status, &d.Stage,
		&d.RegenerationAttempt, &violationsJSON, &d.ApprovedBy, &d.ApprovedAt,
		&d.PublishedAt, &d.DeletedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get draft %s: %w", id, err)
	}
	if err := json.Unmarshal(outlineJSON, &d.Outline); err != nil {
		return nil, fmt.Errorf("unmarshal outline: %w", err)
	}
	if err := json.Unmarshal(seoJSON, &d.SEO); err != nil {
		return nil, fmt.Errorf("unmarshal seo metadata: %w", err)
	}
	if err := json.Unmarshal(violationsJSON, &d.Violations); err != nil {
		return nil, fmt.Errorf("unmarshal violations: %w", err)
	}
	return &d, nil
}

// UpdateDraftContent persists the generated fields a stage produced and
// advances the persisted stage marker.
func (s *Store) UpdateDraftContent(ctx context.Context, d *model.ContentDraft) error {
	outlineJSON, err := json.Marshal(d.Outline)
	if err != nil {
		return fmt.Errorf("marshal outline: %w", err)
	}
	seoJSON, err := json.Marshal(d.SEO)
	if err != nil {
		return fmt.Errorf("marshal seo metadata: %w", err)
	}
	violationsJSON, err := json.Marshal(d.Violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}

	query := `
		UPDATE content_drafts SET
			title = $2, strategy_brief = $3, outline = $4, body = $5,
			seo_metadata = $6, status = $7, stage = $8,
			regeneration_attempt = $9, violations = $10, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query,
		d.ID, d.Title, d.StrategyBrief, outlineJSON, d.Body,
		seoJSON, d.Status, d.Stage, d.RegenerationAttempt, violationsJSON,
	)
	if err != nil {
		return fmt.Errorf("update draft %s: %w", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetDraftByTopic returns the most recent live draft created from a
// topic, so an interrupted stage dispatch can be resumed.
func (s *Store) GetDraftByTopic(ctx context.Context, topicID string) (*model.ContentDraft, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM content_drafts
		WHERE topic_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, topicID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find draft for topic %s: %w", topicID, err)
	}
	return s.GetDraft(ctx, id)
}

// ListApprovedDrafts returns a brand's approved, not yet published
// drafts, oldest approval first.
func (s *Store) ListApprovedDrafts(ctx context.Context, brandID string, limit int) ([]model.ContentDraft, error) {
	query := `
		SELECT id, brand_id, topic_id, title, confidence_score, status, stage,
			approved_by, approved_at, created_at, updated_at
		FROM content_drafts
		WHERE brand_id = $1 AND status = $2
			AND published_at IS NULL AND deleted_at IS NULL
		ORDER BY approved_at ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, brandID, model.DraftStatusApproved, limit)
	if err != nil {
		return nil, fmt.Errorf("list approved drafts: %w", err)
	}
	defer rows.Close()

	var drafts []model.ContentDraft
	for rows.Next() {
		var d model.ContentDraft
		if err := rows.Scan(
			&d.ID, &d.BrandID, &d.TopicID, &d.Title, &d.ConfidenceScore,
			&d.Status, &d.Stage, &d.ApprovedBy, &d.ApprovedAt,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan approved draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (s *Store) SetDraftStatus(ctx context.Context, id string, status model.DraftStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_drafts SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("set draft status: %w", err)
	}
	return nil
}

// ApproveDraft advances a draft to approved and records the approval.
func (s *Store) ApproveDraft(ctx context.Context, id, reviewer string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE content_drafts
		SET status = 'approved', approved_by = $2, approved_at = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND status IN ('draft', 'pending_review')
	`, id, reviewer, at)
	if err != nil {
		return fmt.Errorf("approve draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("draft %s is not approvable", id)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approvals (id, draft_id, reviewer, status) VALUES ($1, $2, $3, 'approved')
	`, uuid.NewString(), id, reviewer)
	if err != nil {
		return fmt.Errorf("record approval: %w", err)
	}

	return tx.Commit()
}

// RejectDraft terminally rejects a draft and records the decision with any
// structured changes requested by the reviewer.
func (s *Store) RejectDraft(ctx context.Context, id, reviewer string, status model.ApprovalStatus, changes map[string]any) error {
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reject tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE content_drafts SET status = 'rejected', updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND status != 'published'
	`, id); err != nil {
		return fmt.Errorf("reject draft: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO approvals (id, draft_id, reviewer, status, changes) VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), id, reviewer, status, changesJSON); err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}

	return tx.Commit()
}

func (s *Store) MarkDraftPublished(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE content_drafts SET status = 'published', published_at = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND status = 'approved'
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark draft published: %w", err)
	}
	return nil
}

func (s *Store) SoftDeleteDraft(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_drafts SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("soft delete draft: %w", err)
	}
	return nil
}

// Variants

func (s *Store) CreateVariant(ctx context.Context, v *model.ContentVariant) error {
	formattingJSON, err := json.Marshal(v.Formatting)
	if err != nil {
		return fmt.Errorf("marshal variant formatting: %w", err)
	}

	query := `
		INSERT INTO content_variants (id, draft_id, platform, title, content, formatting, status, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (draft_id, platform) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			formatting = EXCLUDED.formatting,
			updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query,
		v.ID, v.DraftID, v.Platform, v.Title, v.Content, formattingJSON, v.Status, v.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("create variant: %w", err)
	}
	return nil
}

func (s *Store) GetVariant(ctx context.Context, draftID string, platform model.Platform) (*model.ContentVariant, error) {
	query := `
		SELECT id, draft_id, platform, title, content, formatting, status, scheduled_for, created_at, updated_at
		FROM content_variants WHERE draft_id = $1 AND platform = $2
	`
	return scanVariant(s.db.QueryRowContext(ctx, query, draftID, platform))
}

func (s *Store) ListVariants(ctx context.Context, draftID string) ([]model.ContentVariant, error) {
	query := `
		SELECT id, draft_id, platform, title, content, formatting, status, scheduled_for, created_at, updated_at
		FROM content_variants WHERE draft_id = $1 ORDER BY platform
	`
	rows, err := s.db.QueryContext(ctx, query, draftID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []model.ContentVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, *v)
	}
	return variants, rows.Err()
}

func (s *Store) UpdateVariantStatus(ctx context.Context, id string, status model.VariantStatus, scheduledFor *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE content_variants SET status = $2, scheduled_for = COALESCE($3, scheduled_for), updated_at = NOW()
		WHERE id = $1
	`, id, status, scheduledFor)
	if err != nil {
		return fmt.Errorf("update variant status: %w", err)
	}
	return nil
}

func scanVariant(row rowScanner) (*model.ContentVariant, error) {
	var v model.ContentVariant
	var formattingJSON []byte
	err := row.Scan(
		&v.ID, &v.DraftID, &v.Platform, &v.Title, &v.Content,
		&formattingJSON, &v.Status, &v.ScheduledFor, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(formattingJSON, &v.Formatting); err != nil {
		return nil, fmt.Errorf("unmarshal variant formatting: %w", err)
	}
	return &v, nil
}
