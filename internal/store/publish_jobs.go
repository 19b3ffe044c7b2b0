package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// FindOrCreatePublishJob resolves the idempotency key to exactly one row.
// The INSERT ... ON CONFLICT DO NOTHING plus re-read keeps this safe under
// concurrent dispatch of the same logical publish: at most one row exists
// per key, and every caller gets that row back.
func (s *Store) FindOrCreatePublishJob(ctx context.Context, j *model.PublishJob) (*model.PublishJob, bool, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	query := `
		INSERT INTO publish_jobs (id, brand_id, draft_id, variant_id, connector_id,
			platform, idempotency_key, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		j.ID, j.BrandID, j.DraftID, j.VariantID, j.ConnectorID,
		j.Platform, j.IdempotencyKey, j.Status, j.ScheduledAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert publish job: %w", err)
	}

	inserted, _ := res.RowsAffected()
	job, err := s.GetPublishJobByKey(ctx, j.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return job, inserted > 0, nil
}

func (s *Store) GetPublishJob(ctx context.Context, id string) (*model.PublishJob, error) {
	job, err := s.queryPublishJob(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get publish job %s: %w", id, err)
	}
	return job, nil
}

func (s *Store) GetPublishJobByKey(ctx context.Context, key string) (*model.PublishJob, error) {
	job, err := s.queryPublishJob(ctx, `WHERE idempotency_key = $1`, key)
	if err != nil {
		return nil, fmt.Errorf("get publish job by key: %w", err)
	}
	return job, nil
}

func (s *Store) queryPublishJob(ctx context.Context, where string, arg any) (*model.PublishJob, error) {
	query := `
		SELECT id, brand_id, draft_id, variant_id, connector_id, platform,
			idempotency_key, status, attempt_count, scheduled_at, published_at,
			result, last_error, created_at, updated_at
		FROM publish_jobs ` + where
	return scanPublishJob(s.db.QueryRowContext(ctx, query, arg))
}

// MarkPublishJobProcessing claims a pending or failed job for an attempt.
// Returns false when another worker already moved the job on.
func (s *Store) MarkPublishJobProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = 'processing', attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark publish job processing: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) MarkPublishJobPublished(ctx context.Context, id string, result model.PublishResult, at time.Time) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal publish result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = 'published', published_at = $2, result = $3, last_error = '', updated_at = NOW()
		WHERE id = $1
	`, id, at, resultJSON)
	if err != nil {
		return fmt.Errorf("mark publish job published: %w", err)
	}
	return nil
}

func (s *Store) MarkPublishJobFailed(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE publish_jobs SET status = 'failed', last_error = $2, updated_at = NOW() WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("mark publish job failed: %w", err)
	}
	return nil
}

// DeferPublishJob returns a processing job to pending with a new scheduled
// time, without counting the deferral as a failure. Used when a connector's
// rate limit refuses the slot.
func (s *Store) DeferPublishJob(ctx context.Context, id string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = 'pending', attempt_count = attempt_count - 1, scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, until)
	if err != nil {
		return fmt.Errorf("defer publish job: %w", err)
	}
	return nil
}

// CountBrandJobsForDay counts scheduled-or-processing publish jobs in a local
// day window. The scheduler treats this as consumed capacity.
func (s *Store) CountBrandJobsForDay(ctx context.Context, brandID string, dayStart, dayEnd time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM publish_jobs
		WHERE brand_id = $1
		  AND status IN ('pending', 'processing', 'published')
		  AND scheduled_at >= $2 AND scheduled_at < $3
	`, brandID, dayStart, dayEnd).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count brand jobs: %w", err)
	}
	return count, nil
}

// BrandScheduledTimes returns the scheduled times of live publish jobs in a
// window, for slot-proximity checks.
func (s *Store) BrandScheduledTimes(ctx context.Context, brandID string, from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scheduled_at FROM publish_jobs
		WHERE brand_id = $1
		  AND status IN ('pending', 'processing')
		  AND scheduled_at >= $2 AND scheduled_at < $3
	`, brandID, from, to)
	if err != nil {
		return nil, fmt.Errorf("brand scheduled times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan scheduled time: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func scanPublishJob(row rowScanner) (*model.PublishJob, error) {
	var j model.PublishJob
	var resultJSON []byte
	err := row.Scan(
		&j.ID, &j.BrandID, &j.DraftID, &j.VariantID, &j.ConnectorID, &j.Platform,
		&j.IdempotencyKey, &j.Status, &j.AttemptCount, &j.ScheduledAt, &j.PublishedAt,
		&resultJSON, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(resultJSON) > 0 {
		j.Result = &model.PublishResult{}
		if err := json.Unmarshal(resultJSON, j.Result); err != nil {
			return nil, fmt.Errorf("unmarshal publish result: %w", err)
		}
	}
	return &j, nil
}

// JobsDueForMetrics lists published jobs whose engagement metrics have
// not been collected yet and whose publish time is older than cutoff.
func (s *Store) JobsDueForMetrics(ctx context.Context, cutoff time.Time, limit int) ([]model.PublishJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, brand_id, draft_id, variant_id, connector_id, platform,
			idempotency_key, status, attempt_count, scheduled_at, published_at,
			result, last_error, created_at, updated_at
		FROM publish_jobs
		WHERE status = 'published'
		  AND metrics_collected_at IS NULL
		  AND published_at IS NOT NULL AND published_at < $1
		ORDER BY published_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("jobs due for metrics: %w", err)
	}
	defer rows.Close()

	var jobs []model.PublishJob
	for rows.Next() {
		job, err := scanPublishJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan publish job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkMetricsCollected stamps a job so collection runs exactly once.
func (s *Store) MarkMetricsCollected(ctx context.Context, jobID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE publish_jobs SET metrics_collected_at = $2, updated_at = NOW() WHERE id = $1
	`, jobID, at)
	if err != nil {
		return fmt.Errorf("mark metrics collected: %w", err)
	}
	return nil
}

// InsertMetrics stores a batch of normalized engagement measurements.
func (s *Store) InsertMetrics(ctx context.Context, metrics []model.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metrics tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO post_metrics (id, publish_job_id, metric_type, value, raw_name, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("prepare metrics insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, m.PublishJobID, m.Type, m.Value, m.RawName, m.RecordedAt); err != nil {
			return fmt.Errorf("insert metric: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metrics tx: %w", err)
	}
	s.logger.Debugw("Stored metrics batch", "count", len(metrics))
	return nil
}

// EngagementByHour aggregates engagement-type metric values per local-time
// hour of publish for a brand. The scheduler uses it to learn posting times.
func (s *Store) EngagementByHour(ctx context.Context, brandID string, since time.Time) (map[int]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(HOUR FROM pj.published_at)::int AS hour, SUM(pm.value)
		FROM post_metrics pm
		JOIN publish_jobs pj ON pj.id = pm.publish_job_id
		WHERE pj.brand_id = $1
		  AND pm.metric_type IN ('engagement', 'likes', 'shares', 'comments')
		  AND pm.recorded_at >= $2
		  AND pj.published_at IS NOT NULL
		GROUP BY hour
	`, brandID, since)
	if err != nil {
		return nil, fmt.Errorf("engagement by hour: %w", err)
	}
	defer rows.Close()

	result := make(map[int]int64)
	for rows.Next() {
		var hour int
		var total int64
		if err := rows.Scan(&hour, &total); err != nil {
			return nil, fmt.Errorf("scan engagement row: %w", err)
		}
		result[hour] = total
	}
	return result, rows.Err()
}
