package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/publish"
)

// collectBatchSize caps how many jobs one collection pass handles.
const collectBatchSize = 100

// rawMetricNames maps platform-specific metric fields to the canonical
// metric types. Unmapped names are skipped with a debug log, never an
// error, so new platform fields cannot break collection.
var rawMetricNames = map[string]model.MetricType{
	// Facebook / Instagram insights
	"post_impressions":               model.MetricImpressions,
	"post_clicks":                    model.MetricClicks,
	"post_reactions_by_type_total":   model.MetricLikes,
	"impressions":                    model.MetricImpressions,
	"reach":                          model.MetricReach,
	"likes":                          model.MetricLikes,
	"comments":                       model.MetricComments,
	"shares":                         model.MetricShares,

	// Twitter public_metrics
	"retweet_count": model.MetricShares,
	"reply_count":   model.MetricComments,
	"like_count":    model.MetricLikes,
	"quote_count":   model.MetricShares,

	// LinkedIn socialActions
	"totalLikes":              model.MetricLikes,
	"aggregatedTotalComments": model.MetricComments,
}

// Store is the persistence surface the collector needs.
type Store interface {
	JobsDueForMetrics(ctx context.Context, cutoff time.Time, limit int) ([]model.PublishJob, error)
	MarkMetricsCollected(ctx context.Context, jobID string, at time.Time) error
	InsertMetrics(ctx context.Context, metrics []model.Metric) error
	GetSocialConnector(ctx context.Context, id string) (*model.SocialConnector, error)
	GetWebsiteConnector(ctx context.Context, id string) (*model.WebsiteConnector, error)
}

// Collector pulls engagement metrics for published posts once they are
// old enough to have accumulated meaningful numbers.
type Collector struct {
	store    Store
	registry *publish.Registry
	logger   *zap.SugaredLogger

	delay time.Duration
	now   func() time.Time
}

func New(st Store, registry *publish.Registry, delay time.Duration, logger *zap.SugaredLogger) *Collector {
	if delay <= 0 {
		delay = 24 * time.Hour
	}
	return &Collector{
		store:    st,
		registry: registry,
		logger:   logger,
		delay:    delay,
		now:      time.Now,
	}
}

// Run collects metrics for every due job. Per-job failures are logged
// and skipped; the pass always reports how much it processed.
func (c *Collector) Run(ctx context.Context) (collected, failed int, err error) {
	cutoff := c.now().Add(-c.delay)
	jobs, err := c.store.JobsDueForMetrics(ctx, cutoff, collectBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list jobs due for metrics: %w", err)
	}

	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return collected, failed, err
		}
		if err := c.collectJob(ctx, &jobs[i]); err != nil {
			failed++
			c.logger.Warnw("metrics collection failed",
				"job_id", jobs[i].ID, "platform", jobs[i].Platform, "err", err)
			continue
		}
		collected++
	}

	if collected+failed > 0 {
		c.logger.Infow("metrics collection pass complete", "collected", collected, "failed", failed)
	}
	return collected, failed, nil
}

func (c *Collector) collectJob(ctx context.Context, job *model.PublishJob) error {
	if job.Result == nil || job.Result.ExternalID == "" {
		// Nothing to query; stamp it so it is not retried forever.
		return c.store.MarkMetricsCollected(ctx, job.ID, c.now())
	}

	publisher, err := c.registry.Get(job.Platform)
	if err != nil {
		return err
	}

	var conn model.ConnectorRef
	if job.Platform.IsSocial() {
		social, err := c.store.GetSocialConnector(ctx, job.ConnectorID)
		if err != nil {
			return fmt.Errorf("load connector %s: %w", job.ConnectorID, err)
		}
		conn = model.SocialRef(social)
	} else {
		website, err := c.store.GetWebsiteConnector(ctx, job.ConnectorID)
		if err != nil {
			return fmt.Errorf("load connector %s: %w", job.ConnectorID, err)
		}
		conn = model.WebsiteRef(website)
	}

	raw, err := publisher.GetMetrics(ctx, job.Result.ExternalID, conn)
	if err != nil {
		return fmt.Errorf("fetch %s metrics: %w", job.Platform, err)
	}

	now := c.now()
	metrics := Normalize(job.ID, raw, now)
	for name := range raw {
		if _, ok := rawMetricNames[name]; !ok {
			c.logger.Debugw("unmapped platform metric skipped",
				"platform", job.Platform, "raw_name", name)
		}
	}

	if err := c.store.InsertMetrics(ctx, metrics); err != nil {
		return fmt.Errorf("store metrics: %w", err)
	}
	return c.store.MarkMetricsCollected(ctx, job.ID, now)
}

// Normalize converts raw platform metric fields to canonical Metric
// rows, preserving the raw field name. Unknown fields are dropped.
func Normalize(jobID string, raw map[string]int64, at time.Time) []model.Metric {
	out := make([]model.Metric, 0, len(raw))
	for name, value := range raw {
		metricType, ok := rawMetricNames[name]
		if !ok {
			continue
		}
		out = append(out, model.Metric{
			ID:           uuid.NewString(),
			PublishJobID: jobID,
			Type:         metricType,
			Value:        value,
			RawName:      name,
			RecordedAt:   at,
		})
	}
	return out
}
