package topics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/metrics"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/trends"
)

// historyWindow bounds how far back stored titles are loaded for
// cross-run deduplication.
const historyWindow = 30 * 24 * time.Hour

// discoverLimit is how many raw candidates each source is asked for per
// category, before scoring and deduplication trim the set.
const discoverLimit = 25

// TopicStore is the persistence surface discovery needs.
type TopicStore interface {
	ListCategories(ctx context.Context, brandID string) ([]model.Category, error)
	RecentTopicTitles(ctx context.Context, brandID string, since time.Time) ([]string, error)
	InsertTopic(ctx context.Context, t *model.Topic) error
}

// Discovery runs trend sources for a brand's categories, scores and
// deduplicates the results, and persists the survivors as discovered
// topics.
type Discovery struct {
	registry *trends.Registry
	store    TopicStore
	scorer   *Scorer
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger

	minScore decimal.Decimal
	perCat   int
	now      func() time.Time
}

type DiscoveryOption func(*Discovery)

// WithMinScore drops candidates scoring below the threshold.
func WithMinScore(min decimal.Decimal) DiscoveryOption {
	return func(d *Discovery) { d.minScore = min }
}

// WithPerCategoryLimit caps how many topics are stored per category per run.
func WithPerCategoryLimit(n int) DiscoveryOption {
	return func(d *Discovery) { d.perCat = n }
}

func NewDiscovery(registry *trends.Registry, store TopicStore, m *metrics.Metrics, logger *zap.SugaredLogger, opts ...DiscoveryOption) *Discovery {
	d := &Discovery{
		registry: registry,
		store:    store,
		scorer:   NewScorer(),
		metrics:  m,
		logger:   logger,
		minScore: decimal.NewFromFloat(0.3),
		perCat:   10,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result summarizes one discovery run.
type Result struct {
	Candidates int `json:"candidates"`
	Duplicates int `json:"duplicates"`
	LowScore   int `json:"low_score"`
	Stored     int `json:"stored"`
}

// Run discovers topics for every category of the brand. Source failures
// inside a category are tolerated by the registry; a category only
// contributes an error when all of its sources fail.
func (d *Discovery) Run(ctx context.Context, brandID string) (*Result, error) {
	categories, err := d.store.ListCategories(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(categories) == 0 {
		return &Result{}, nil
	}

	recent, err := d.store.RecentTopicTitles(ctx, brandID, d.now().Add(-historyWindow))
	if err != nil {
		return nil, fmt.Errorf("load recent titles: %w", err)
	}
	deduper := NewDeduper(recent)

	var res Result
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return &res, err
		}
		if err := d.runCategory(ctx, brandID, category, deduper, &res); err != nil {
			d.logger.Warnw("category discovery failed", "brand_id", brandID, "category", category.Name, "err", err)
		}
	}

	d.metrics.RecordTopicsScored(ctx, int64(res.Candidates))
	d.logger.Infow("discovery run complete",
		"brand_id", brandID,
		"candidates", res.Candidates,
		"duplicates", res.Duplicates,
		"low_score", res.LowScore,
		"stored", res.Stored,
	)
	return &res, nil
}

func (d *Discovery) runCategory(ctx context.Context, brandID string, category model.Category, deduper *Deduper, res *Result) error {
	candidates, err := d.registry.Discover(ctx, category, discoverLimit)
	if err != nil {
		return err
	}
	res.Candidates += len(candidates)

	type scored struct {
		candidate model.TopicCandidate
		score     decimal.Decimal
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{candidate: c, score: d.scorer.Score(c, category)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score.GreaterThan(ranked[j].score)
	})

	// Dedupe after ranking so the higher-scored duplicate wins.
	ordered := make([]model.TopicCandidate, len(ranked))
	scores := make(map[string]decimal.Decimal, len(ranked))
	for i, r := range ranked {
		ordered[i] = r.candidate
		scores[NormalizeTitle(r.candidate.Title)] = r.score
	}
	unique := deduper.Filter(ordered)
	res.Duplicates += len(ordered) - len(unique)

	stored := 0
	for _, c := range unique {
		score := scores[NormalizeTitle(c.Title)]
		if score.LessThan(d.minScore) {
			res.LowScore++
			continue
		}
		if stored >= d.perCat {
			break
		}
		topic := &model.Topic{
			ID:              uuid.NewString(),
			BrandID:         brandID,
			CategoryID:      category.ID,
			Title:           c.Title,
			Description:     c.Description,
			Keywords:        c.Keywords,
			SourceURLs:      c.SourceURLs,
			ConfidenceScore: score,
			Status:          model.TopicDiscovered,
			TrendingAt:      d.now(),
		}
		if err := d.store.InsertTopic(ctx, topic); err != nil {
			return fmt.Errorf("insert topic %q: %w", c.Title, err)
		}
		stored++
	}
	res.Stored += stored
	return nil
}
