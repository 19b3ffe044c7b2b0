package collect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/publish"
)

func TestNormalize(t *testing.T) {
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	t.Run("maps platform fields to canonical types", func(t *testing.T) {
		raw := map[string]int64{
			"post_impressions": 1200,
			"retweet_count":    7,
			"totalLikes":       44,
		}
		metrics := Normalize("job-1", raw, at)
		require.Len(t, metrics, 3)

		byRaw := make(map[string]model.Metric, len(metrics))
		for _, m := range metrics {
			byRaw[m.RawName] = m
		}
		assert.Equal(t, model.MetricImpressions, byRaw["post_impressions"].Type)
		assert.Equal(t, int64(1200), byRaw["post_impressions"].Value)
		assert.Equal(t, model.MetricShares, byRaw["retweet_count"].Type)
		assert.Equal(t, model.MetricLikes, byRaw["totalLikes"].Type)
		for _, m := range metrics {
			assert.Equal(t, "job-1", m.PublishJobID)
			assert.Equal(t, at, m.RecordedAt)
			assert.NotEmpty(t, m.ID)
		}
	})

	t.Run("drops unknown fields", func(t *testing.T) {
		metrics := Normalize("job-1", map[string]int64{"video_completion_rate": 82}, at)
		assert.Empty(t, metrics)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Normalize("job-1", nil, at))
	})
}

type fakeCollectStore struct {
	due       []model.PublishJob
	collected map[string]time.Time
	inserted  []model.Metric
	social    map[string]*model.SocialConnector
}

func newFakeCollectStore(due ...model.PublishJob) *fakeCollectStore {
	return &fakeCollectStore{
		due:       due,
		collected: make(map[string]time.Time),
		social:    make(map[string]*model.SocialConnector),
	}
}

func (f *fakeCollectStore) JobsDueForMetrics(context.Context, time.Time, int) ([]model.PublishJob, error) {
	return f.due, nil
}

func (f *fakeCollectStore) MarkMetricsCollected(_ context.Context, jobID string, at time.Time) error {
	f.collected[jobID] = at
	return nil
}

func (f *fakeCollectStore) InsertMetrics(_ context.Context, metrics []model.Metric) error {
	f.inserted = append(f.inserted, metrics...)
	return nil
}

func (f *fakeCollectStore) GetSocialConnector(_ context.Context, id string) (*model.SocialConnector, error) {
	if c, ok := f.social[id]; ok {
		return c, nil
	}
	return nil, errors.New("connector not found")
}

func (f *fakeCollectStore) GetWebsiteConnector(context.Context, string) (*model.WebsiteConnector, error) {
	return nil, errors.New("connector not found")
}

type fakeMetricsPublisher struct {
	metrics map[string]int64
	err     error
}

func (f *fakeMetricsPublisher) Publish(context.Context, *model.ContentVariant, model.ConnectorRef) (*model.PublishResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMetricsPublisher) Delete(context.Context, string, model.ConnectorRef) (bool, error) {
	return false, errors.New("not implemented")
}

func (f *fakeMetricsPublisher) GetMetrics(context.Context, string, model.ConnectorRef) (map[string]int64, error) {
	return f.metrics, f.err
}

func (f *fakeMetricsPublisher) RefreshToken(context.Context, *model.SocialConnector) (*publish.TokenData, error) {
	return nil, errors.New("not implemented")
}

func TestCollector_Run(t *testing.T) {
	job := model.PublishJob{
		ID:          "job-1",
		ConnectorID: "conn-1",
		Platform:    model.PlatformTwitter,
		Result:      &model.PublishResult{ExternalID: "tweet-9"},
	}

	t.Run("collects and stamps due jobs", func(t *testing.T) {
		st := newFakeCollectStore(job)
		st.social["conn-1"] = &model.SocialConnector{ID: "conn-1", Platform: model.PlatformTwitter}

		registry := publish.NewRegistry()
		registry.Register(model.PlatformTwitter, &fakeMetricsPublisher{
			metrics: map[string]int64{"like_count": 12, "reply_count": 3},
		})

		c := New(st, registry, time.Hour, zap.NewNop().Sugar())
		collected, failed, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, collected)
		assert.Zero(t, failed)
		assert.Len(t, st.inserted, 2)
		assert.Contains(t, st.collected, "job-1")
	})

	t.Run("job without external id is stamped without fetching", func(t *testing.T) {
		bare := job
		bare.Result = nil
		st := newFakeCollectStore(bare)

		c := New(st, publish.NewRegistry(), time.Hour, zap.NewNop().Sugar())
		collected, failed, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, collected)
		assert.Zero(t, failed)
		assert.Empty(t, st.inserted)
		assert.Contains(t, st.collected, "job-1")
	})

	t.Run("per-job failure does not abort the pass", func(t *testing.T) {
		broken := job
		broken.ID = "job-broken"
		broken.ConnectorID = "missing"
		st := newFakeCollectStore(broken, job)
		st.social["conn-1"] = &model.SocialConnector{ID: "conn-1", Platform: model.PlatformTwitter}

		registry := publish.NewRegistry()
		registry.Register(model.PlatformTwitter, &fakeMetricsPublisher{
			metrics: map[string]int64{"like_count": 1},
		})

		c := New(st, registry, time.Hour, zap.NewNop().Sugar())
		collected, failed, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, collected)
		assert.Equal(t, 1, failed)
		assert.NotContains(t, st.collected, "job-broken")
	})
}
