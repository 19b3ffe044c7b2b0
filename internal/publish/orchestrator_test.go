package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/metrics"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/secrets"
	"github.com/mejba13/brandcaster-ai/internal/store"
)

type fakeOrchStore struct {
	brand    *model.Brand
	draft    *model.ContentDraft
	variants map[model.Platform]*model.ContentVariant
	website  *model.WebsiteConnector
	social   map[model.Platform]*model.SocialConnector

	jobs          map[string]*model.PublishJob // by idempotency key
	jobsByID      map[string]*model.PublishJob
	nextJobID     int
	draftMarked   *time.Time
	variantStatus map[string]model.VariantStatus
	deferred      map[string]time.Time
	tokenUpdates  map[string]string
}

func newFakeOrchStore() *fakeOrchStore {
	now := time.Now()
	return &fakeOrchStore{
		brand: &model.Brand{ID: "brand-1", Name: "Acme"},
		draft: &model.ContentDraft{
			ID:      "draft-1",
			BrandID: "brand-1",
			Title:   "Launch post",
			Status:  model.DraftStatusApproved,
		},
		variants: map[model.Platform]*model.ContentVariant{
			model.PlatformWebsite: {ID: "var-web", DraftID: "draft-1", Platform: model.PlatformWebsite},
			model.PlatformTwitter: {ID: "var-tw", DraftID: "draft-1", Platform: model.PlatformTwitter},
		},
		website: &model.WebsiteConnector{ID: "conn-web", BrandID: "brand-1", Active: true},
		social: map[model.Platform]*model.SocialConnector{
			model.PlatformTwitter: {
				ID: "conn-tw", BrandID: "brand-1", Platform: model.PlatformTwitter, Active: true,
				CreatedAt: now,
			},
		},
		jobs:          make(map[string]*model.PublishJob),
		jobsByID:      make(map[string]*model.PublishJob),
		variantStatus: make(map[string]model.VariantStatus),
		deferred:      make(map[string]time.Time),
		tokenUpdates:  make(map[string]string),
	}
}

func (f *fakeOrchStore) GetBrand(_ context.Context, id string) (*model.Brand, error) {
	return f.brand, nil
}

func (f *fakeOrchStore) GetDraft(_ context.Context, id string) (*model.ContentDraft, error) {
	return f.draft, nil
}

func (f *fakeOrchStore) GetVariant(_ context.Context, draftID string, p model.Platform) (*model.ContentVariant, error) {
	if v, ok := f.variants[p]; ok {
		return v, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrchStore) UpdateVariantStatus(_ context.Context, id string, status model.VariantStatus, _ *time.Time) error {
	f.variantStatus[id] = status
	return nil
}

func (f *fakeOrchStore) MarkDraftPublished(_ context.Context, id string, at time.Time) error {
	f.draftMarked = &at
	f.draft.Status = model.DraftStatusPublished
	return nil
}

func (f *fakeOrchStore) ActiveWebsiteConnector(_ context.Context, brandID string) (*model.WebsiteConnector, error) {
	if f.website == nil {
		return nil, store.ErrNotFound
	}
	return f.website, nil
}

func (f *fakeOrchStore) ActiveSocialConnector(_ context.Context, brandID string, p model.Platform) (*model.SocialConnector, error) {
	if c, ok := f.social[p]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrchStore) GetWebsiteConnector(_ context.Context, id string) (*model.WebsiteConnector, error) {
	if f.website != nil && f.website.ID == id {
		return f.website, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrchStore) GetSocialConnector(_ context.Context, id string) (*model.SocialConnector, error) {
	for _, c := range f.social {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrchStore) UpdateSocialToken(_ context.Context, id, encryptedToken string, _ time.Time) error {
	f.tokenUpdates[id] = encryptedToken
	return nil
}

func (f *fakeOrchStore) FindOrCreatePublishJob(_ context.Context, j *model.PublishJob) (*model.PublishJob, bool, error) {
	if existing, ok := f.jobs[j.IdempotencyKey]; ok {
		return existing, false, nil
	}
	f.nextJobID++
	stored := *j
	stored.ID = string(rune('a' + f.nextJobID - 1))
	stored.CreatedAt = time.Now()
	f.jobs[j.IdempotencyKey] = &stored
	f.jobsByID[stored.ID] = &stored
	return &stored, true, nil
}

func (f *fakeOrchStore) GetPublishJob(_ context.Context, id string) (*model.PublishJob, error) {
	if j, ok := f.jobsByID[id]; ok {
		return j, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrchStore) MarkPublishJobProcessing(_ context.Context, id string) (bool, error) {
	j, ok := f.jobsByID[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if j.Status != model.PublishPending && j.Status != model.PublishFailed {
		return false, nil
	}
	j.Status = model.PublishProcessing
	return true, nil
}

func (f *fakeOrchStore) MarkPublishJobPublished(_ context.Context, id string, result model.PublishResult, at time.Time) error {
	j := f.jobsByID[id]
	j.Status = model.PublishPublished
	j.Result = &result
	j.PublishedAt = &at
	return nil
}

func (f *fakeOrchStore) MarkPublishJobFailed(_ context.Context, id, reason string) error {
	j := f.jobsByID[id]
	j.Status = model.PublishFailed
	return nil
}

func (f *fakeOrchStore) DeferPublishJob(_ context.Context, id string, until time.Time) error {
	f.deferred[id] = until
	return nil
}

type fakeLimiter struct {
	denied map[string]bool
}

func (f *fakeLimiter) Allow(_ context.Context, connectorID string, _ model.RateLimits) (bool, error) {
	return !f.denied[connectorID], nil
}

type stubPublisher struct {
	result  *model.PublishResult
	err     error
	token   *TokenData
	calls   int
	refresh int
}

func (s *stubPublisher) Publish(context.Context, *model.ContentVariant, model.ConnectorRef) (*model.PublishResult, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubPublisher) Delete(context.Context, string, model.ConnectorRef) (bool, error) {
	return false, errors.New("not implemented")
}

func (s *stubPublisher) GetMetrics(context.Context, string, model.ConnectorRef) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (s *stubPublisher) RefreshToken(context.Context, *model.SocialConnector) (*TokenData, error) {
	s.refresh++
	if s.token == nil {
		return nil, errors.New("refresh unsupported")
	}
	return s.token, nil
}

func testSecrets(t *testing.T) *secrets.Store {
	t.Helper()
	key := make([]byte, 32)
	s, err := secrets.NewStore(key)
	require.NoError(t, err)
	return s
}

func testOrchestrator(t *testing.T, st Store, registry *Registry, limiter RateLimiter) *Orchestrator {
	t.Helper()
	return NewOrchestrator(st, registry, limiter, testSecrets(t), metrics.Nop(), zap.NewNop().Sugar())
}

func TestOrchestrator_PublishAllLegs(t *testing.T) {
	st := newFakeOrchStore()
	registry := NewRegistry()
	web := &stubPublisher{result: &model.PublishResult{ExternalID: "post-1"}}
	tw := &stubPublisher{result: &model.PublishResult{ExternalID: "tweet-1"}}
	registry.Register(model.PlatformWebsite, web)
	registry.Register(model.PlatformTwitter, tw)

	o := testOrchestrator(t, st, registry, &fakeLimiter{})
	report, err := o.Publish(context.Background(), "draft-1", AllTargets())
	require.NoError(t, err)

	assert.True(t, report.Success())
	assert.Equal(t, 2, report.Published)
	assert.Zero(t, report.Failed)
	assert.NotNil(t, st.draftMarked)
	assert.Equal(t, model.VariantPublished, st.variantStatus["var-web"])
	assert.Equal(t, model.VariantPublished, st.variantStatus["var-tw"])
}

func TestOrchestrator_PartialFailureStillSucceeds(t *testing.T) {
	st := newFakeOrchStore()
	registry := NewRegistry()
	registry.Register(model.PlatformWebsite, &stubPublisher{result: &model.PublishResult{ExternalID: "post-1"}})
	registry.Register(model.PlatformTwitter, &stubPublisher{err: errors.New("twitter is down")})

	o := testOrchestrator(t, st, registry, &fakeLimiter{})
	report, err := o.Publish(context.Background(), "draft-1", AllTargets())
	require.NoError(t, err)

	assert.True(t, report.Success())
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Failed)
	// The draft still counts as published for the run.
	assert.NotNil(t, st.draftMarked)
	assert.Equal(t, model.VariantFailed, st.variantStatus["var-tw"])
}

func TestOrchestrator_FullFailureLeavesDraftApproved(t *testing.T) {
	st := newFakeOrchStore()
	registry := NewRegistry()
	registry.Register(model.PlatformWebsite, &stubPublisher{err: errors.New("db refused")})
	registry.Register(model.PlatformTwitter, &stubPublisher{err: errors.New("twitter is down")})

	o := testOrchestrator(t, st, registry, &fakeLimiter{})
	report, err := o.Publish(context.Background(), "draft-1", AllTargets())
	require.NoError(t, err)

	assert.False(t, report.Success())
	assert.Equal(t, 2, report.Failed)
	assert.Nil(t, st.draftMarked)
	assert.Equal(t, model.DraftStatusApproved, st.draft.Status)
}

func TestOrchestrator_SkipsUnapprovedDraft(t *testing.T) {
	st := newFakeOrchStore()
	st.draft.Status = model.DraftStatusPendingReview

	o := testOrchestrator(t, st, NewRegistry(), &fakeLimiter{})
	report, err := o.Publish(context.Background(), "draft-1", AllTargets())
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	assert.Empty(t, report.Legs)
}

func TestOrchestrator_IdempotentRepublish(t *testing.T) {
	st := newFakeOrchStore()
	registry := NewRegistry()
	web := &stubPublisher{result: &model.PublishResult{ExternalID: "post-1"}}
	registry.Register(model.PlatformWebsite, web)

	o := testOrchestrator(t, st, registry, &fakeLimiter{})
	opts := Options{Website: true}

	first, err := o.Publish(context.Background(), "draft-1", opts)
	require.NoError(t, err)
	require.Equal(t, 1, first.Published)

	// Second dispatch resolves to the same job and does not repost.
	st.draft.Status = model.DraftStatusApproved
	second, err := o.Publish(context.Background(), "draft-1", opts)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Published)
	assert.Equal(t, "post-1", second.Legs[0].ExternalID)
	assert.Equal(t, 1, web.calls, "platform API must be called exactly once")
}

func TestOrchestrator_RateLimitDefersLeg(t *testing.T) {
	st := newFakeOrchStore()
	registry := NewRegistry()
	tw := &stubPublisher{result: &model.PublishResult{ExternalID: "tweet-1"}}
	registry.Register(model.PlatformTwitter, tw)

	o := testOrchestrator(t, st, registry, &fakeLimiter{denied: map[string]bool{"conn-tw": true}})
	report, err := o.Publish(context.Background(), "draft-1", Options{Social: true, Platforms: []model.Platform{model.PlatformTwitter}})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Deferred)
	assert.Zero(t, report.Published)
	assert.Zero(t, tw.calls)
	assert.Len(t, st.deferred, 1)
	assert.Nil(t, st.draftMarked)
}

func TestOrchestrator_MissingConnectorFailsLegOnly(t *testing.T) {
	st := newFakeOrchStore()
	st.website = nil
	registry := NewRegistry()
	registry.Register(model.PlatformTwitter, &stubPublisher{result: &model.PublishResult{ExternalID: "tweet-1"}})

	o := testOrchestrator(t, st, registry, &fakeLimiter{})
	report, err := o.Publish(context.Background(), "draft-1", AllTargets())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Legs, 2)
	assert.Equal(t, "no active website connector", report.Legs[0].Error)
}

func TestOrchestrator_RefreshesExpiringToken(t *testing.T) {
	st := newFakeOrchStore()
	soon := time.Now().Add(5 * time.Minute)
	st.social[model.PlatformTwitter].TokenExpiresAt = &soon

	registry := NewRegistry()
	tw := &stubPublisher{
		result: &model.PublishResult{ExternalID: "tweet-1"},
		token:  &TokenData{AccessToken: "fresh-token", ExpiresAt: time.Now().Add(2 * time.Hour)},
	}
	registry.Register(model.PlatformTwitter, tw)

	o := testOrchestrator(t, st, registry, &fakeLimiter{})
	report, err := o.Publish(context.Background(), "draft-1", Options{Social: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, tw.refresh)
	assert.Contains(t, st.tokenUpdates, "conn-tw")
}

func TestOrchestrator_RetryPublish(t *testing.T) {
	st := newFakeOrchStore()
	registry := NewRegistry()
	tw := &stubPublisher{err: errors.New("twitter is down")}
	registry.Register(model.PlatformTwitter, tw)

	o := testOrchestrator(t, st, registry, &fakeLimiter{})
	report, err := o.Publish(context.Background(), "draft-1", Options{Social: true})
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	jobID := report.Legs[0].JobID

	t.Run("only failed jobs can be retried", func(t *testing.T) {
		st.jobsByID[jobID].Status = model.PublishPublished
		_, err := o.RetryPublish(context.Background(), jobID)
		assert.ErrorContains(t, err, "only failed jobs")
		st.jobsByID[jobID].Status = model.PublishFailed
	})

	t.Run("retry succeeds after platform recovers", func(t *testing.T) {
		tw.err = nil
		tw.result = &model.PublishResult{ExternalID: "tweet-2"}

		leg, err := o.RetryPublish(context.Background(), jobID)
		require.NoError(t, err)
		assert.True(t, leg.Published)
		assert.Equal(t, "tweet-2", leg.ExternalID)
		assert.NotNil(t, st.draftMarked)
	})
}
