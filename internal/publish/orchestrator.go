package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/metrics"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/secrets"
	"github.com/mejba13/brandcaster-ai/internal/store"
)

// tokenRefreshWindow triggers a proactive refresh when a connector
// token expires within it.
const tokenRefreshWindow = 30 * time.Minute

// rateLimitDeferDelay is how far a rate-limited leg is pushed back.
const rateLimitDeferDelay = 15 * time.Minute

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetBrand(ctx context.Context, id string) (*model.Brand, error)
	GetDraft(ctx context.Context, id string) (*model.ContentDraft, error)
	GetVariant(ctx context.Context, draftID string, platform model.Platform) (*model.ContentVariant, error)
	UpdateVariantStatus(ctx context.Context, id string, status model.VariantStatus, scheduledFor *time.Time) error
	MarkDraftPublished(ctx context.Context, id string, at time.Time) error

	ActiveWebsiteConnector(ctx context.Context, brandID string) (*model.WebsiteConnector, error)
	ActiveSocialConnector(ctx context.Context, brandID string, platform model.Platform) (*model.SocialConnector, error)
	GetWebsiteConnector(ctx context.Context, id string) (*model.WebsiteConnector, error)
	GetSocialConnector(ctx context.Context, id string) (*model.SocialConnector, error)
	UpdateSocialToken(ctx context.Context, id, encryptedToken string, expiresAt time.Time) error

	FindOrCreatePublishJob(ctx context.Context, j *model.PublishJob) (*model.PublishJob, bool, error)
	GetPublishJob(ctx context.Context, id string) (*model.PublishJob, error)
	MarkPublishJobProcessing(ctx context.Context, id string) (bool, error)
	MarkPublishJobPublished(ctx context.Context, id string, result model.PublishResult, at time.Time) error
	MarkPublishJobFailed(ctx context.Context, id, reason string) error
	DeferPublishJob(ctx context.Context, id string, until time.Time) error
}

// RateLimiter gates external API usage per connector.
type RateLimiter interface {
	Allow(ctx context.Context, connectorID string, limits model.RateLimits) (bool, error)
}

// Options selects which targets a publish run covers. An empty
// Platforms list with Social set means every registered social platform.
type Options struct {
	Website   bool
	Social    bool
	Platforms []model.Platform
}

// AllTargets publishes everywhere.
func AllTargets() Options {
	return Options{Website: true, Social: true}
}

// LegResult is the per-platform outcome of one publish run.
type LegResult struct {
	Platform   model.Platform `json:"platform"`
	JobID      string         `json:"job_id,omitempty"`
	Published  bool           `json:"published"`
	Deferred   bool           `json:"deferred"`
	ExternalID string         `json:"external_id,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Report aggregates all legs of one publish run. Success means at
// least one leg published; on full failure the draft stays approved so
// the run can be retried.
type Report struct {
	DraftID   string      `json:"draft_id"`
	Skipped   bool        `json:"skipped,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Legs      []LegResult `json:"legs"`
	Published int         `json:"published"`
	Deferred  int         `json:"deferred"`
	Failed    int         `json:"failed"`
}

func (r *Report) Success() bool {
	return r.Published > 0
}

func (r *Report) add(leg LegResult) {
	r.Legs = append(r.Legs, leg)
	switch {
	case leg.Published:
		r.Published++
	case leg.Deferred:
		r.Deferred++
	default:
		r.Failed++
	}
}

// Orchestrator runs multi-platform publish fan-out with idempotent
// per-leg bookkeeping.
type Orchestrator struct {
	store    Store
	registry *Registry
	limiter  RateLimiter
	secrets  *secrets.Store
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewOrchestrator(st Store, registry *Registry, limiter RateLimiter, secretStore *secrets.Store, m *metrics.Metrics, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: registry,
		limiter:  limiter,
		secrets:  secretStore,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish runs every requested leg for an approved draft. Leg failures
// are collected per platform, never allowed to abort sibling legs. The
// draft moves to published only when at least one leg succeeded.
func (o *Orchestrator) Publish(ctx context.Context, draftID string, opts Options) (*Report, error) {
	report := &Report{DraftID: draftID}

	draft, err := o.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", draftID, err)
	}

	switch draft.Status {
	case model.DraftStatusApproved:
	case model.DraftStatusPublished:
		o.logger.Warnw("draft already published, skipping", "draft_id", draftID)
		report.Skipped, report.Reason = true, "already published"
		return report, nil
	default:
		o.logger.Warnw("draft not approved, skipping publish",
			"draft_id", draftID, "status", draft.Status)
		report.Skipped, report.Reason = true, fmt.Sprintf("draft status is %s", draft.Status)
		return report, nil
	}

	brand, err := o.store.GetBrand(ctx, draft.BrandID)
	if err != nil {
		return nil, fmt.Errorf("load brand %s: %w", draft.BrandID, err)
	}

	if opts.Website {
		report.add(o.websiteLeg(ctx, draft))
	}
	if opts.Social {
		platforms := opts.Platforms
		if len(platforms) == 0 {
			for _, p := range o.registry.Platforms() {
				if p.IsSocial() {
					platforms = append(platforms, p)
				}
			}
		}
		for _, platform := range platforms {
			if !platform.IsSocial() {
				continue
			}
			report.add(o.socialLeg(ctx, draft, platform))
		}
	}

	if report.Success() {
		if err := o.store.MarkDraftPublished(ctx, draft.ID, o.now()); err != nil {
			return report, fmt.Errorf("mark draft published: %w", err)
		}
	}

	o.logger.Infow("publish run complete",
		"draft_id", draft.ID,
		"brand_id", brand.ID,
		"published", report.Published,
		"deferred", report.Deferred,
		"failed", report.Failed,
	)
	return report, nil
}

func (o *Orchestrator) websiteLeg(ctx context.Context, draft *model.ContentDraft) LegResult {
	leg := LegResult{Platform: model.PlatformWebsite}

	conn, err := o.store.ActiveWebsiteConnector(ctx, draft.BrandID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			leg.Error = "no active website connector"
		} else {
			leg.Error = fmt.Sprintf("load website connector: %v", err)
		}
		return leg
	}
	variant, err := o.store.GetVariant(ctx, draft.ID, model.PlatformWebsite)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			leg.Error = "no website variant"
		} else {
			leg.Error = fmt.Sprintf("load website variant: %v", err)
		}
		return leg
	}

	return o.runLeg(ctx, draft, variant, model.WebsiteRef(conn))
}

func (o *Orchestrator) socialLeg(ctx context.Context, draft *model.ContentDraft, platform model.Platform) LegResult {
	leg := LegResult{Platform: platform}

	conn, err := o.store.ActiveSocialConnector(ctx, draft.BrandID, platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			leg.Error = fmt.Sprintf("no active %s connector", platform)
		} else {
			leg.Error = fmt.Sprintf("load %s connector: %v", platform, err)
		}
		return leg
	}
	variant, err := o.store.GetVariant(ctx, draft.ID, platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			leg.Error = fmt.Sprintf("no %s variant", platform)
		} else {
			leg.Error = fmt.Sprintf("load %s variant: %v", platform, err)
		}
		return leg
	}

	return o.runLeg(ctx, draft, variant, model.SocialRef(conn))
}

// runLeg executes one (variant, connector) publish with find-or-create
// job semantics. Concurrent dispatch of the same logical publish
// resolves to the same job row.
func (o *Orchestrator) runLeg(ctx context.Context, draft *model.ContentDraft, variant *model.ContentVariant, conn model.ConnectorRef) LegResult {
	platform := conn.Platform()
	leg := LegResult{Platform: platform}
	now := o.now()

	job, created, err := o.store.FindOrCreatePublishJob(ctx, &model.PublishJob{
		BrandID:        draft.BrandID,
		DraftID:        draft.ID,
		VariantID:      variant.ID,
		ConnectorID:    conn.ID(),
		Platform:       platform,
		IdempotencyKey: model.PublishIdempotencyKey(variant.ID, conn.ID(), platform),
		Status:         model.PublishPending,
		ScheduledAt:    &now,
	})
	if err != nil {
		leg.Error = fmt.Sprintf("publish job bookkeeping: %v", err)
		return leg
	}
	leg.JobID = job.ID

	// Reuse, never repost: an already-published job is this leg's result.
	if job.Status == model.PublishPublished {
		leg.Published = true
		if job.Result != nil {
			leg.ExternalID = job.Result.ExternalID
		}
		return leg
	}
	if !created && job.Expired(now) {
		reason := "retry horizon exceeded"
		_ = o.store.MarkPublishJobFailed(ctx, job.ID, reason)
		leg.Error = reason
		return leg
	}

	allowed, err := o.limiter.Allow(ctx, conn.ID(), conn.Limits())
	if err != nil {
		leg.Error = fmt.Sprintf("rate limiter: %v", err)
		return leg
	}
	if !allowed {
		o.metrics.RecordRateLimitDenied(ctx, string(platform))
		until := now.Add(rateLimitDeferDelay)
		if err := o.store.DeferPublishJob(ctx, job.ID, until); err != nil {
			leg.Error = fmt.Sprintf("defer rate-limited job: %v", err)
			return leg
		}
		o.logger.Infow("publish leg deferred by rate limit",
			"job_id", job.ID, "platform", platform, "until", until)
		leg.Deferred = true
		return leg
	}

	publisher, err := o.registry.Get(platform)
	if err != nil {
		leg.Error = err.Error()
		return leg
	}

	if conn.Social != nil {
		if err := o.ensureFreshToken(ctx, publisher, conn.Social); err != nil {
			_ = o.store.MarkPublishJobFailed(ctx, job.ID, err.Error())
			leg.Error = err.Error()
			return leg
		}
	}

	claimed, err := o.store.MarkPublishJobProcessing(ctx, job.ID)
	if err != nil {
		leg.Error = fmt.Sprintf("claim publish job: %v", err)
		return leg
	}
	if !claimed {
		// Another worker holds the job; treat as in flight.
		leg.Deferred = true
		return leg
	}

	result, err := publisher.Publish(ctx, variant, conn)
	if err != nil {
		o.metrics.RecordPublishLeg(ctx, string(platform), false)
		_ = o.store.MarkPublishJobFailed(ctx, job.ID, err.Error())
		_ = o.store.UpdateVariantStatus(ctx, variant.ID, model.VariantFailed, nil)
		o.logger.Warnw("publish leg failed",
			"job_id", job.ID, "platform", platform, "err", err)
		leg.Error = err.Error()
		return leg
	}

	publishedAt := o.now()
	if err := o.store.MarkPublishJobPublished(ctx, job.ID, *result, publishedAt); err != nil {
		leg.Error = fmt.Sprintf("record published job: %v", err)
		return leg
	}
	_ = o.store.UpdateVariantStatus(ctx, variant.ID, model.VariantPublished, nil)

	o.metrics.RecordPublishLeg(ctx, string(platform), true)
	leg.Published = true
	leg.ExternalID = result.ExternalID
	return leg
}

// ensureFreshToken refreshes a token expiring inside the refresh
// window, persisting the re-encrypted replacement.
func (o *Orchestrator) ensureFreshToken(ctx context.Context, publisher Publisher, conn *model.SocialConnector) error {
	if conn.TokenExpiresAt == nil || conn.TokenExpiresAt.After(o.now().Add(tokenRefreshWindow)) {
		return nil
	}

	fresh, err := publisher.RefreshToken(ctx, conn)
	if err != nil {
		return fmt.Errorf("refresh %s token: %w", conn.Platform, err)
	}
	encrypted, err := o.secrets.Encrypt(fresh.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt refreshed token: %w", err)
	}
	if err := o.store.UpdateSocialToken(ctx, conn.ID, encrypted, fresh.ExpiresAt); err != nil {
		return fmt.Errorf("persist refreshed token: %w", err)
	}
	conn.EncryptedToken = encrypted
	conn.TokenExpiresAt = &fresh.ExpiresAt
	o.logger.Infow("connector token refreshed",
		"connector_id", conn.ID, "platform", conn.Platform, "expires_at", fresh.ExpiresAt)
	return nil
}

// RetryPublish re-runs a single failed leg. Jobs in any other state
// are rejected so a retry cannot double-post.
func (o *Orchestrator) RetryPublish(ctx context.Context, jobID string) (LegResult, error) {
	job, err := o.store.GetPublishJob(ctx, jobID)
	if err != nil {
		return LegResult{}, fmt.Errorf("load publish job %s: %w", jobID, err)
	}
	if job.Status != model.PublishFailed {
		return LegResult{}, fmt.Errorf("publish job %s is %s, only failed jobs can be retried", jobID, job.Status)
	}

	draft, err := o.store.GetDraft(ctx, job.DraftID)
	if err != nil {
		return LegResult{}, fmt.Errorf("load draft %s: %w", job.DraftID, err)
	}
	variant, err := o.store.GetVariant(ctx, job.DraftID, job.Platform)
	if err != nil {
		return LegResult{}, fmt.Errorf("load %s variant: %w", job.Platform, err)
	}

	var conn model.ConnectorRef
	if job.Platform.IsSocial() {
		social, err := o.store.GetSocialConnector(ctx, job.ConnectorID)
		if err != nil {
			return LegResult{}, fmt.Errorf("load connector %s: %w", job.ConnectorID, err)
		}
		conn = model.SocialRef(social)
	} else {
		website, err := o.store.GetWebsiteConnector(ctx, job.ConnectorID)
		if err != nil {
			return LegResult{}, fmt.Errorf("load connector %s: %w", job.ConnectorID, err)
		}
		conn = model.WebsiteRef(website)
	}

	leg := o.runLeg(ctx, draft, variant, conn)
	if leg.Published && draft.Status == model.DraftStatusApproved {
		if err := o.store.MarkDraftPublished(ctx, draft.ID, o.now()); err != nil {
			return leg, fmt.Errorf("mark draft published: %w", err)
		}
	}
	return leg, nil
}
