// Package pipeline drives a queued topic through brief, outline, body,
// moderation, and variant generation, then hands approved drafts to
// the publisher. Each stage commits its state and enqueues the next
// stage as a separate job, so stage order holds across crashes.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/config"
	"github.com/mejba13/brandcaster-ai/internal/genai"
	"github.com/mejba13/brandcaster-ai/internal/metrics"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/publish"
	"github.com/mejba13/brandcaster-ai/internal/queue"
)

// Job kinds registered on the work queue.
const (
	KindBrief      = "pipeline.brief"
	KindOutline    = "pipeline.outline"
	KindBody       = "pipeline.body"
	KindModeration = "pipeline.moderation"
	KindVariants   = "pipeline.variants"
	KindPublish    = "publish.dispatch"
)

// RunOptions are per-batch overrides carried through the stage chain.
// Zero values defer to the brand's settings.
type RunOptions struct {
	// AutoApprove approves the draft at the threshold even when the
	// brand has auto-approval off.
	AutoApprove bool `json:"auto_approve,omitempty"`
	// Schedule enqueues the publish at the next available slot once
	// the draft is approved.
	Schedule bool `json:"schedule,omitempty"`
	// Immediate publishes as soon as the draft is approved, skipping
	// slot calculation. Implies Schedule.
	Immediate bool `json:"immediate,omitempty"`
}

// BriefPayload starts a draft from a claimed topic.
type BriefPayload struct {
	TopicID string     `json:"topic_id"`
	BrandID string     `json:"brand_id"`
	Run     RunOptions `json:"run,omitempty"`
}

// DraftPayload advances an existing draft through one stage.
type DraftPayload struct {
	DraftID string     `json:"draft_id"`
	Run     RunOptions `json:"run,omitempty"`
}

// PublishPayload dispatches an approved draft to its publish targets.
type PublishPayload struct {
	DraftID string          `json:"draft_id"`
	Options publish.Options `json:"options"`
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	ClaimTopic(ctx context.Context, brandID, categoryID string) (*model.Topic, error)
	ReleaseTopic(ctx context.Context, topicID string) error
	MarkTopicUsed(ctx context.Context, topicID string, at time.Time) error
	GetTopic(ctx context.Context, id string) (*model.Topic, error)
	GetBrand(ctx context.Context, id string) (*model.Brand, error)

	CreateDraft(ctx context.Context, d *model.ContentDraft) error
	GetDraft(ctx context.Context, id string) (*model.ContentDraft, error)
	GetDraftByTopic(ctx context.Context, topicID string) (*model.ContentDraft, error)
	UpdateDraftContent(ctx context.Context, d *model.ContentDraft) error
	SetDraftStatus(ctx context.Context, id string, status model.DraftStatus) error
	ApproveDraft(ctx context.Context, id, reviewer string, at time.Time) error
	RejectDraft(ctx context.Context, id, reviewer string, status model.ApprovalStatus, changes map[string]any) error
	CreateVariant(ctx context.Context, v *model.ContentVariant) error
	UpdateVariantStatus(ctx context.Context, id string, status model.VariantStatus, scheduledFor *time.Time) error
}

// Enqueuer dispatches follow-up stages. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any) (string, error)
	EnqueueAt(ctx context.Context, kind string, payload any, runAt time.Time) (string, error)
}

// Slotter computes publish timestamps. *scheduler.Scheduler satisfies it.
type Slotter interface {
	NextAvailableSlot(ctx context.Context, brand model.Brand, startFrom time.Time) (time.Time, error)
}

// Publisher runs the multi-platform publish fan-out.
type Publisher interface {
	Publish(ctx context.Context, draftID string, opts publish.Options) (*publish.Report, error)
}

// Pipeline owns the stage handlers and their queue registration.
type Pipeline struct {
	store     Store
	generator genai.Generator
	moderator genai.Moderator
	publisher Publisher
	slotter   Slotter
	enqueuer  Enqueuer
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger

	cfg    config.PipelineConfig
	severe map[string]struct{}
	now    func() time.Time
}

func New(
	st Store,
	generator genai.Generator,
	moderator genai.Moderator,
	publisher Publisher,
	slotter Slotter,
	enqueuer Enqueuer,
	cfg config.PipelineConfig,
	m *metrics.Metrics,
	logger *zap.SugaredLogger,
) *Pipeline {
	severe := make(map[string]struct{}, len(cfg.SevereViolationTypes))
	for _, t := range cfg.SevereViolationTypes {
		severe[t] = struct{}{}
	}
	return &Pipeline{
		store:     st,
		generator: generator,
		moderator: moderator,
		publisher: publisher,
		slotter:   slotter,
		enqueuer:  enqueuer,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		severe:    severe,
		now:       time.Now,
	}
}

var (
	generationBackoff = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}
	moderationBackoff = []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute}
	publishBackoff    = []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour}
)

// Register binds every stage handler to the queue with its retry policy.
func (p *Pipeline) Register(q *queue.Queue) {
	generation := func(fn queue.HandlerFunc, onExhausted queue.ExhaustedFunc) (queue.HandlerFunc, queue.Options) {
		return fn, queue.Options{
			MaxAttempts: 3,
			Backoff:     generationBackoff,
			Timeout:     p.cfg.StageTimeout,
			OnExhausted: onExhausted,
		}
	}

	briefFn, briefOpts := generation(p.handleBrief, p.onBriefExhausted)
	q.Register(KindBrief, briefFn, briefOpts)

	outlineFn, outlineOpts := generation(p.handleOutline, p.onDraftStageExhausted)
	q.Register(KindOutline, outlineFn, outlineOpts)

	bodyFn, bodyOpts := generation(p.handleBody, p.onDraftStageExhausted)
	q.Register(KindBody, bodyFn, bodyOpts)

	q.Register(KindModeration, p.handleModeration, queue.Options{
		MaxAttempts: 3,
		Backoff:     moderationBackoff,
		Timeout:     p.cfg.ModerationTimeout,
		OnExhausted: p.onDraftStageExhausted,
	})

	variantsFn, variantsOpts := generation(p.handleVariants, p.onDraftStageExhausted)
	q.Register(KindVariants, variantsFn, variantsOpts)

	q.Register(KindPublish, p.handlePublish, queue.Options{
		MaxAttempts: 10,
		Backoff:     publishBackoff,
		Timeout:     p.cfg.StageTimeout,
	})
}

// onBriefExhausted returns the claimed topic to the pool; the draft was
// never created.
func (p *Pipeline) onBriefExhausted(ctx context.Context, job *queue.Job, lastErr error) {
	var payload BriefPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.logger.Errorw("Cannot decode exhausted brief payload", "job_id", job.ID, "error", err)
		return
	}
	if err := p.store.ReleaseTopic(ctx, payload.TopicID); err != nil {
		p.logger.Errorw("Failed to release topic after brief exhaustion",
			"topic_id", payload.TopicID, "error", err)
		return
	}
	p.logger.Warnw("Topic released after brief generation exhausted retries",
		"topic_id", payload.TopicID, "error", lastErr)
}

// onDraftStageExhausted terminally rejects the draft so it is never
// left stuck mid-pipeline.
func (p *Pipeline) onDraftStageExhausted(ctx context.Context, job *queue.Job, lastErr error) {
	var payload DraftPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.logger.Errorw("Cannot decode exhausted stage payload", "job_id", job.ID, "error", err)
		return
	}
	changes := map[string]any{"reason": lastErr.Error(), "stage": job.Kind}
	if err := p.store.RejectDraft(ctx, payload.DraftID, model.SystemReviewer, model.ApprovalRejected, changes); err != nil {
		p.logger.Errorw("Failed to reject draft after stage exhaustion",
			"draft_id", payload.DraftID, "error", err)
	}
}

// stageErr classifies a collaborator failure for the queue: permanent
// API rejections become terminal, everything else retries.
func stageErr(err error) error {
	if err == nil {
		return nil
	}
	if !genai.IsRetryable(err) {
		return queue.Terminal(err)
	}
	return err
}
