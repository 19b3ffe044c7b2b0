package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mejba13/brandcaster-ai/internal/genai"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/publish"
	"github.com/mejba13/brandcaster-ai/internal/queue"
	"github.com/mejba13/brandcaster-ai/internal/store"
)

// handleBrief turns a claimed topic into a new draft with a strategy
// brief, marks the topic used, and dispatches the outline stage.
func (p *Pipeline) handleBrief(ctx context.Context, job *queue.Job) error {
	var payload BriefPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Terminal(fmt.Errorf("decode brief payload: %w", err))
	}

	topic, err := p.store.GetTopic(ctx, payload.TopicID)
	if err != nil {
		return fmt.Errorf("load topic %s: %w", payload.TopicID, err)
	}
	if topic.Status != model.TopicQueued {
		// A used topic can carry a draft whose outline dispatch failed
		// after the brief committed. Resume that draft instead of
		// stranding it.
		if topic.Status == model.TopicUsed {
			draft, derr := p.store.GetDraftByTopic(ctx, topic.ID)
			switch {
			case derr == nil && draft.Status == model.DraftStatusDraft && draft.Stage == model.StageOutline:
				if _, err := p.enqueuer.Enqueue(ctx, KindOutline, DraftPayload{DraftID: draft.ID, Run: payload.Run}); err != nil {
					return fmt.Errorf("re-dispatch outline stage: %w", err)
				}
				p.logger.Infow("Resumed draft after interrupted outline dispatch",
					"draft_id", draft.ID, "topic_id", topic.ID)
				return nil
			case derr != nil && !errors.Is(derr, store.ErrNotFound):
				return fmt.Errorf("load draft for topic %s: %w", topic.ID, derr)
			}
		}
		return queue.Terminal(fmt.Errorf("topic %s is %s, expected queued", topic.ID, topic.Status))
	}
	brand, err := p.store.GetBrand(ctx, payload.BrandID)
	if err != nil {
		return fmt.Errorf("load brand %s: %w", payload.BrandID, err)
	}

	brief, err := p.generator.GenerateBrief(ctx, *topic, *brand)
	if err != nil {
		p.metrics.RecordStageAttempt(ctx, "brief", false)
		return stageErr(err)
	}

	draft := &model.ContentDraft{
		ID:              uuid.NewString(),
		BrandID:         brand.ID,
		TopicID:         topic.ID,
		Title:           topic.Title,
		StrategyBrief:   brief,
		ConfidenceScore: topic.ConfidenceScore,
		Status:          model.DraftStatusDraft,
		Stage:           model.StageOutline,
	}
	if err := p.store.CreateDraft(ctx, draft); err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	if err := p.store.MarkTopicUsed(ctx, topic.ID, p.now()); err != nil {
		return fmt.Errorf("mark topic used: %w", err)
	}

	p.metrics.RecordStageAttempt(ctx, "brief", true)
	p.logger.Infow("Brief generated", "draft_id", draft.ID, "topic_id", topic.ID)

	if _, err := p.enqueuer.Enqueue(ctx, KindOutline, DraftPayload{DraftID: draft.ID, Run: payload.Run}); err != nil {
		return fmt.Errorf("dispatch outline stage: %w", err)
	}
	return nil
}

// loadActiveDraft fetches a draft still eligible for pipeline work.
func (p *Pipeline) loadActiveDraft(ctx context.Context, job *queue.Job) (*model.ContentDraft, *model.Brand, DraftPayload, error) {
	var payload DraftPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, nil, payload, queue.Terminal(fmt.Errorf("decode stage payload: %w", err))
	}

	draft, err := p.store.GetDraft(ctx, payload.DraftID)
	if err != nil {
		return nil, nil, payload, fmt.Errorf("load draft %s: %w", payload.DraftID, err)
	}
	if draft.Status == model.DraftStatusRejected || draft.DeletedAt != nil {
		return nil, nil, payload, queue.Terminal(fmt.Errorf("draft %s is no longer in the pipeline (status %s)", draft.ID, draft.Status))
	}
	brand, err := p.store.GetBrand(ctx, draft.BrandID)
	if err != nil {
		return nil, nil, payload, fmt.Errorf("load brand %s: %w", draft.BrandID, err)
	}
	return draft, brand, payload, nil
}

func (p *Pipeline) handleOutline(ctx context.Context, job *queue.Job) error {
	draft, brand, payload, err := p.loadActiveDraft(ctx, job)
	if err != nil {
		return err
	}
	if strings.TrimSpace(draft.StrategyBrief) == "" {
		return queue.Terminal(fmt.Errorf("draft %s has no strategy brief", draft.ID))
	}

	outline, err := p.generator.GenerateOutline(ctx, draft.StrategyBrief, *brand)
	if err != nil {
		p.metrics.RecordStageAttempt(ctx, "outline", false)
		return stageErr(err)
	}

	draft.Outline = outline
	draft.Stage = model.StageBody
	if err := p.store.UpdateDraftContent(ctx, draft); err != nil {
		return fmt.Errorf("store outline: %w", err)
	}

	p.metrics.RecordStageAttempt(ctx, "outline", true)
	if _, err := p.enqueuer.Enqueue(ctx, KindBody, DraftPayload{DraftID: draft.ID, Run: payload.Run}); err != nil {
		return fmt.Errorf("dispatch body stage: %w", err)
	}
	return nil
}

func (p *Pipeline) handleBody(ctx context.Context, job *queue.Job) error {
	draft, brand, payload, err := p.loadActiveDraft(ctx, job)
	if err != nil {
		return err
	}
	if len(draft.Outline) == 0 {
		return queue.Terminal(fmt.Errorf("draft %s has no outline", draft.ID))
	}
	topic, err := p.store.GetTopic(ctx, draft.TopicID)
	if err != nil {
		return fmt.Errorf("load topic %s: %w", draft.TopicID, err)
	}

	result, err := p.generator.GenerateDraft(ctx, draft.Outline, *brand, *topic)
	if err != nil {
		p.metrics.RecordStageAttempt(ctx, "body", false)
		return stageErr(err)
	}

	draft.Title = result.Title
	draft.Body = result.Body
	draft.SEO = result.SEO
	draft.Stage = model.StageModeration
	if err := p.store.UpdateDraftContent(ctx, draft); err != nil {
		return fmt.Errorf("store draft body: %w", err)
	}

	p.metrics.RecordStageAttempt(ctx, "body", true)
	if _, err := p.enqueuer.Enqueue(ctx, KindModeration, DraftPayload{DraftID: draft.ID, Run: payload.Run}); err != nil {
		return fmt.Errorf("dispatch moderation stage: %w", err)
	}
	return nil
}

// handleModeration is the domain branch point: pass, regenerate, or
// reject. Policy violations are handled here, never surfaced as stage
// errors.
func (p *Pipeline) handleModeration(ctx context.Context, job *queue.Job) error {
	draft, brand, payload, err := p.loadActiveDraft(ctx, job)
	if err != nil {
		return err
	}
	if strings.TrimSpace(draft.Body) == "" {
		return queue.Terminal(fmt.Errorf("draft %s has an empty body", draft.ID))
	}

	result, err := p.moderator.Moderate(ctx, draft.Body, *brand)
	if err != nil {
		p.metrics.RecordStageAttempt(ctx, "moderation", false)
		return stageErr(err)
	}
	p.metrics.RecordStageAttempt(ctx, "moderation", true)

	draft.ConfidenceScore = result.Score
	draft.Violations = result.Violations

	if result.Passed {
		draft.Violations = nil
		draft.Stage = model.StageVariants
		if err := p.store.UpdateDraftContent(ctx, draft); err != nil {
			return fmt.Errorf("store moderation outcome: %w", err)
		}
		if _, err := p.enqueuer.Enqueue(ctx, KindVariants, DraftPayload{DraftID: draft.ID, Run: payload.Run}); err != nil {
			return fmt.Errorf("dispatch variants stage: %w", err)
		}
		return nil
	}

	if violation, found := p.severeViolation(result.Violations); found {
		if err := p.store.UpdateDraftContent(ctx, draft); err != nil {
			return fmt.Errorf("store violations: %w", err)
		}
		changes := map[string]any{"violation_type": violation.Type, "message": violation.Message}
		if err := p.store.RejectDraft(ctx, draft.ID, model.SystemReviewer, model.ApprovalRejected, changes); err != nil {
			return fmt.Errorf("reject draft: %w", err)
		}
		p.logger.Warnw("Draft rejected for severe violation",
			"draft_id", draft.ID, "violation", violation.Type)
		return nil
	}

	if draft.RegenerationAttempt < p.cfg.MaxRegenerations {
		instruction := improvementInstruction(result.Violations)
		improved, err := p.generator.ImproveContent(ctx, draft.Body, instruction, *brand)
		if err != nil {
			return stageErr(err)
		}

		draft.Body = improved
		draft.RegenerationAttempt++
		if err := p.store.UpdateDraftContent(ctx, draft); err != nil {
			return fmt.Errorf("store regenerated body: %w", err)
		}
		p.logger.Infow("Draft regenerated after moderation failure",
			"draft_id", draft.ID, "attempt", draft.RegenerationAttempt)

		if _, err := p.enqueuer.Enqueue(ctx, KindModeration, DraftPayload{DraftID: draft.ID, Run: payload.Run}); err != nil {
			return fmt.Errorf("re-dispatch moderation: %w", err)
		}
		return nil
	}

	if err := p.store.UpdateDraftContent(ctx, draft); err != nil {
		return fmt.Errorf("store violations: %w", err)
	}
	changes := map[string]any{"reason": "moderation regeneration attempts exhausted"}
	if err := p.store.RejectDraft(ctx, draft.ID, model.SystemReviewer, model.ApprovalRejected, changes); err != nil {
		return fmt.Errorf("reject draft: %w", err)
	}
	p.logger.Warnw("Draft rejected after exhausting regenerations",
		"draft_id", draft.ID, "attempts", draft.RegenerationAttempt)
	return nil
}

func (p *Pipeline) severeViolation(violations []model.ModerationViolation) (model.ModerationViolation, bool) {
	for _, v := range violations {
		if _, ok := p.severe[v.Type]; ok {
			return v, true
		}
	}
	return model.ModerationViolation{}, false
}

// improvementInstruction enumerates the violations as a revision
// request for the improve-content collaborator.
func improvementInstruction(violations []model.ModerationViolation) string {
	var sb strings.Builder
	sb.WriteString("Revise the content to resolve the following issues:")
	for i, v := range violations {
		fmt.Fprintf(&sb, "\n%d. [%s] %s", i+1, v.Type, v.Message)
		if v.Details != "" {
			fmt.Fprintf(&sb, " (%s)", v.Details)
		}
	}
	return sb.String()
}

// handleVariants fans out per-platform rendering. Platforms run
// concurrently; one platform's failure does not stop the others unless
// it carries a critical signature, which aborts the whole stage.
func (p *Pipeline) handleVariants(ctx context.Context, job *queue.Job) error {
	draft, brand, payload, err := p.loadActiveDraft(ctx, job)
	if err != nil {
		return err
	}
	if strings.TrimSpace(draft.Body) == "" {
		return queue.Terminal(fmt.Errorf("draft %s has an empty body", draft.ID))
	}

	platforms := make([]model.Platform, 0, len(p.cfg.Platforms))
	for _, name := range p.cfg.Platforms {
		platform, err := model.ParsePlatform(name)
		if err != nil {
			return queue.Terminal(err)
		}
		platforms = append(platforms, platform)
	}

	var mu sync.Mutex
	created := 0
	failures := make(map[model.Platform]string)

	g, gctx := errgroup.WithContext(ctx)
	for _, platform := range platforms {
		platform := platform
		g.Go(func() error {
			result, err := p.generator.GenerateVariant(gctx, draft.Body, platform, *brand)
			if err != nil {
				if genai.IsCritical(err) {
					return fmt.Errorf("%s variant: %w", platform, err)
				}
				mu.Lock()
				failures[platform] = err.Error()
				mu.Unlock()
				return nil
			}

			title := result.Title
			if title == "" {
				title = draft.Title
			}
			variant := &model.ContentVariant{
				ID:         uuid.NewString(),
				DraftID:    draft.ID,
				Platform:   platform,
				Title:      title,
				Content:    result.Content,
				Formatting: result.Formatting,
				Status:     model.VariantPending,
			}
			if err := p.store.CreateVariant(gctx, variant); err != nil {
				return fmt.Errorf("store %s variant: %w", platform, err)
			}
			mu.Lock()
			created++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.metrics.RecordStageAttempt(ctx, "variants", false)
		return stageErr(err)
	}

	for platform, reason := range failures {
		p.logger.Warnw("Variant generation failed for platform",
			"draft_id", draft.ID, "platform", platform, "reason", reason)
	}
	if created == 0 {
		p.metrics.RecordStageAttempt(ctx, "variants", false)
		return fmt.Errorf("no variants could be generated for draft %s", draft.ID)
	}
	p.metrics.RecordStageAttempt(ctx, "variants", true)

	draft.Stage = model.StageDone
	if err := p.store.UpdateDraftContent(ctx, draft); err != nil {
		return fmt.Errorf("store stage: %w", err)
	}
	return p.gateApproval(ctx, draft, brand, payload.Run)
}

// gateApproval applies the auto-approval policy after variants exist.
// Run overrides widen the brand's settings for this batch only.
func (p *Pipeline) gateApproval(ctx context.Context, draft *model.ContentDraft, brand *model.Brand, run RunOptions) error {
	threshold := brand.Settings.ApproveThreshold()
	if (brand.Settings.AutoApprove || run.AutoApprove) && draft.ConfidenceScore.GreaterThanOrEqual(threshold) {
		if err := p.store.ApproveDraft(ctx, draft.ID, model.SystemReviewer, p.now()); err != nil {
			return fmt.Errorf("auto-approve draft: %w", err)
		}
		p.logger.Infow("Draft auto-approved",
			"draft_id", draft.ID, "score", draft.ConfidenceScore, "threshold", threshold)

		if run.Immediate {
			payload := PublishPayload{DraftID: draft.ID, Options: publish.AllTargets()}
			if _, err := p.enqueuer.Enqueue(ctx, KindPublish, payload); err != nil {
				return fmt.Errorf("dispatch immediate publish: %w", err)
			}
			return nil
		}
		if brand.Settings.AutoPublish || run.Schedule {
			_, err := p.SchedulePublish(ctx, draft.ID, *brand, publish.AllTargets())
			return err
		}
		return nil
	}

	if err := p.store.SetDraftStatus(ctx, draft.ID, model.DraftStatusPendingReview); err != nil {
		return fmt.Errorf("set draft pending review: %w", err)
	}
	p.logger.Infow("Draft awaiting human review",
		"draft_id", draft.ID, "score", draft.ConfidenceScore, "auto_approve", brand.Settings.AutoApprove)
	return nil
}

// SchedulePublish places the publish dispatch at the brand's next
// available slot and returns the chosen slot.
func (p *Pipeline) SchedulePublish(ctx context.Context, draftID string, brand model.Brand, opts publish.Options) (time.Time, error) {
	slot, err := p.slotter.NextAvailableSlot(ctx, brand, p.now())
	if err != nil {
		return time.Time{}, fmt.Errorf("find publish slot: %w", err)
	}
	payload := PublishPayload{DraftID: draftID, Options: opts}
	if _, err := p.enqueuer.EnqueueAt(ctx, KindPublish, payload, slot); err != nil {
		return time.Time{}, fmt.Errorf("schedule publish: %w", err)
	}
	p.logger.Infow("Publish scheduled", "draft_id", draftID, "slot", slot)
	return slot, nil
}

// handlePublish runs the orchestrator. Deferred legs re-dispatch the
// job; a fully failed run returns an error so the queue retries it.
func (p *Pipeline) handlePublish(ctx context.Context, job *queue.Job) error {
	var payload PublishPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Terminal(fmt.Errorf("decode publish payload: %w", err))
	}
	opts := payload.Options
	if !opts.Website && !opts.Social {
		opts = publish.AllTargets()
	}

	report, err := p.publisher.Publish(ctx, payload.DraftID, opts)
	if err != nil {
		return err
	}
	if report.Skipped {
		return nil
	}

	if report.Deferred > 0 {
		// Rate-limited legs parked their publish jobs; revisit them.
		payload.Options = opts
		if _, err := p.enqueuer.EnqueueAt(ctx, KindPublish, payload, p.now().Add(15*time.Minute)); err != nil {
			return fmt.Errorf("re-dispatch deferred publish: %w", err)
		}
	}
	if !report.Success() && report.Failed > 0 && report.Deferred == 0 {
		return fmt.Errorf("all %d publish legs failed for draft %s", report.Failed, payload.DraftID)
	}
	return nil
}
