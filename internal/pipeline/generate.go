package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/store"
)

// TopicPeeker previews claim ordering without mutating topic state.
type TopicPeeker interface {
	PeekTopics(ctx context.Context, brandID, categoryID string, limit int) ([]model.Topic, error)
}

// GenerateOptions control a generation batch.
type GenerateOptions struct {
	CategoryID string `json:"category_id,omitempty"`
	// Limit caps how many topics this batch consumes.
	Limit int `json:"limit"`
	// DryRun reports which topics would be consumed without claiming
	// them or enqueueing work.
	DryRun bool `json:"dry_run"`
	// Run carries auto-approve/schedule/immediate overrides into the
	// stage chain for every topic in the batch.
	Run RunOptions `json:"run,omitempty"`
}

// BatchItem is one topic decision in a generation batch.
type BatchItem struct {
	TopicID string `json:"topic_id"`
	Title   string `json:"title"`
	Queued  bool   `json:"queued"`
	Error   string `json:"error,omitempty"`
}

// BatchResult summarizes a generation batch. Counts are complete even
// when individual topics failed.
type BatchResult struct {
	BrandID   string      `json:"brand_id"`
	DryRun    bool        `json:"dry_run,omitempty"`
	Processed int         `json:"processed"`
	Queued    int         `json:"queued"`
	Errors    int         `json:"errors"`
	Items     []BatchItem `json:"items"`
}

// StartGeneration claims up to Limit topics for a brand and enqueues a
// brief job for each. Claiming uses the conditional status update, so
// concurrent batches never pick the same topic.
func (p *Pipeline) StartGeneration(ctx context.Context, brandID string, opts GenerateOptions) (*BatchResult, error) {
	if opts.Limit < 1 {
		opts.Limit = 1
	}

	brand, err := p.store.GetBrand(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("load brand %s: %w", brandID, err)
	}
	if !brand.Active {
		return nil, fmt.Errorf("brand %s is not active", brandID)
	}

	result := &BatchResult{BrandID: brandID, DryRun: opts.DryRun}

	if opts.DryRun {
		peeker, ok := p.store.(TopicPeeker)
		if !ok {
			return nil, fmt.Errorf("store does not support dry-run preview")
		}
		topics, err := peeker.PeekTopics(ctx, brandID, opts.CategoryID, opts.Limit)
		if err != nil {
			return nil, err
		}
		for _, topic := range topics {
			result.Processed++
			result.Queued++
			result.Items = append(result.Items, BatchItem{TopicID: topic.ID, Title: topic.Title, Queued: true})
		}
		return result, nil
	}

	for i := 0; i < opts.Limit; i++ {
		topic, err := p.store.ClaimTopic(ctx, brandID, opts.CategoryID)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("claim topic: %w", err)
		}
		result.Processed++

		item := BatchItem{TopicID: topic.ID, Title: topic.Title}
		if _, err := p.enqueuer.Enqueue(ctx, KindBrief, BriefPayload{TopicID: topic.ID, BrandID: brandID, Run: opts.Run}); err != nil {
			// Undo the claim so the topic stays available.
			if relErr := p.store.ReleaseTopic(ctx, topic.ID); relErr != nil {
				p.logger.Errorw("Failed to release topic after enqueue error",
					"topic_id", topic.ID, "error", relErr)
			}
			item.Error = err.Error()
			result.Errors++
		} else {
			item.Queued = true
			result.Queued++
		}
		result.Items = append(result.Items, item)
	}

	p.logger.Infow("Generation batch dispatched",
		"brand_id", brandID,
		"processed", result.Processed,
		"queued", result.Queued,
		"errors", result.Errors,
	)
	return result, nil
}
