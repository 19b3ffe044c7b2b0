package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// ModerationResult is the outcome of one moderation pass.
type ModerationResult struct {
	Passed     bool                        `json:"passed"`
	Score      decimal.Decimal             `json:"score"`
	Violations []model.ModerationViolation `json:"violations,omitempty"`
}

// Moderator checks generated content against policy and brand safety.
type Moderator interface {
	Moderate(ctx context.Context, text string, brand model.Brand) (*ModerationResult, error)
}

// ChatModerator moderates via the same chat model the generator uses,
// asking for a structured verdict. A dedicated moderation endpoint can
// replace it behind the same interface.
type ChatModerator struct {
	client *Client
}

func NewChatModerator(client *Client) *ChatModerator {
	return &ChatModerator{client: client}
}

const moderationSystem = "You are a strict content moderator. You review draft marketing content " +
	"for policy and brand-safety problems and respond only with JSON."

func (m *ChatModerator) Moderate(ctx context.Context, text string, brand model.Brand) (*ModerationResult, error) {
	prompt := fmt.Sprintf(
		"Review the content below for the brand %q (voice: %s). "+
			"Check for: toxicity, brand_safety, misinformation, tone_mismatch, plagiarism_risk. "+
			"Respond as JSON only: "+
			`{"passed":true,"score":0.95,"violations":[{"type":"...","message":"...","details":"..."}]}. `+
			"Score is overall quality/safety in [0,1]. An empty violations list means passed.\n\nContent:\n%s",
		brand.Name, brand.Voice, text,
	)
	raw, err := m.client.Chat(ctx, moderationSystem, prompt, 800)
	if err != nil {
		return nil, fmt.Errorf("moderate: %w", err)
	}

	var result ModerationResult
	if err := decodeJSON(raw, &result); err != nil {
		return nil, fmt.Errorf("moderate: %w", err)
	}
	for i := range result.Violations {
		result.Violations[i].Type = strings.ToLower(strings.TrimSpace(result.Violations[i].Type))
	}
	// Trust the violations list over the flag when they disagree.
	if len(result.Violations) > 0 {
		result.Passed = false
	}
	return &result, nil
}
