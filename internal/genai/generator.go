package genai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// DraftResult is the full-article output of draft generation.
type DraftResult struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	SEO   model.SEOMetadata `json:"seo_metadata"`
}

// VariantResult is one platform rendering of a draft body.
type VariantResult struct {
	Title      string                  `json:"title,omitempty"`
	Content    string                  `json:"content"`
	Formatting model.VariantFormatting `json:"formatting"`
}

// Generator produces content at each pipeline stage. All methods are
// fallible; transport and quota failures surface as retryable errors
// unless the API rejects the request outright.
type Generator interface {
	GenerateBrief(ctx context.Context, topic model.Topic, brand model.Brand) (string, error)
	GenerateOutline(ctx context.Context, brief string, brand model.Brand) ([]model.OutlineSection, error)
	GenerateDraft(ctx context.Context, outline []model.OutlineSection, brand model.Brand, topic model.Topic) (*DraftResult, error)
	GenerateVariant(ctx context.Context, body string, platform model.Platform, brand model.Brand) (*VariantResult, error)
	ImproveContent(ctx context.Context, body, instruction string, brand model.Brand) (string, error)
}

// ChatGenerator implements Generator over a chat-completions client.
type ChatGenerator struct {
	client *Client
}

func NewChatGenerator(client *Client) *ChatGenerator {
	return &ChatGenerator{client: client}
}

func brandSystemPrompt(brand model.Brand) string {
	voice := brand.Voice
	if voice == "" {
		voice = "clear, professional, and approachable"
	}
	return fmt.Sprintf(
		"You are a content strategist writing for the brand %q. Brand voice and style: %s. Stay on brand at all times.",
		brand.Name, voice,
	)
}

func (g *ChatGenerator) GenerateBrief(ctx context.Context, topic model.Topic, brand model.Brand) (string, error) {
	prompt := fmt.Sprintf(
		"Write a content strategy brief for an article about the topic below. "+
			"Cover the angle, target audience, key messages, and desired takeaway. Plain text, 150-250 words.\n\n"+
			"Topic: %s\nDescription: %s\nKeywords: %s",
		topic.Title, topic.Description, strings.Join(topic.Keywords, ", "),
	)
	brief, err := g.client.Chat(ctx, brandSystemPrompt(brand), prompt, 600)
	if err != nil {
		return "", fmt.Errorf("generate brief: %w", err)
	}
	if brief == "" {
		return "", fmt.Errorf("generate brief: empty result")
	}
	return brief, nil
}

func (g *ChatGenerator) GenerateOutline(ctx context.Context, brief string, brand model.Brand) ([]model.OutlineSection, error) {
	prompt := fmt.Sprintf(
		"Based on the strategy brief below, produce an article outline as JSON: "+
			`{"sections":[{"position":1,"heading":"...","summary":"..."}]}. `+
			"Use 4-7 sections. Respond with JSON only.\n\nBrief:\n%s",
		brief,
	)
	text, err := g.client.Chat(ctx, brandSystemPrompt(brand), prompt, 900)
	if err != nil {
		return nil, fmt.Errorf("generate outline: %w", err)
	}

	var parsed struct {
		Sections []model.OutlineSection `json:"sections"`
	}
	if err := decodeJSON(text, &parsed); err != nil {
		return nil, fmt.Errorf("generate outline: %w", err)
	}
	if len(parsed.Sections) == 0 {
		return nil, fmt.Errorf("generate outline: no sections returned")
	}
	sort.Slice(parsed.Sections, func(i, j int) bool {
		return parsed.Sections[i].Position < parsed.Sections[j].Position
	})
	return parsed.Sections, nil
}

func (g *ChatGenerator) GenerateDraft(ctx context.Context, outline []model.OutlineSection, brand model.Brand, topic model.Topic) (*DraftResult, error) {
	var sb strings.Builder
	for _, s := range outline {
		fmt.Fprintf(&sb, "%d. %s", s.Position, s.Heading)
		if s.Summary != "" {
			fmt.Fprintf(&sb, " (%s)", s.Summary)
		}
		sb.WriteByte('\n')
	}

	prompt := fmt.Sprintf(
		"Write a complete article following the outline below, about %q. "+
			"Respond as JSON only: "+
			`{"title":"...","body":"...","seo_metadata":{"meta_description":"...","keywords":["..."],"slug":"...","og_title":"...","og_description":"..."}}. `+
			"The body is full markdown prose, 800-1200 words.\n\nOutline:\n%s",
		topic.Title, sb.String(),
	)
	text, err := g.client.Chat(ctx, brandSystemPrompt(brand), prompt, 4000)
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}

	var result DraftResult
	if err := decodeJSON(text, &result); err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}
	if result.Body == "" {
		return nil, fmt.Errorf("generate draft: empty body returned")
	}
	if result.Title == "" {
		result.Title = topic.Title
	}
	return &result, nil
}

func (g *ChatGenerator) GenerateVariant(ctx context.Context, body string, platform model.Platform, brand model.Brand) (*VariantResult, error) {
	limitNote := ""
	if limit := PlatformLimit(platform); limit > 0 {
		limitNote = fmt.Sprintf(" The content must be at most %d characters.", limit)
	}
	prompt := fmt.Sprintf(
		"Rewrite the article below as a %s post.%s Respond as JSON only: "+
			`{"title":"...","content":"...","formatting":{"hashtags":["..."],"mentions":[]}}. `+
			"Hashtags without the # prefix.\n\nArticle:\n%s",
		platform, limitNote, body,
	)
	text, err := g.client.Chat(ctx, brandSystemPrompt(brand), prompt, 1200)
	if err != nil {
		return nil, fmt.Errorf("generate %s variant: %w", platform, err)
	}

	var result VariantResult
	if err := decodeJSON(text, &result); err != nil {
		return nil, fmt.Errorf("generate %s variant: %w", platform, err)
	}
	if result.Content == "" {
		return nil, fmt.Errorf("generate %s variant: empty content returned", platform)
	}
	result.Content = enforceLimit(result.Content, platform)
	return &result, nil
}

func (g *ChatGenerator) ImproveContent(ctx context.Context, body, instruction string, brand model.Brand) (string, error) {
	prompt := fmt.Sprintf(
		"Revise the article below according to the instruction. Keep the structure and voice, "+
			"change only what the instruction requires. Respond with the revised article text only.\n\n"+
			"Instruction: %s\n\nArticle:\n%s",
		instruction, body,
	)
	improved, err := g.client.Chat(ctx, brandSystemPrompt(brand), prompt, 4000)
	if err != nil {
		return "", fmt.Errorf("improve content: %w", err)
	}
	if improved == "" {
		return "", fmt.Errorf("improve content: empty result")
	}
	return improved, nil
}
