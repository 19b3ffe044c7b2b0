package topics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

func fixedScorer(now time.Time) *Scorer {
	s := NewScorer()
	s.now = func() time.Time { return now }
	return s
}

func TestScorer_Score(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	category := model.Category{
		Name:     "cloud",
		Keywords: []string{"kubernetes", "serverless"},
	}

	tests := []struct {
		name      string
		candidate model.TopicCandidate
		expected  string
	}{
		{
			// keywords 1.0, title 1.15 clamped to 1.0, description 1.0,
			// sources 1.0, recency 1.0
			name: "strong candidate hits the ceiling",
			candidate: model.TopicCandidate{
				Title:       "How to run serverless workloads on Kubernetes clusters",
				Description: "A detailed walkthrough of running serverless workloads on managed Kubernetes, with cost and latency trade-offs explained for platform teams.",
				SourceURLs:  []string{"https://techcrunch.com/article"},
				Metadata:    map[string]any{"published_at": now.Add(-2 * time.Hour).Format(time.RFC3339)},
			},
			expected: "1",
		},
		{
			// keywords 0, title 0.7 (short), description 0.3 (empty),
			// sources 0.5 (none), recency 0.7 (no timestamp)
			// 0.4*0 + 0.2*0.7 + 0.15*0.3 + 0.15*0.5 + 0.1*0.7 = 0.33
			name: "weak candidate",
			candidate: model.TopicCandidate{
				Title: "Short headline",
			},
			expected: "0.33",
		},
		{
			// keywords 0.5 matched (1 of 2), clickbait title penalty
			name: "clickbait penalized",
			candidate: model.TopicCandidate{
				Title:       "You won't believe this kubernetes deployment story",
				Description: "",
			},
			// 0.4*0.5 + 0.2*0.7 + 0.15*0.3 + 0.15*0.5 + 0.1*0.7 = 0.53
			expected: "0.53",
		},
	}

	s := fixedScorer(now)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.candidate, category)
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestScorer_ScoreAlwaysInRange(t *testing.T) {
	s := fixedScorer(time.Now())
	candidates := []model.TopicCandidate{
		{},
		{Title: "?"},
		{Title: "How to do everything with this one weird trick!!!"},
		{
			Title:       "How to build a question-driven guide, maybe?",
			Description: "A complete and thorough description that sits comfortably in the ideal range for completeness scoring purposes, says the editor.",
			SourceURLs:  []string{"https://reuters.com/x", "https://bbc.com/y"},
		},
	}
	for _, c := range candidates {
		got := s.Score(c, model.Category{})
		assert.True(t, got.GreaterThanOrEqual(decimal.Zero), "score %s below 0 for %q", got, c.Title)
		assert.True(t, got.LessThanOrEqual(decimal.NewFromInt(1)), "score %s above 1 for %q", got, c.Title)
	}
}

func TestScorer_KeywordRelevance(t *testing.T) {
	s := fixedScorer(time.Now())

	t.Run("no keywords yields neutral", func(t *testing.T) {
		got := s.keywordRelevance(model.TopicCandidate{Title: "anything"}, model.Category{})
		assert.Equal(t, 0.5, got)
	})

	t.Run("fraction of keywords matched", func(t *testing.T) {
		category := model.Category{Keywords: []string{"redis", "postgres", "kafka", "etcd"}}
		candidate := model.TopicCandidate{
			Title:       "Scaling Redis for session storage",
			Description: "Postgres replication comes up too.",
		}
		assert.Equal(t, 0.5, s.keywordRelevance(candidate, category))
	})

	t.Run("keywords in candidate keyword set count", func(t *testing.T) {
		category := model.Category{Keywords: []string{"observability"}}
		candidate := model.TopicCandidate{Title: "Tracing 101", Keywords: []string{"Observability", "otel"}}
		assert.Equal(t, 1.0, s.keywordRelevance(candidate, category))
	})
}

func TestScorer_TitleQuality(t *testing.T) {
	s := fixedScorer(time.Now())
	tests := []struct {
		name     string
		title    string
		expected float64
	}{
		{"plain good title", "A reasonable title of adequate length", 1.0},
		{"too short", "tiny", 0.7},
		{"question bonus", "Is your deployment pipeline actually reproducible?", 1.0},
		{"how-to bonus clamped", "How to configure a multi-region failover setup", 1.0},
		{"clickbait floor", "shocking", 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, s.titleQuality(tt.title), 1e-9)
		})
	}
}

func TestScorer_DescriptionCompleteness(t *testing.T) {
	s := fixedScorer(time.Now())

	assert.Equal(t, 0.3, s.descriptionCompleteness(""))
	assert.Equal(t, 0.3, s.descriptionCompleteness("   "))
	assert.InDelta(t, 0.75, s.descriptionCompleteness(pad(50)), 1e-9)
	assert.Equal(t, 1.0, s.descriptionCompleteness(pad(100)))
	assert.Equal(t, 1.0, s.descriptionCompleteness(pad(500)))
	assert.Equal(t, 0.8, s.descriptionCompleteness(pad(501)))
}

func pad(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestScorer_SourceCredibility(t *testing.T) {
	s := fixedScorer(time.Now())

	assert.Equal(t, 0.5, s.sourceCredibility(nil))
	assert.Equal(t, 1.0, s.sourceCredibility([]string{"https://www.reuters.com/tech"}))
	assert.Equal(t, 0.75, s.sourceCredibility([]string{"https://bbc.com/a", "https://example.com/b"}))
	assert.Equal(t, 0.5, s.sourceCredibility([]string{"https://random.blog/post"}))
}

func TestScorer_Recency(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := fixedScorer(now)

	at := func(age time.Duration) model.TopicCandidate {
		return model.TopicCandidate{Metadata: map[string]any{
			"published_at": now.Add(-age).Format(time.RFC3339),
		}}
	}

	assert.Equal(t, 1.0, s.recency(at(6*time.Hour)))
	assert.Equal(t, 0.8, s.recency(at(48*time.Hour)))
	assert.Equal(t, 0.6, s.recency(at(5*24*time.Hour)))
	assert.Equal(t, 0.4, s.recency(at(30*24*time.Hour)))
	assert.Equal(t, 0.7, s.recency(model.TopicCandidate{}))
	assert.Equal(t, 0.7, s.recency(model.TopicCandidate{Metadata: map[string]any{"published_at": "not a date"}}))
}

func TestScorer_RoundsToFourDecimals(t *testing.T) {
	s := fixedScorer(time.Now())
	got := s.Score(model.TopicCandidate{Title: "Short headline"}, model.Category{Keywords: []string{"a", "b", "c"}})
	require.True(t, got.Exponent() >= -4, "expected at most 4 decimal places, got %s", got)
}
