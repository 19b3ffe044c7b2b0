package genai

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}

	tests := []struct {
		name     string
		in       string
		expected string
		wantErr  bool
	}{
		{"plain json", `{"title":"hello"}`, "hello", false},
		{"fenced json", "```json\n{\"title\":\"fenced\"}\n```", "fenced", false},
		{"fenced without language tag", "```\n{\"title\":\"bare\"}\n```", "bare", false},
		{"surrounding whitespace", "  \n{\"title\":\"padded\"}\n ", "padded", false},
		{"empty response", "", "", true},
		{"not json", "sorry, I cannot do that", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out payload
			err := decodeJSON(tt.in, &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out.Title)
		})
	}
}

func TestEnforceLimit(t *testing.T) {
	t.Run("under limit unchanged", func(t *testing.T) {
		content := "a short tweet"
		assert.Equal(t, content, enforceLimit(content, model.PlatformTwitter))
	})

	t.Run("unknown platform unbounded", func(t *testing.T) {
		content := strings.Repeat("word ", 20000)
		assert.Equal(t, content, enforceLimit(content, model.PlatformWebsite))
	})

	t.Run("truncates on word boundary with ellipsis", func(t *testing.T) {
		content := strings.Repeat("lorem ipsum ", 50)
		got := enforceLimit(content, model.PlatformTwitter)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), 280)
		assert.True(t, strings.HasSuffix(got, "…"), "got %q", got)
		words := strings.TrimSuffix(got, "…")
		assert.True(t, strings.HasSuffix(words, "lorem") || strings.HasSuffix(words, "ipsum"),
			"truncation split a word: %q", words)
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		content := strings.Repeat("é", 280)
		assert.Equal(t, content, enforceLimit(content, model.PlatformTwitter))
	})
}

func TestPlatformLimit(t *testing.T) {
	assert.Equal(t, 280, PlatformLimit(model.PlatformTwitter))
	assert.Equal(t, 3000, PlatformLimit(model.PlatformLinkedIn))
	assert.Equal(t, 2200, PlatformLimit(model.PlatformInstagram))
	assert.Equal(t, 63206, PlatformLimit(model.PlatformFacebook))
	assert.Equal(t, 0, PlatformLimit(model.PlatformWebsite))
}

func TestIsCritical(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"quota exhausted", errors.New("monthly Quota exceeded"), true},
		{"rate limited", errors.New("429: rate limit hit"), true},
		{"bad credentials", errors.New("401 Unauthorized"), true},
		{"invalid key", errors.New("Invalid API key provided"), true},
		{"wrapped", fmt.Errorf("generate variant: %w", errors.New("authentication failed")), true},
		{"transient network", errors.New("connection reset by peer"), false},
		{"model refusal", errors.New("empty model response"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsCritical(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(&APIError{Status: 429}))
	assert.True(t, IsRetryable(&APIError{Status: 503}))
	assert.False(t, IsRetryable(&APIError{Status: 400}))
	assert.False(t, IsRetryable(&APIError{Status: 401}))
	assert.True(t, IsRetryable(fmt.Errorf("chat: %w", &APIError{Status: 500})))
}
