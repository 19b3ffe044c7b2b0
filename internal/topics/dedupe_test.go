package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"lowercases", "Kubernetes Networking Deep Dive", "kubernetes networking deep dive"},
		{"strips punctuation", "AI, Ethics & Policy: What's Next?", "ai ethics policy what s next"},
		{"collapses whitespace", "  spaced   \t out \n title ", "spaced out title"},
		{"only punctuation", "?!...", ""},
		{"keeps digits", "Top 10 APIs of 2026", "top 10 apis of 2026"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("same title", "same title"))
	assert.Equal(t, 0.0, Similarity("", "anything"))
	assert.Equal(t, 0.0, Similarity("anything", ""))

	// One substitution across 20 characters.
	a := "the future of devops"
	b := "the future of devopz"
	assert.InDelta(t, 0.95, Similarity(a, b), 1e-9)

	// Unrelated strings fall well under the duplicate threshold.
	assert.Less(t, Similarity("redis caching strategies", "quarterly earnings preview"), similarityThreshold)
}

func TestDeduper_FilterAgainstHistory(t *testing.T) {
	d := NewDeduper([]string{"The Future of DevOps!", "Serverless cost control"})

	kept := d.Filter([]model.TopicCandidate{
		{Title: "The future of DevOps"},             // exact after normalization
		{Title: "The futures of DevOps"},            // near duplicate
		{Title: "Observability on a shoestring budget"}, // novel
	})

	require.Len(t, kept, 1)
	assert.Equal(t, "Observability on a shoestring budget", kept[0].Title)
}

func TestDeduper_FilterWithinBatch(t *testing.T) {
	d := NewDeduper(nil)

	// Candidates arrive sorted by descending score, so the first of a
	// duplicate pair is the one that survives.
	kept := d.Filter([]model.TopicCandidate{
		{Title: "Why Rust keeps winning developer surveys"},
		{Title: "Why Rust keeps winning developer surveys?"},
		{Title: "Postgres 18 release highlights"},
		{Title: ""},
	})

	require.Len(t, kept, 2)
	assert.Equal(t, "Why Rust keeps winning developer surveys", kept[0].Title)
	assert.Equal(t, "Postgres 18 release highlights", kept[1].Title)
}

func TestDeduper_KeptCandidatesJoinHistory(t *testing.T) {
	d := NewDeduper(nil)

	first := d.Filter([]model.TopicCandidate{{Title: "Edge caching patterns"}})
	require.Len(t, first, 1)

	second := d.Filter([]model.TopicCandidate{{Title: "Edge caching patterns"}})
	assert.Empty(t, second)
}
