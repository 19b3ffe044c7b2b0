package topics

import (
	"strings"
	"unicode"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// similarityThreshold is the normalized-title similarity at or above
// which two topics are considered duplicates.
const similarityThreshold = 0.85

// Deduper filters candidates whose titles are near-duplicates of each
// other or of recently stored topics.
type Deduper struct {
	history []string // normalized titles of recent topics
}

func NewDeduper(recentTitles []string) *Deduper {
	d := &Deduper{history: make([]string, 0, len(recentTitles))}
	for _, t := range recentTitles {
		if n := NormalizeTitle(t); n != "" {
			d.history = append(d.history, n)
		}
	}
	return d
}

// Filter returns the candidates that are not duplicates, comparing each
// against the stored history and against earlier candidates in the same
// batch. Candidates are assumed pre-sorted by descending score so the
// higher-scored member of a duplicate pair survives.
func (d *Deduper) Filter(candidates []model.TopicCandidate) []model.TopicCandidate {
	kept := make([]model.TopicCandidate, 0, len(candidates))
	for _, c := range candidates {
		norm := NormalizeTitle(c.Title)
		if norm == "" || d.seen(norm) {
			continue
		}
		d.history = append(d.history, norm)
		kept = append(kept, c)
	}
	return kept
}

func (d *Deduper) seen(norm string) bool {
	for _, prev := range d.history {
		if Similarity(norm, prev) >= similarityThreshold {
			return true
		}
	}
	return false
}

// NormalizeTitle lowercases, strips punctuation, and collapses
// whitespace so that trivially different titles compare equal.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Similarity is a character-level match ratio in [0,1] between two
// normalized titles, 1 meaning identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dist := editDistance(a, b)
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return 1 - float64(dist)/float64(longer)
}

// editDistance computes Levenshtein distance with a rolling row.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
