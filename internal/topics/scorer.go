package topics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// Sub-score weights. They sum to 1 so the clamp only guards rounding.
var (
	weightKeywordRelevance        = 0.40
	weightTitleQuality            = 0.20
	weightDescriptionCompleteness = 0.15
	weightSourceCredibility       = 0.15
	weightRecency                 = 0.10
)

// credibleDomains is the allow-list used for source credibility scoring.
var credibleDomains = []string{
	"reuters.com", "apnews.com", "bbc.com", "bbc.co.uk", "nytimes.com",
	"theguardian.com", "wsj.com", "bloomberg.com", "ft.com", "economist.com",
	"washingtonpost.com", "cnbc.com", "forbes.com", "techcrunch.com",
	"wired.com", "arstechnica.com", "theverge.com", "nature.com",
	"sciencedaily.com", "hbr.org",
}

var howToPrefixes = []string{
	"how to", "how-to", "guide to", "a guide", "the guide",
	"what is", "what are", "why ", "top ", "best ",
}

var clickbaitMarkers = []string{
	"you won't believe", "shocking", "mind-blowing", "doctors hate",
	"this one trick", "one weird trick", "will blow your mind",
	"number ", "!!!",
}

// Scorer assigns a confidence score in [0,1] to topic candidates.
type Scorer struct {
	now func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score computes the weighted confidence for a candidate against its
// category, returned at 4-decimal precision and always within [0,1].
func (s *Scorer) Score(candidate model.TopicCandidate, category model.Category) decimal.Decimal {
	score := weightKeywordRelevance*s.keywordRelevance(candidate, category) +
		weightTitleQuality*s.titleQuality(candidate.Title) +
		weightDescriptionCompleteness*s.descriptionCompleteness(candidate.Description) +
		weightSourceCredibility*s.sourceCredibility(candidate.SourceURLs) +
		weightRecency*s.recency(candidate)

	return decimal.NewFromFloat(clamp01(score)).Round(4)
}

// keywordRelevance is the fraction of category keywords found in the
// candidate's title, description, or keyword set.
func (s *Scorer) keywordRelevance(candidate model.TopicCandidate, category model.Category) float64 {
	if len(category.Keywords) == 0 {
		return 0.5
	}

	haystack := strings.ToLower(candidate.Title + " " + candidate.Description + " " + strings.Join(candidate.Keywords, " "))
	var matched int
	for _, kw := range category.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw == "" {
			continue
		}
		if strings.Contains(haystack, kw) {
			matched++
		}
	}
	return clamp01(float64(matched) / float64(len(category.Keywords)))
}

func (s *Scorer) titleQuality(title string) float64 {
	quality := 1.0
	trimmed := strings.TrimSpace(title)
	lower := strings.ToLower(trimmed)

	if len(trimmed) < 20 {
		quality -= 0.3
	}
	if len(trimmed) > 150 {
		quality -= 0.2
	}
	if strings.HasSuffix(trimmed, "?") {
		quality += 0.1
	}
	for _, prefix := range howToPrefixes {
		if strings.HasPrefix(lower, prefix) {
			quality += 0.15
			break
		}
	}
	for _, marker := range clickbaitMarkers {
		if strings.Contains(lower, marker) {
			quality -= 0.3
			break
		}
	}
	return clamp01(quality)
}

func (s *Scorer) descriptionCompleteness(description string) float64 {
	n := len(strings.TrimSpace(description))
	switch {
	case n == 0:
		return 0.3
	case n < 100:
		// Scale up from 0.5 toward 1.0 as the description approaches 100 chars.
		return 0.5 + 0.5*float64(n)/100
	case n <= 500:
		return 1.0
	default:
		return 0.8
	}
}

func (s *Scorer) sourceCredibility(urls []string) float64 {
	if len(urls) == 0 {
		return 0.5
	}
	var credible int
	for _, raw := range urls {
		lower := strings.ToLower(raw)
		for _, domain := range credibleDomains {
			if strings.Contains(lower, domain) {
				credible++
				break
			}
		}
	}
	return 0.5 + 0.5*float64(credible)/float64(len(urls))
}

func (s *Scorer) recency(candidate model.TopicCandidate) float64 {
	published := publishedAt(candidate)
	if published == nil {
		return 0.7
	}
	age := s.now().Sub(*published)
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 3*24*time.Hour:
		return 0.8
	case age < 7*24*time.Hour:
		return 0.6
	default:
		return 0.4
	}
}

func publishedAt(candidate model.TopicCandidate) *time.Time {
	raw, ok := candidate.Metadata["published_at"].(string)
	if !ok || raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05 MST", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
