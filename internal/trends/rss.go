package trends

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// RSSSource pulls candidates from a category's configured feeds, falling
// back to defaults when the category has none.
type RSSSource struct {
	defaultFeeds []string
	parser       *gofeed.Parser
	logger       *zap.SugaredLogger
	maxAge       time.Duration
}

func NewRSSSource(defaultFeeds []string, logger *zap.SugaredLogger) *RSSSource {
	return &RSSSource{
		defaultFeeds: defaultFeeds,
		parser:       gofeed.NewParser(),
		logger:       logger,
		maxAge:       7 * 24 * time.Hour,
	}
}

func (s *RSSSource) Name() string { return "rss" }

func (s *RSSSource) Available(ctx context.Context) bool {
	return true
}

func (s *RSSSource) Discover(ctx context.Context, category model.Category, limit int) ([]model.TopicCandidate, error) {
	feeds := category.FeedURLs
	if len(feeds) == 0 {
		feeds = s.defaultFeeds
	}
	if len(feeds) == 0 {
		return nil, nil
	}

	cutoff := time.Now().Add(-s.maxAge)
	var candidates []model.TopicCandidate
	var lastErr error

	for _, feedURL := range feeds {
		if len(candidates) >= limit {
			break
		}
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			s.logger.Warnw("Failed to parse feed", "url", feedURL, "error", err)
			lastErr = err
			continue
		}
		for _, item := range feed.Items {
			if len(candidates) >= limit {
				break
			}
			candidate := itemToCandidate(item, feedURL)
			if candidate == nil {
				continue
			}
			if published := itemTime(item); published != nil && published.Before(cutoff) {
				continue
			}
			candidates = append(candidates, *candidate)
		}
	}

	if len(candidates) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all feeds failed, last error: %w", lastErr)
	}
	return candidates, nil
}

func itemToCandidate(item *gofeed.Item, feedURL string) *model.TopicCandidate {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	link := item.Link
	if link == "" {
		link = item.GUID
	}
	var urls []string
	if link != "" {
		urls = append(urls, link)
	}

	var keywords []string
	for _, c := range item.Categories {
		if kw := strings.ToLower(strings.TrimSpace(c)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	meta := map[string]any{"feed": feedURL}
	if host := hostOf(link); host != "" {
		meta["source"] = host
	}
	if published := itemTime(item); published != nil {
		meta["published_at"] = published.Format(time.RFC3339)
	}

	return &model.TopicCandidate{
		Title:       title,
		Description: strings.TrimSpace(item.Description),
		Keywords:    keywords,
		SourceURLs:  urls,
		Metadata:    meta,
	}
}

func itemTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
