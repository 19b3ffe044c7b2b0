package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// NewsSource queries a search-engine-news API (SerpAPI-shaped) for trending
// results matching a category's keywords.
type NewsSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.SugaredLogger
}

func NewNewsSource(baseURL, apiKey string, logger *zap.SugaredLogger) *NewsSource {
	return &NewsSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (s *NewsSource) Name() string { return "news" }

func (s *NewsSource) Available(ctx context.Context) bool {
	return s.baseURL != "" && s.apiKey != ""
}

type newsResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Source  string `json:"source"`
	Date    string `json:"date"`
}

type newsResponse struct {
	NewsResults []newsResult `json:"news_results"`
}

func (s *NewsSource) Discover(ctx context.Context, category model.Category, limit int) ([]model.TopicCandidate, error) {
	query := category.Name
	if len(category.Keywords) > 0 {
		query = strings.Join(category.Keywords, " ")
	}

	params := url.Values{}
	params.Set("engine", "google_news")
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", limit))
	params.Set("api_key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build news request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news API returned %d", resp.StatusCode)
	}

	var parsed newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}

	candidates := make([]model.TopicCandidate, 0, len(parsed.NewsResults))
	for _, r := range parsed.NewsResults {
		if len(candidates) >= limit {
			break
		}
		title := strings.TrimSpace(r.Title)
		if title == "" {
			continue
		}
		var urls []string
		if r.Link != "" {
			urls = append(urls, r.Link)
		}
		meta := map[string]any{"engine": "google_news"}
		if r.Source != "" {
			meta["source"] = r.Source
		}
		if r.Date != "" {
			meta["published_at"] = r.Date
		}
		candidates = append(candidates, model.TopicCandidate{
			Title:       title,
			Description: strings.TrimSpace(r.Snippet),
			Keywords:    category.Keywords,
			SourceURLs:  urls,
			Metadata:    meta,
		})
	}

	s.logger.Debugw("News source discovered candidates", "category", category.Name, "count", len(candidates))
	return candidates, nil
}
