package trends

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// Registry holds the configured trend sources and resolves which to poll for
// a category. Categories may name sources explicitly; otherwise every
// available source is polled and the results merged.
type Registry struct {
	sources map[string]Source
	order   []string
	logger  *zap.SugaredLogger
}

func NewRegistry(logger *zap.SugaredLogger, sources ...Source) *Registry {
	r := &Registry{
		sources: make(map[string]Source),
		logger:  logger,
	}
	for _, s := range sources {
		r.Add(s)
	}
	return r
}

func (r *Registry) Add(s Source) {
	if _, exists := r.sources[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.sources[s.Name()] = s
}

func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown trend source %q", name)
	}
	return s, nil
}

// ForCategory resolves the sources to poll for a category, skipping
// unavailable ones.
func (r *Registry) ForCategory(ctx context.Context, category model.Category) []Source {
	names := category.SourceNames
	if len(names) == 0 {
		names = r.order
	}

	var selected []Source
	for _, name := range names {
		s, ok := r.sources[name]
		if !ok {
			r.logger.Warnw("Category references unknown trend source", "category", category.Name, "source", name)
			continue
		}
		if !s.Available(ctx) {
			r.logger.Debugw("Trend source unavailable, skipping", "source", name)
			continue
		}
		selected = append(selected, s)
	}
	return selected
}

// Discover polls every resolved source for the category and merges results.
// One source failing does not abort the others.
func (r *Registry) Discover(ctx context.Context, category model.Category, limit int) ([]model.TopicCandidate, error) {
	sources := r.ForCategory(ctx, category)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no available trend sources for category %s", category.Name)
	}

	var merged []model.TopicCandidate
	var failures int
	for _, s := range sources {
		candidates, err := s.Discover(ctx, category, limit)
		if err != nil {
			r.logger.Warnw("Trend source failed", "source", s.Name(), "category", category.Name, "error", err)
			failures++
			continue
		}
		merged = append(merged, candidates...)
	}

	if failures == len(sources) {
		return nil, fmt.Errorf("all %d trend sources failed for category %s", failures, category.Name)
	}
	return merged, nil
}
