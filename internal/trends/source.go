// Package trends supplies topic candidates from pluggable external sources.
package trends

import (
	"context"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// Source is the trend source adapter contract. Discover returns a finite
// list of candidates for a category; implementations must respect limit.
type Source interface {
	// Discover returns raw topic candidates for the category.
	Discover(ctx context.Context, category model.Category, limit int) ([]model.TopicCandidate, error)

	// Name returns the source identifier used in category source config.
	Name() string

	// Available reports whether the source is currently usable (configured
	// and reachable enough to try).
	Available(ctx context.Context) bool
}
