package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/mejba13/brandcaster-ai/internal/model"
)

// PlatformError is an API rejection from an external platform.
type PlatformError struct {
	Platform model.Platform
	Status   int
	Message  string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s API rejected request (%d): %s", e.Platform, e.Status, e.Message)
}

// TokenData is the result of an OAuth token refresh.
type TokenData struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Publisher is the uniform per-platform publish contract. GetMetrics
// returns an empty map rather than an error when metrics are missing;
// its keys are raw platform metric names.
type Publisher interface {
	Publish(ctx context.Context, variant *model.ContentVariant, conn model.ConnectorRef) (*model.PublishResult, error)
	Delete(ctx context.Context, postID string, conn model.ConnectorRef) (bool, error)
	GetMetrics(ctx context.Context, postID string, conn model.ConnectorRef) (map[string]int64, error)
	RefreshToken(ctx context.Context, conn *model.SocialConnector) (*TokenData, error)
}

// Registry resolves the publisher for a platform.
type Registry struct {
	publishers map[model.Platform]Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[model.Platform]Publisher)}
}

func (r *Registry) Register(p model.Platform, pub Publisher) {
	r.publishers[p] = pub
}

func (r *Registry) Get(p model.Platform) (Publisher, error) {
	pub, ok := r.publishers[p]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", p)
	}
	return pub, nil
}

func (r *Registry) Platforms() []model.Platform {
	out := make([]model.Platform, 0, len(r.publishers))
	for _, p := range model.AllPlatforms {
		if _, ok := r.publishers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
