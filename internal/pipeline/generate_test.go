package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/metrics"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/store"
)

// claimableStore adds a claimable topic pool and peeking on top of the
// stage-test fake.
type claimableStore struct {
	*fakePipeStore
	pool []*model.Topic
}

func newClaimableStore(titles ...string) *claimableStore {
	cs := &claimableStore{fakePipeStore: newFakePipeStore()}
	cs.brand.Active = true
	for i, title := range titles {
		cs.pool = append(cs.pool, &model.Topic{
			ID:     string(rune('a' + i)),
			Title:  title,
			Status: model.TopicDiscovered,
		})
	}
	return cs
}

func (c *claimableStore) ClaimTopic(_ context.Context, brandID, categoryID string) (*model.Topic, error) {
	for _, t := range c.pool {
		if t.Status == model.TopicDiscovered {
			t.Status = model.TopicQueued
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (c *claimableStore) ReleaseTopic(_ context.Context, topicID string) error {
	for _, t := range c.pool {
		if t.ID == topicID {
			t.Status = model.TopicDiscovered
		}
	}
	return c.fakePipeStore.ReleaseTopic(context.Background(), topicID)
}

func (c *claimableStore) PeekTopics(_ context.Context, brandID, categoryID string, limit int) ([]model.Topic, error) {
	var out []model.Topic
	for _, t := range c.pool {
		if t.Status != model.TopicDiscovered {
			continue
		}
		out = append(out, *t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type failingEnqueuer struct {
	fakeEnqueuer
	failKinds map[string]bool
}

func (f *failingEnqueuer) Enqueue(ctx context.Context, kind string, payload any) (string, error) {
	if f.failKinds[kind] {
		return "", errors.New("queue unavailable")
	}
	return f.fakeEnqueuer.Enqueue(ctx, kind, payload)
}

func generationPipeline(st Store, enq Enqueuer) *Pipeline {
	return New(st, &fakeGenerator{}, &fakeModerator{}, nil, &fixedSlotter{}, enq,
		testPipelineConfig(), metrics.Nop(), zap.NewNop().Sugar())
}

func TestStartGeneration(t *testing.T) {
	ctx := context.Background()

	t.Run("claims and queues up to limit", func(t *testing.T) {
		st := newClaimableStore("first", "second", "third")
		enq := &fakeEnqueuer{}
		p := generationPipeline(st, enq)

		res, err := p.StartGeneration(ctx, "brand-1", GenerateOptions{Limit: 2})
		require.NoError(t, err)

		assert.Equal(t, 2, res.Processed)
		assert.Equal(t, 2, res.Queued)
		assert.Zero(t, res.Errors)
		assert.Equal(t, []string{KindBrief, KindBrief}, enq.kinds())
		assert.Equal(t, model.TopicQueued, st.pool[0].Status)
		assert.Equal(t, model.TopicQueued, st.pool[1].Status)
		assert.Equal(t, model.TopicDiscovered, st.pool[2].Status)
	})

	t.Run("stops early when the pool runs dry", func(t *testing.T) {
		st := newClaimableStore("only one")
		p := generationPipeline(st, &fakeEnqueuer{})

		res, err := p.StartGeneration(ctx, "brand-1", GenerateOptions{Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Processed)
	})

	t.Run("inactive brand refuses", func(t *testing.T) {
		st := newClaimableStore("first")
		st.brand.Active = false
		p := generationPipeline(st, &fakeEnqueuer{})

		_, err := p.StartGeneration(ctx, "brand-1", GenerateOptions{Limit: 1})
		assert.ErrorContains(t, err, "not active")
	})

	t.Run("dry run claims nothing", func(t *testing.T) {
		st := newClaimableStore("first", "second")
		enq := &fakeEnqueuer{}
		p := generationPipeline(st, enq)

		res, err := p.StartGeneration(ctx, "brand-1", GenerateOptions{Limit: 2, DryRun: true})
		require.NoError(t, err)

		assert.True(t, res.DryRun)
		assert.Equal(t, 2, res.Processed)
		assert.Empty(t, enq.jobs)
		for _, topic := range st.pool {
			assert.Equal(t, model.TopicDiscovered, topic.Status)
		}
	})

	t.Run("enqueue failure releases the topic", func(t *testing.T) {
		st := newClaimableStore("first")
		enq := &failingEnqueuer{failKinds: map[string]bool{KindBrief: true}}
		p := generationPipeline(st, enq)

		res, err := p.StartGeneration(ctx, "brand-1", GenerateOptions{Limit: 1})
		require.NoError(t, err)

		assert.Equal(t, 1, res.Errors)
		assert.Zero(t, res.Queued)
		assert.Equal(t, model.TopicDiscovered, st.pool[0].Status)
	})
}
