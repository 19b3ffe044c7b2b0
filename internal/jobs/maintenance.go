// Package jobs runs the periodic background work that keeps the system
// fed: topic discovery per brand, engagement metrics collection, and
// expiry of stale topics.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/collect"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/topics"
)

// BrandLister supplies the brands maintenance loops iterate over.
type BrandLister interface {
	ListActiveBrands(ctx context.Context) ([]model.Brand, error)
}

// TopicExpirer ages out unused topics.
type TopicExpirer interface {
	ExpireTopics(ctx context.Context, cutoff time.Time) (int64, error)
}

type MaintenanceConfig struct {
	DiscoveryInterval time.Duration
	CollectInterval   time.Duration
	ExpiryInterval    time.Duration
	// TopicExpiry is how long a discovered topic stays eligible.
	TopicExpiry time.Duration
}

// Maintenance owns the background tickers. Start launches one goroutine
// per loop and returns; cancel the context to stop them all.
type Maintenance struct {
	brands    BrandLister
	expirer   TopicExpirer
	discovery *topics.Discovery
	collector *collect.Collector
	logger    *zap.SugaredLogger
	cfg       MaintenanceConfig

	wg sync.WaitGroup
}

func NewMaintenance(
	brands BrandLister,
	expirer TopicExpirer,
	discovery *topics.Discovery,
	collector *collect.Collector,
	cfg MaintenanceConfig,
	logger *zap.SugaredLogger,
) *Maintenance {
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = 6 * time.Hour
	}
	if cfg.CollectInterval <= 0 {
		cfg.CollectInterval = time.Hour
	}
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = 12 * time.Hour
	}
	if cfg.TopicExpiry <= 0 {
		cfg.TopicExpiry = 7 * 24 * time.Hour
	}
	return &Maintenance{
		brands:    brands,
		expirer:   expirer,
		discovery: discovery,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
	}
}

func (m *Maintenance) Start(ctx context.Context) {
	m.logger.Infow("Starting maintenance loops",
		"discovery_interval", m.cfg.DiscoveryInterval,
		"collect_interval", m.cfg.CollectInterval,
		"expiry_interval", m.cfg.ExpiryInterval,
	)
	m.loop(ctx, m.cfg.DiscoveryInterval, m.runDiscovery)
	m.loop(ctx, m.cfg.CollectInterval, m.runCollection)
	m.loop(ctx, m.cfg.ExpiryInterval, m.runExpiry)
}

// Wait blocks until every loop has exited after context cancellation.
func (m *Maintenance) Wait() {
	m.wg.Wait()
}

func (m *Maintenance) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// RunDiscoveryAll runs discovery for every active brand, tolerating
// per-brand failures.
func (m *Maintenance) RunDiscoveryAll(ctx context.Context) {
	brands, err := m.brands.ListActiveBrands(ctx)
	if err != nil {
		m.logger.Errorw("Failed to list brands for discovery", "error", err)
		return
	}
	for _, brand := range brands {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.discovery.Run(ctx, brand.ID); err != nil {
			m.logger.Warnw("Discovery failed for brand", "brand_id", brand.ID, "error", err)
		}
	}
}

func (m *Maintenance) runDiscovery(ctx context.Context) {
	m.RunDiscoveryAll(ctx)
}

func (m *Maintenance) runCollection(ctx context.Context) {
	if _, _, err := m.collector.Run(ctx); err != nil {
		m.logger.Errorw("Metrics collection pass failed", "error", err)
	}
}

func (m *Maintenance) runExpiry(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.TopicExpiry)
	n, err := m.expirer.ExpireTopics(ctx, cutoff)
	if err != nil {
		m.logger.Errorw("Topic expiry failed", "error", err)
		return
	}
	if n > 0 {
		m.logger.Infow("Expired stale topics", "count", n, "cutoff", cutoff)
	}
}
