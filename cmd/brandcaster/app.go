package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/collect"
	"github.com/mejba13/brandcaster-ai/internal/config"
	"github.com/mejba13/brandcaster-ai/internal/genai"
	"github.com/mejba13/brandcaster-ai/internal/jobs"
	"github.com/mejba13/brandcaster-ai/internal/log"
	"github.com/mejba13/brandcaster-ai/internal/metrics"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/pipeline"
	"github.com/mejba13/brandcaster-ai/internal/publish"
	"github.com/mejba13/brandcaster-ai/internal/queue"
	"github.com/mejba13/brandcaster-ai/internal/ratelimit"
	"github.com/mejba13/brandcaster-ai/internal/scheduler"
	"github.com/mejba13/brandcaster-ai/internal/secrets"
	"github.com/mejba13/brandcaster-ai/internal/store"
	"github.com/mejba13/brandcaster-ai/internal/topics"
	"github.com/mejba13/brandcaster-ai/internal/trends"
	"github.com/mejba13/brandcaster-ai/pkg/kv"
	_ "github.com/mejba13/brandcaster-ai/pkg/kv/memory"
	_ "github.com/mejba13/brandcaster-ai/pkg/kv/redis"
)

// app carries the wired components a command needs. Not every command
// wires every field; see the build helpers.
type app struct {
	cfg     *config.Config
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	mux     http.Handler

	store     *store.Store
	cache     kv.Store
	discovery *topics.Discovery
	pipeline  *pipeline.Pipeline
	orch      *publish.Orchestrator
	sched     *scheduler.Scheduler
	queue     *queue.Queue
	maint     *jobs.Maintenance
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// buildBase wires config, logging, metrics, database, and cache.
func buildBase(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	sugar, err := log.NewSugar(cfg.Env)
	if err != nil {
		return nil, err
	}

	m, metricsHandler, err := metrics.Setup("brandcaster")
	if err != nil {
		return nil, fmt.Errorf("setup metrics: %w", err)
	}

	st, err := store.Open(ctx, cfg.Database.PostgresDSN, sugar)
	if err != nil {
		return nil, err
	}

	cache, err := kv.NewStoreFromConfig(kv.Config{
		Backend:   kv.Backend(cfg.Cache.Backend),
		RedisAddr: cfg.Cache.RedisAddr,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}

	return &app{
		cfg:     cfg,
		logger:  sugar,
		metrics: m,
		mux:     metricsHandler,
		store:   st,
		cache:   cache,
	}, nil
}

// buildDiscovery adds the trend sources and discovery orchestrator.
func (a *app) buildDiscovery() {
	registry := trends.NewRegistry(a.logger, trends.NewRSSSource(nil, a.logger))
	if a.cfg.Discovery.NewsAPIKey != "" {
		registry.Add(trends.NewNewsSource(a.cfg.Discovery.NewsAPIURL, a.cfg.Discovery.NewsAPIKey, a.logger))
	}
	a.discovery = topics.NewDiscovery(registry, a.store, a.metrics, a.logger,
		topics.WithPerCategoryLimit(a.cfg.Discovery.PerCategoryLimit))
}

// buildPipeline adds the generator, moderator, publishers, scheduler,
// queue, and the pipeline itself. Requires the encryption key.
func (a *app) buildPipeline() error {
	key, err := a.cfg.EncryptionKeyBytes()
	if err != nil {
		return err
	}
	secretStore, err := secrets.NewStore(key)
	if err != nil {
		return fmt.Errorf("init secret store: %w", err)
	}

	client := genai.NewClient(a.cfg.AI, a.logger)
	generator := genai.NewChatGenerator(client)
	moderator := genai.NewChatModerator(client)

	registry := publish.NewRegistry()
	registry.Register(model.PlatformWebsite, publish.NewWebsitePublisher(secretStore, a.logger))
	registry.Register(model.PlatformFacebook, publish.NewFacebookPublisher(secretStore, a.logger, ""))
	registry.Register(model.PlatformTwitter, publish.NewTwitterPublisher(secretStore, a.logger, ""))
	registry.Register(model.PlatformLinkedIn, publish.NewLinkedInPublisher(secretStore, a.logger, ""))
	registry.Register(model.PlatformInstagram, publish.NewInstagramPublisher(secretStore, a.logger, ""))

	limiter := ratelimit.NewLimiter(a.cache, a.logger)
	a.orch = publish.NewOrchestrator(a.store, registry, limiter, secretStore, a.metrics, a.logger)

	learned := scheduler.NewEngagementTimes(a.store, a.cache)
	a.sched = scheduler.New(a.store, learned, a.cfg.Scheduler, a.logger)

	a.queue = queue.New(a.store.DB(), a.logger, a.metrics, a.cfg.Pipeline.Workers)
	a.pipeline = pipeline.New(
		a.store, generator, moderator, a.orch, a.sched, a.queue,
		a.cfg.Pipeline, a.metrics, a.logger,
	)
	a.pipeline.Register(a.queue)

	collector := collect.New(a.store, registry, a.cfg.Scheduler.MetricsDelay, a.logger)
	a.maint = jobs.NewMaintenance(a.store, a.store, a.discovery, collector, jobs.MaintenanceConfig{
		TopicExpiry: a.cfg.Pipeline.TopicExpiry,
	}, a.logger)
	return nil
}
