package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests    metric.Int64Counter
	HTTPDuration    metric.Float64Histogram
	StageAttempts   metric.Int64Counter
	StageFailures   metric.Int64Counter
	StageExhausted  metric.Int64Counter
	PublishLegs     metric.Int64Counter
	RateLimitDenied metric.Int64Counter
	TopicsScored    metric.Int64Counter
	QueueDepth      metric.Int64UpDownCounter
}

func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"bc_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"bc_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StageAttempts, err = meter.Int64Counter(
		"bc_pipeline_stage_attempts_total",
		metric.WithDescription("Pipeline stage executions by stage and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StageFailures, err = meter.Int64Counter(
		"bc_pipeline_stage_failures_total",
		metric.WithDescription("Pipeline stage failures eligible for retry"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StageExhausted, err = meter.Int64Counter(
		"bc_pipeline_stage_exhausted_total",
		metric.WithDescription("Pipeline stages that exhausted their retry budget"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PublishLegs, err = meter.Int64Counter(
		"bc_publish_legs_total",
		metric.WithDescription("Publish legs by platform and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RateLimitDenied, err = meter.Int64Counter(
		"bc_connector_rate_limit_denied_total",
		metric.WithDescription("Publish attempts deferred by connector rate limits"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TopicsScored, err = meter.Int64Counter(
		"bc_topics_scored_total",
		metric.WithDescription("Topic candidates scored during discovery"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.QueueDepth, err = meter.Int64UpDownCounter(
		"bc_queue_depth",
		metric.WithDescription("Jobs currently pending or claimed in the work queue"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.Handler()
	return m, handler, nil
}

// Nop returns a Metrics that records nothing.
func Nop() *Metrics {
	meter := noop.NewMeterProvider().Meter("nop")
	m := &Metrics{}
	m.HTTPRequests, _ = meter.Int64Counter("nop")
	m.HTTPDuration, _ = meter.Float64Histogram("nop")
	m.StageAttempts, _ = meter.Int64Counter("nop")
	m.StageFailures, _ = meter.Int64Counter("nop")
	m.StageExhausted, _ = meter.Int64Counter("nop")
	m.PublishLegs, _ = meter.Int64Counter("nop")
	m.RateLimitDenied, _ = meter.Int64Counter("nop")
	m.TopicsScored, _ = meter.Int64Counter("nop")
	m.QueueDepth, _ = meter.Int64UpDownCounter("nop")
	return m
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordStageAttempt(ctx context.Context, stage string, ok bool) {
	m.StageAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("ok", ok),
	))
	if !ok {
		m.StageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}

func (m *Metrics) RecordStageExhausted(ctx context.Context, stage string) {
	m.StageExhausted.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) RecordPublishLeg(ctx context.Context, platform string, ok bool) {
	m.PublishLegs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.Bool("ok", ok),
	))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, platform string) {
	m.RateLimitDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", platform)))
}

func (m *Metrics) RecordTopicsScored(ctx context.Context, n int64) {
	m.TopicsScored.Add(ctx, n)
}
