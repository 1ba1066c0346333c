package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/sarahrhemadayal/baseline/internal/embeddings"

// Metrics holds the embedding instruments.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	limited  metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{meter: meter, logger: logger}

	var err error
	m.duration, err = meter.Float64Histogram(
		"baseline.embedding.duration_seconds",
		metric.WithDescription("Duration of embedding calls in seconds by provider and model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"baseline.embedding.errors_total",
		metric.WithDescription("Embedding calls that failed, timed out or returned the wrong dimension"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.limited, err = meter.Int64Counter(
		"baseline.embedding.rate_limited_total",
		metric.WithDescription("Embedding calls that gave up waiting for the client-side rate limiter"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create rate limit counter", zap.Error(err))
	}
	return m
}

// Record records one embedding call.
func (m *Metrics) Record(ctx context.Context, provider, model string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordRateLimited counts a call rejected by the limiter.
func (m *Metrics) RecordRateLimited(ctx context.Context, provider string) {
	if m.limited != nil {
		m.limited.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
}
