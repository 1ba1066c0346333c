package workflows

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/sarahrhemadayal/baseline/internal/workflows"

// Metrics holds the activity instruments. A nil instrument is skipped.
type Metrics struct {
	activityDuration metric.Float64Histogram
	activityErrors   metric.Int64Counter
	vectorsCreated   metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics() *Metrics {
	return newMetrics(otel.Meter(instrumentationName))
}

func newMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}
	m.activityDuration, _ = meter.Float64Histogram(
		"baseline.workflows.activity.duration",
		metric.WithDescription("Duration of workflow activity executions"),
		metric.WithUnit("s"),
	)
	m.activityErrors, _ = meter.Int64Counter(
		"baseline.workflows.activity.errors",
		metric.WithDescription("Number of activity execution errors"),
		metric.WithUnit("{error}"),
	)
	m.vectorsCreated, _ = meter.Int64Counter(
		"baseline.workflows.ingest.vectors_created",
		metric.WithDescription("Vectors written by durable ingestion"),
		metric.WithUnit("{vector}"),
	)
	return m
}

// RecordActivity records one activity execution.
func (m *Metrics) RecordActivity(ctx context.Context, name string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("activity", name))
	if m.activityDuration != nil {
		m.activityDuration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.activityErrors != nil {
		m.activityErrors.Add(ctx, 1, attrs)
	}
}

// RecordVectors counts vectors written by an activity.
func (m *Metrics) RecordVectors(ctx context.Context, n int) {
	if m.vectorsCreated != nil {
		m.vectorsCreated.Add(ctx, int64(n))
	}
}
