package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/retrieval"
)

const instrumentationName = "github.com/sarahrhemadayal/baseline/internal/mcp"

// toolMetrics instruments tool calls. Every call is counted under its tool
// name and an outcome label ("ok" or an error category).
type toolMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newToolMetrics(meter metric.Meter) (*toolMetrics, error) {
	calls, err1 := meter.Int64Counter("baseline.mcp.tool.calls_total",
		metric.WithDescription("MCP tool calls by tool and outcome"),
		metric.WithUnit("{call}"))
	duration, err2 := meter.Float64Histogram("baseline.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	inFlight, err3 := meter.Int64UpDownCounter("baseline.mcp.tool.in_flight",
		metric.WithDescription("MCP tool calls currently executing"),
		metric.WithUnit("{call}"))
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}
	return &toolMetrics{calls: calls, duration: duration, inFlight: inFlight}, nil
}

// defaultToolMetrics uses the global meter provider.
func defaultToolMetrics() (*toolMetrics, error) {
	return newToolMetrics(otel.Meter(instrumentationName))
}

// track marks a call as started and returns the function that finishes it.
func (m *toolMetrics) track(ctx context.Context, tool string) func(error) {
	if m == nil {
		return func(error) {}
	}
	toolAttr := attribute.String("tool", tool)
	m.inFlight.Add(ctx, 1, metric.WithAttributes(toolAttr))
	start := time.Now()

	return func(err error) {
		m.inFlight.Add(ctx, -1, metric.WithAttributes(toolAttr))
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(toolAttr))
		m.calls.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("outcome", outcome(err))))
	}
}

// outcome maps an error to a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, memory.ErrInvalidAction),
		errors.Is(err, memory.ErrInvalidFilter),
		errors.Is(err, retrieval.ErrUnknownView):
		return "invalid"
	case errors.Is(err, memory.ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, memory.ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, memory.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
