package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks index operation latency through a Collection handle.
	// Labels: collection, operation
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "baseline",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection", "operation"},
	)

	// OperationErrors counts failed index operations.
	// Labels: collection, operation
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "baseline",
			Subsystem: "vectorstore",
			Name:      "operation_errors_total",
			Help:      "Total number of failed vector index operations",
		},
		[]string{"collection", "operation"},
	)

	// EnsureTotal counts collection bootstrap outcomes.
	// Labels: result (existing, created, raced, error)
	EnsureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "baseline",
			Subsystem: "vectorstore",
			Name:      "ensure_collection_total",
			Help:      "Total number of collection ensure operations by result",
		},
		[]string{"result"},
	)

	// DimensionRejections counts vectors rejected before reaching the index.
	DimensionRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "baseline",
			Subsystem: "vectorstore",
			Name:      "dimension_rejections_total",
			Help:      "Total number of vectors rejected for wrong dimensionality",
		},
	)
)
