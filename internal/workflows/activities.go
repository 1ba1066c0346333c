package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"

	"github.com/sarahrhemadayal/baseline/internal/ingestion"
	"github.com/sarahrhemadayal/baseline/internal/memory"
)

// Ingester is the part of the ingestion pipeline the activity needs.
type Ingester interface {
	BulkIngest(ctx context.Context, userID string, sections ingestion.Sections) (*ingestion.Result, error)
}

// Activities holds activity dependencies.
type Activities struct {
	ingester Ingester
	metrics  *Metrics
}

// NewActivities creates the activity set.
func NewActivities(ingester Ingester, metrics *Metrics) (*Activities, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Activities{ingester: ingester, metrics: metrics}, nil
}

// IngestSections runs one ingestion batch. Invalid input fails without retry.
// The workflow id keys the batch, so a retry after a write that was not
// acknowledged to the server rewrites the same records.
func (a *Activities) IngestSections(ctx context.Context, input BulkIngestInput) (*ingestion.Result, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	info := activity.GetInfo(ctx)
	ctx = ingestion.WithBatchKey(ctx, info.WorkflowExecution.ID)
	res, err := a.ingester.BulkIngest(ctx, input.UserID, input.Sections)
	a.metrics.RecordActivity(ctx, IngestSectionsActivityName, time.Since(start), err)
	if err != nil {
		logger.Warn("IngestSections failed", "user_id", input.UserID, "error", err)
		if errors.Is(err, memory.ErrInvalidAction) || errors.Is(err, memory.ErrInvalidFilter) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
		}
		return nil, fmt.Errorf("ingest sections: %w", err)
	}
	if res.VectorsCreated > 0 {
		a.metrics.RecordVectors(ctx, res.VectorsCreated)
	}
	return res, nil
}

// Register adds the ingestion workflow and activities to a worker.
func Register(w worker.Registry, acts *Activities) {
	w.RegisterWorkflow(BulkIngestWorkflow)
	w.RegisterActivityWithOptions(acts.IngestSections, activity.RegisterOptions{Name: IngestSectionsActivityName})
}
