// Package workflows provides Temporal workflow definitions for durable
// bulk ingestion.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sarahrhemadayal/baseline/internal/ingestion"
)

// DefaultTaskQueue is the queue the worker polls.
const DefaultTaskQueue = "baseline-ingest"

// IngestSectionsActivityName is the registered name of Activities.IngestSections.
const IngestSectionsActivityName = "IngestSections"

// Non-retryable error types.
const (
	ErrTypeInvalidInput = "InvalidInput"
)

// BulkIngestInput is the workflow argument.
type BulkIngestInput struct {
	UserID   string             `json:"userId"`
	Sections ingestion.Sections `json:"sections"`
}

// BulkIngestWorkflow runs one ingestion batch as an activity so a worker
// restart or a transient embedding outage is retried instead of lost.
//
// Retries are safe: a failed batch writes nothing under the abort policy,
// and under the partial policy a retry only happens if every document failed.
func BulkIngestWorkflow(ctx workflow.Context, input BulkIngestInput) (*ingestion.Result, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting bulk ingest", "user_id", input.UserID)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        2 * time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{ErrTypeInvalidInput},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var result ingestion.Result
	if err := workflow.ExecuteActivity(ctx, IngestSectionsActivityName, input).Get(ctx, &result); err != nil {
		logger.Error("Bulk ingest failed", "user_id", input.UserID, "error", err)
		return nil, err
	}

	logger.Info("Bulk ingest complete",
		"user_id", input.UserID,
		"vectors_created", result.VectorsCreated,
		"failed", len(result.Failed))
	return &result, nil
}
