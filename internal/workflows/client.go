package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/sarahrhemadayal/baseline/internal/ingestion"
)

// Starter starts BulkIngestWorkflow executions.
type Starter struct {
	client    client.Client
	taskQueue string
}

// NewStarter creates a Starter on an existing Temporal client.
func NewStarter(c client.Client, taskQueue string) (*Starter, error) {
	if c == nil {
		return nil, fmt.Errorf("temporal client cannot be nil")
	}
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Starter{client: c, taskQueue: taskQueue}, nil
}

// StartBulkIngest starts an ingestion workflow and returns its id without
// waiting for it to finish.
func (s *Starter) StartBulkIngest(ctx context.Context, userID string, sections ingestion.Sections) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        "bulk-ingest-" + userID + "-" + uuid.New().String(),
		TaskQueue: s.taskQueue,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, BulkIngestWorkflow, BulkIngestInput{
		UserID:   userID,
		Sections: sections,
	})
	if err != nil {
		return "", fmt.Errorf("starting bulk ingest workflow: %w", err)
	}
	return run.GetID(), nil
}
