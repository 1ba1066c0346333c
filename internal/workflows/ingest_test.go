package workflows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/sarahrhemadayal/baseline/internal/ingestion"
	"github.com/sarahrhemadayal/baseline/internal/memory"
)

// fakeIngester returns canned results, counts calls and records batch keys.
type fakeIngester struct {
	results []error
	calls   atomic.Int32

	mu   sync.Mutex
	keys []string
}

func (f *fakeIngester) BulkIngest(ctx context.Context, userID string, sections ingestion.Sections) (*ingestion.Result, error) {
	f.mu.Lock()
	f.keys = append(f.keys, ingestion.BatchKeyFromContext(ctx))
	f.mu.Unlock()
	n := int(f.calls.Add(1)) - 1
	if n < len(f.results) && f.results[n] != nil {
		return nil, f.results[n]
	}
	return &ingestion.Result{VectorsCreated: len(sections.ExtractedSkills)}, nil
}

func newEnv(t *testing.T, ing Ingester) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	acts, err := NewActivities(ing, nil)
	require.NoError(t, err)
	env.RegisterWorkflow(BulkIngestWorkflow)
	env.RegisterActivityWithOptions(acts.IngestSections, activity.RegisterOptions{Name: IngestSectionsActivityName})
	return env
}

func TestBulkIngestWorkflow(t *testing.T) {
	t.Run("returns the activity result", func(t *testing.T) {
		ing := &fakeIngester{}
		env := newEnv(t, ing)

		env.ExecuteWorkflow(BulkIngestWorkflow, BulkIngestInput{
			UserID:   "u1",
			Sections: ingestion.Sections{ExtractedSkills: []string{"Go", "Rust"}},
		})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var result ingestion.Result
		require.NoError(t, env.GetWorkflowResult(&result))
		assert.Equal(t, 2, result.VectorsCreated)
		assert.EqualValues(t, 1, ing.calls.Load())
	})

	t.Run("retries transient failures", func(t *testing.T) {
		ing := &fakeIngester{results: []error{
			fmt.Errorf("embedding: %w", memory.ErrEmbeddingUnavailable),
			nil,
		}}
		env := newEnv(t, ing)

		env.ExecuteWorkflow(BulkIngestWorkflow, BulkIngestInput{
			UserID:   "u1",
			Sections: ingestion.Sections{ExtractedSkills: []string{"Go"}},
		})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		assert.EqualValues(t, 2, ing.calls.Load())

		// Both attempts write under the same batch key.
		require.Len(t, ing.keys, 2)
		assert.NotEmpty(t, ing.keys[0])
		assert.Equal(t, ing.keys[0], ing.keys[1])
	})

	t.Run("does not retry invalid input", func(t *testing.T) {
		ing := &fakeIngester{results: []error{
			fmt.Errorf("%w: userId is required", memory.ErrInvalidAction),
		}}
		env := newEnv(t, ing)

		env.ExecuteWorkflow(BulkIngestWorkflow, BulkIngestInput{})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, ErrTypeInvalidInput, appErr.Type())
		assert.EqualValues(t, 1, ing.calls.Load())
	})
}

func TestBulkIngestWorkflow_MockedActivity(t *testing.T) {
	env := newEnv(t, &fakeIngester{})

	env.OnActivity(IngestSectionsActivityName, mock.Anything, BulkIngestInput{UserID: "u9"}).
		Return(&ingestion.Result{NothingToIngest: true}, nil)

	env.ExecuteWorkflow(BulkIngestWorkflow, BulkIngestInput{UserID: "u9"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result ingestion.Result
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.NothingToIngest)
}

func TestNewActivities(t *testing.T) {
	_, err := NewActivities(nil, nil)
	assert.Error(t, err)
}

func TestNewStarter(t *testing.T) {
	_, err := NewStarter(nil, "")
	assert.Error(t, err)
}
