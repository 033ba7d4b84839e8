// Package persistence abstracts the durable store for workflow graphs and
// execution records.
package persistence

import (
	"context"

	"github.com/flowlineio/flowline/pkg/models"
)

// WorkflowRepository is the graph store: workflows are loaded once per run
// and treated as immutable snapshots for its duration.
type WorkflowRepository interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionRepository is the execution store. CreateExecution must be atomic
// and idempotent on TriggeringEventID: a second create for the same
// triggering event returns the existing record with created=false, never a
// duplicate. FinalizeExecution must be an atomic pending-to-terminal update;
// finalizing an already-terminal record fails with
// ErrExecutionAlreadyFinalized.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.Execution) (*models.Execution, bool, error)
	FinalizeExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
}

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
