// Package file provides a JSON-file store for development and tests.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/flowlineio/flowline/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local filesystem.
// Atomicity across processes is not a goal here; a process-wide mutex is
// enough for the single-process development setup this store serves.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a file store rooted at the given directory. A
// "file://" prefix is tolerated so the same database URL flag works for every
// provider.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	_, err := os.Stat(p.root)
	if os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return err
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
