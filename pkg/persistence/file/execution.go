package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/persistence"
)

// ExecutionRepository stores each execution as executions/{id}.json plus an
// events/{triggeringEventID} marker file holding the execution ID, which is
// what makes CreateExecution idempotent.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *ExecutionRepository) eventPath(triggeringEventID string) string {
	return filepath.Join(r.dir(), "events", triggeringEventID)
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) (*models.Execution, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.MkdirAll(filepath.Dir(r.eventPath(execution.TriggeringEventID)), 0o755)
	if err != nil {
		return nil, false, &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
	}

	existingID, err := os.ReadFile(r.eventPath(execution.TriggeringEventID))
	if err == nil {
		existing, err := r.readExecution(string(existingID))
		if err != nil {
			return nil, false, err
		}

		return existing, false, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
	}

	err = r.writeExecution(execution)
	if err != nil {
		return nil, false, err
	}

	err = os.WriteFile(r.eventPath(execution.TriggeringEventID), []byte(execution.ID), 0o644)
	if err != nil {
		return nil, false, &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
	}

	return execution, true, nil
}

func (r *ExecutionRepository) FinalizeExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.readExecution(execution.ID)
	if err != nil {
		return err
	}

	if current.Terminal() {
		return &persistence.ExecutionError{
			Op:          "FinalizeExecution",
			ExecutionID: execution.ID,
			Err:         persistence.ErrExecutionAlreadyFinalized,
		}
	}

	return r.writeExecution(execution)
}

func (r *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.readExecution(id)
}

func (r *ExecutionRepository) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	var executions []*models.Execution

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		execution, err := r.readExecution(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

func (r *ExecutionRepository) readExecution(id string) (*models.Execution, error) {
	raw, err := os.ReadFile(r.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
	}

	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: err}
	}

	var execution models.Execution

	err = json.Unmarshal(raw, &execution)
	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: err}
	}

	return &execution, nil
}

func (r *ExecutionRepository) writeExecution(execution *models.Execution) error {
	err := os.MkdirAll(r.dir(), 0o755)
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	raw, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	err = os.WriteFile(r.path(execution.ID), raw, 0o644)
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	return nil
}
