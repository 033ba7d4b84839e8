package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/persistence"
)

// ExecutionRepository stores execution records. The UNIQUE constraint on
// triggering_event_id gives atomic, idempotent creation; the guarded UPDATE
// gives exactly-once finalization.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) (*models.Execution, bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, triggering_event_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (triggering_event_id) DO NOTHING
	`,
		execution.ID,
		execution.WorkflowID,
		execution.TriggeringEventID,
		execution.Status,
		execution.StartedAt,
	)
	if err != nil {
		return nil, false, &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
	}

	if affected == 1 {
		return execution, true, nil
	}

	existing, err := r.executionByTriggeringEvent(ctx, execution.TriggeringEventID)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

func (r *ExecutionRepository) FinalizeExecution(ctx context.Context, execution *models.Execution) error {
	outputJSON, err := json.Marshal(execution.Output)
	if err != nil {
		return &persistence.ExecutionError{Op: "FinalizeExecution", ExecutionID: execution.ID, Err: err}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $2, completed_at = $3, output = $4, error = $5, error_stack = $6
		WHERE id = $1 AND status = $7
	`,
		execution.ID,
		execution.Status,
		execution.CompletedAt,
		outputJSON,
		execution.Error,
		execution.ErrorStack,
		models.ExecutionStatusPending,
	)
	if err != nil {
		return &persistence.ExecutionError{Op: "FinalizeExecution", ExecutionID: execution.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &persistence.ExecutionError{Op: "FinalizeExecution", ExecutionID: execution.ID, Err: err}
	}

	if affected == 0 {
		_, err := r.ExecutionByID(ctx, execution.ID)
		if err != nil {
			return err
		}

		return &persistence.ExecutionError{
			Op:          "FinalizeExecution",
			ExecutionID: execution.ID,
			Err:         persistence.ErrExecutionAlreadyFinalized,
		}
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, triggering_event_id, status, started_at, completed_at, output, error, error_stack
		FROM executions
		WHERE id = $1
	`, id)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
	}

	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ExecutionByID", ExecutionID: id, Err: err}
	}

	return execution, nil
}

func (r *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, triggering_event_id, status, started_at, completed_at, output, error, error_stack
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`, workflowID)
	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ExecutionsByWorkflow", Err: err}
	}

	defer func() {
		_ = rows.Close()
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, &persistence.ExecutionError{Op: "ExecutionsByWorkflow", Err: err}
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ExecutionsByWorkflow", Err: err}
	}

	return executions, nil
}

func (r *ExecutionRepository) executionByTriggeringEvent(ctx context.Context, triggeringEventID string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, triggering_event_id, status, started_at, completed_at, output, error, error_stack
		FROM executions
		WHERE triggering_event_id = $1
	`, triggeringEventID)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persistence.ExecutionError{Op: "CreateExecution", Err: persistence.ErrExecutionNotFound}
	}

	if err != nil {
		return nil, &persistence.ExecutionError{Op: "CreateExecution", Err: err}
	}

	return execution, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution  models.Execution
		outputJSON []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TriggeringEventID,
		&execution.Status,
		&execution.StartedAt,
		&execution.CompletedAt,
		&outputJSON,
		&execution.Error,
		&execution.ErrorStack,
	)
	if err != nil {
		return nil, err
	}

	if len(outputJSON) > 0 {
		err = json.Unmarshal(outputJSON, &execution.Output)
		if err != nil {
			return nil, err
		}
	}

	return &execution, nil
}
