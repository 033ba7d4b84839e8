// Package redis provides a Redis-backed store. SETNX on the triggering-event
// key gives atomic idempotent execution creation, and a WATCH transaction
// guards the single pending-to-terminal update.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/persistence"
)

const (
	workflowKeyPrefix  = "flowline:workflow:"
	executionKeyPrefix = "flowline:execution:"
	eventKeyPrefix     = "flowline:execution:event:"
	byWorkflowPrefix   = "flowline:executions:workflow:"
)

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client *goredis.Client
	logger *slog.Logger
}

func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := goredis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{client: client, logger: logger}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{client: p.client}
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return &executionRepository{client: p.client}
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

type workflowRepository struct {
	client *goredis.Client
}

func (r *workflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	raw, err := r.client.Get(ctx, workflowKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: persistence.ErrWorkflowNotFound}
	}

	if err != nil {
		return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: err}
	}

	var workflow models.Workflow

	err = json.Unmarshal(raw, &workflow)
	if err != nil {
		return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: err}
	}

	return &workflow, nil
}

func (r *workflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	raw, err := json.Marshal(workflow)
	if err != nil {
		return &persistence.WorkflowError{Op: "SaveWorkflow", WorkflowID: workflow.ID, Err: err}
	}

	err = r.client.Set(ctx, workflowKeyPrefix+workflow.ID, raw, 0).Err()
	if err != nil {
		return &persistence.WorkflowError{Op: "SaveWorkflow", WorkflowID: workflow.ID, Err: err}
	}

	return nil
}

func (r *workflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	var workflows []*models.Workflow

	iter := r.client.Scan(ctx, 0, workflowKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}

		if err != nil {
			return nil, &persistence.WorkflowError{Op: "Workflows", Err: err}
		}

		var workflow models.Workflow

		err = json.Unmarshal(raw, &workflow)
		if err != nil {
			return nil, &persistence.WorkflowError{Op: "Workflows", Err: err}
		}

		workflows = append(workflows, &workflow)
	}

	err := iter.Err()
	if err != nil {
		return nil, &persistence.WorkflowError{Op: "Workflows", Err: err}
	}

	return workflows, nil
}

func (r *workflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, workflowKeyPrefix+id).Result()
	if err != nil {
		return &persistence.WorkflowError{Op: "DeleteWorkflow", WorkflowID: id, Err: err}
	}

	if deleted == 0 {
		return &persistence.WorkflowError{Op: "DeleteWorkflow", WorkflowID: id, Err: persistence.ErrWorkflowNotFound}
	}

	return nil
}

type executionRepository struct {
	client *goredis.Client
}

func (r *executionRepository) CreateExecution(ctx context.Context, execution *models.Execution) (*models.Execution, bool, error) {
	eventKey := eventKeyPrefix + execution.TriggeringEventID

	created, err := r.client.SetNX(ctx, eventKey, execution.ID, 0).Result()
	if err != nil {
		return nil, false, &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
	}

	if !created {
		existingID, err := r.client.Get(ctx, eventKey).Result()
		if err != nil {
			return nil, false, &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
		}

		existing, err := r.ExecutionByID(ctx, existingID)
		if persistence.IsExecutionNotFound(err) {
			// A crash between claiming the key and storing the record leaves
			// the key pointing at nothing. Reclaim it so the triggering event
			// stays runnable.
			err = r.client.Set(ctx, eventKey, execution.ID, 0).Err()
			if err != nil {
				return nil, false, &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
			}

			err = r.store(ctx, execution)
			if err != nil {
				return nil, false, err
			}

			return execution, true, nil
		}

		if err != nil {
			return nil, false, err
		}

		return existing, false, nil
	}

	err = r.store(ctx, execution)
	if err != nil {
		return nil, false, err
	}

	return execution, true, nil
}

// store writes the execution record and its per-workflow index entry.
func (r *executionRepository) store(ctx context.Context, execution *models.Execution) error {
	err := r.save(ctx, execution)
	if err != nil {
		return err
	}

	err = r.client.ZAdd(ctx, byWorkflowPrefix+execution.WorkflowID, goredis.Z{
		Score:  float64(execution.StartedAt.UnixMilli()),
		Member: execution.ID,
	}).Err()
	if err != nil {
		return &persistence.ExecutionError{Op: "CreateExecution", ExecutionID: execution.ID, Err: err}
	}

	return nil
}

func (r *executionRepository) FinalizeExecution(ctx context.Context, execution *models.Execution) error {
	key := executionKeyPrefix + execution.ID

	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return persistence.ErrExecutionNotFound
		}

		if err != nil {
			return err
		}

		var current models.Execution

		err = json.Unmarshal(raw, &current)
		if err != nil {
			return err
		}

		if current.Terminal() {
			return persistence.ErrExecutionAlreadyFinalized
		}

		updated, err := json.Marshal(execution)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)

			return nil
		})

		return err
	}, key)
	if err != nil {
		return &persistence.ExecutionError{Op: "FinalizeExecution", ExecutionID: execution.ID, Err: err}
	}

	return nil
}

func (r *executionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	raw, err := r.client.Get(ctx, executionKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
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

func (r *executionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	ids, err := r.client.ZRevRange(ctx, byWorkflowPrefix+workflowID, 0, -1).Result()
	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ExecutionsByWorkflow", Err: err}
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		execution, err := r.ExecutionByID(ctx, id)
		if persistence.IsExecutionNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (r *executionRepository) save(ctx context.Context, execution *models.Execution) error {
	raw, err := json.Marshal(execution)
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	err = r.client.Set(ctx, executionKeyPrefix+execution.ID, raw, 0).Err()
	if err != nil {
		return &persistence.ExecutionError{Op: "SaveExecution", ExecutionID: execution.ID, Err: err}
	}

	return nil
}
