// Package workflow contains the execution engine: it orders a workflow
// graph, drives node executors over it, accumulates the execution context,
// and maintains the durable execution record.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowlineio/flowline/pkg/eventbus"
	"github.com/flowlineio/flowline/pkg/events"
	"github.com/flowlineio/flowline/pkg/graph"
	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/otelhelper"
	"github.com/flowlineio/flowline/pkg/persistence"
	"github.com/flowlineio/flowline/pkg/protocol"
	"github.com/flowlineio/flowline/pkg/registry"
	"github.com/flowlineio/flowline/pkg/status"
	"github.com/flowlineio/flowline/pkg/template"
)

// RunRequest is the inbound trigger for one workflow run. TriggeringEventID
// is the idempotency key: two requests carrying the same ID produce exactly
// one execution record.
type RunRequest struct {
	WorkflowID        string         `validate:"required"`
	TriggeringEventID string         `validate:"required"`
	InitialData       map[string]any `validate:"-"`
}

// Config collects the engine's collaborators.
type Config struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Templates   *template.Resolver
	Status      *status.Publisher
	Secrets     protocol.SecretsResolver
	EventBus    eventbus.EventPublisher
	Logger      *slog.Logger
}

// Engine executes workflow runs. It holds no cross-run mutable state beyond
// the durable store, so different runs may execute concurrently; node
// execution within one run is strictly sequential because any node's config
// templates may reference any prior node's output.
type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	templates   *template.Resolver
	status      *status.Publisher
	secrets     protocol.SecretsResolver
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	validate    *validator.Validate
	tracer      trace.Tracer
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		persistence: cfg.Persistence,
		registry:    cfg.Registry,
		templates:   cfg.Templates,
		status:      cfg.Status,
		secrets:     cfg.Secrets,
		eventBus:    cfg.EventBus,
		logger:      cfg.Logger,
		validate:    validator.New(),
		tracer:      otel.Tracer("flowline.workflow"),
	}
}

// Run executes one workflow run end to end. It returns the execution record
// alongside any error so the host can apply its retry policy: a retriable
// error leaves the record pending for re-invocation under the same
// triggering event ID, a non-retriable error has already finalized it as
// failed.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*models.Execution, error) {
	err := e.validate.Struct(req)
	if err != nil {
		return nil, protocol.NewNonRetriableError("invalid run request: %w", err)
	}

	logger := e.logger.With(
		"workflow_id", req.WorkflowID,
		"triggering_event_id", req.TriggeringEventID,
	)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.TriggeringEventIDKey, req.TriggeringEventID),
	)
	defer span.End()

	execution, created, err := e.persistence.ExecutionRepository().CreateExecution(ctx, &models.Execution{
		ID:                "exec-" + uuid.New().String(),
		WorkflowID:        req.WorkflowID,
		TriggeringEventID: req.TriggeringEventID,
		Status:            models.ExecutionStatusPending,
		StartedAt:         time.Now().UTC(),
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	logger = logger.With("execution_id", execution.ID)
	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	if !created {
		if execution.Terminal() {
			logger.InfoContext(ctx, "Duplicate trigger delivery for finalized execution, skipping")

			return execution, nil
		}

		logger.InfoContext(ctx, "Re-invocation of pending execution")
	} else {
		logger.InfoContext(ctx, "Starting workflow execution")
	}

	workflow, err := e.persistence.WorkflowRepository().WorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			err = protocol.NonRetriable(err)
		}

		return execution, e.fail(ctx, logger, span, execution, "", err)
	}

	sorted, err := graph.Sort(workflow.Nodes, workflow.Connections)
	if err != nil {
		return execution, e.fail(ctx, logger, span, execution, "", protocol.NonRetriable(err))
	}

	e.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID: execution.ID,
	})

	runStatus := e.status.ForRun(execution.ID, workflow.ID)
	services := protocol.Services{
		Templates: e.templates,
		Status:    runStatus,
		Secrets:   e.secrets,
		Owner:     workflow.Owner,
		Logger:    logger,
	}

	execCtx := models.ExecutionContext(req.InitialData).Clone()

	for _, node := range sorted {
		// Cancellation is honored between fold iterations only, never
		// mid-node: once a node's side effect may have fired, its result
		// must be merged and recorded.
		err := ctx.Err()
		if err != nil {
			return execution, protocol.Retriable(fmt.Errorf("run cancelled before node %s: %w", node.ID, err))
		}

		output, err := e.executeNode(ctx, logger, runStatus, services, node, execCtx)
		if err != nil {
			return execution, e.fail(ctx, logger, span, execution, node.ID, err)
		}

		execCtx = execCtx.Merge(output)
	}

	return execution, e.succeed(ctx, logger, span, execution, execCtx)
}

// executeNode dispatches one node and owns the status bookkeeping: loading
// before the executor runs, exactly one terminal success or error after, no
// matter how the executor fails. Executors therefore cannot forget to emit
// an error status and the UI never stalls on loading.
func (e *Engine) executeNode(
	ctx context.Context,
	logger *slog.Logger,
	runStatus *status.Publisher,
	services protocol.Services,
	node *models.WorkflowNode,
	execCtx models.ExecutionContext,
) (map[string]any, error) {
	nodeLogger := logger.With("node_id", node.ID, "node_kind", node.Kind)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, node.Kind),
	)
	defer span.End()

	executor, err := e.registry.Dispatch(node.Kind)
	if err != nil {
		// The kind was never registered, so there is no per-kind status
		// topic to notify.
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	runStatus.NodeStatus(ctx, node.Kind, models.NodeStatusEvent{
		NodeID: node.ID,
		Status: models.NodeStatusLoading,
	})

	nodeLogger.InfoContext(ctx, "Executing node")

	output, err := executor.Execute(ctx, protocol.ExecuteInput{
		NodeID:   node.ID,
		Config:   node.Config,
		Context:  execCtx.Clone(),
		Services: services,
	})
	if err != nil {
		runStatus.NodeStatus(ctx, node.Kind, models.NodeStatusEvent{
			NodeID: node.ID,
			Status: models.NodeStatusError,
		})
		otelhelper.SetError(span, err)
		nodeLogger.ErrorContext(ctx, "Node execution failed", "error", err)

		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	runStatus.NodeStatus(ctx, node.Kind, models.NodeStatusEvent{
		NodeID: node.ID,
		Status: models.NodeStatusSuccess,
	})

	nodeLogger.InfoContext(ctx, "Node executed successfully")

	return output, nil
}

// fail maps a node or load failure onto the execution record. Non-retriable
// errors finalize the record as failed; retriable errors leave it pending so
// the host can re-invoke the run under the same triggering event ID.
func (e *Engine) fail(
	ctx context.Context,
	logger *slog.Logger,
	span trace.Span,
	execution *models.Execution,
	nodeID string,
	err error,
) error {
	otelhelper.SetError(span, err)

	if protocol.IsRetriable(err) {
		logger.WarnContext(ctx, "Run failed with retriable error, leaving execution pending", "error", err)

		return err
	}

	logger.ErrorContext(ctx, "Run failed", "error", err)

	finalizeErr := e.FailExecution(ctx, execution, nodeID, err)
	if finalizeErr != nil {
		logger.ErrorContext(ctx, "Failed to finalize execution", "error", finalizeErr)
	}

	return err
}

// FailExecution finalizes an execution as failed and publishes the matching
// lifecycle event. The engine calls it for non-retriable failures; the host
// calls it when its retry budget for retriable failures is exhausted.
func (e *Engine) FailExecution(ctx context.Context, execution *models.Execution, nodeID string, cause error) error {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now
	execution.Error = cause.Error()
	execution.ErrorStack = string(debug.Stack())

	err := e.persistence.ExecutionRepository().FinalizeExecution(ctx, execution)
	if err != nil && !errors.Is(err, persistence.ErrExecutionAlreadyFinalized) {
		return err
	}

	e.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		NodeID:      nodeID,
		Error:       cause.Error(),
		Duration:    now.Sub(execution.StartedAt),
	})

	return nil
}

func (e *Engine) succeed(
	ctx context.Context,
	logger *slog.Logger,
	span trace.Span,
	execution *models.Execution,
	execCtx models.ExecutionContext,
) error {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusSuccess
	execution.CompletedAt = &now
	execution.Output = execCtx

	err := e.persistence.ExecutionRepository().FinalizeExecution(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to finalize execution: %w", err)
	}

	e.publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Output:      execution.Output,
		Duration:    now.Sub(execution.StartedAt),
	})

	logger.InfoContext(ctx, "Workflow execution completed")

	return nil
}

// publish emits a lifecycle event best-effort; bus failures never affect the
// run outcome.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, key, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish execution lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         "evt-" + uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}
