package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowlineio/flowline/pkg/eventbus"
	"github.com/flowlineio/flowline/pkg/events"
	"github.com/flowlineio/flowline/pkg/protocol"
	"github.com/flowlineio/flowline/pkg/workflow"
)

const (
	maxAttempts = 3
	retryDelay  = 2 * time.Second
)

// Worker consumes run requests from the event bus and drives the engine. It
// owns the retry policy: retriable failures are re-invoked under the same
// triggering event ID with linear backoff, and the execution is finalized
// failed once the attempt budget is spent.
type Worker struct {
	id       string
	engine   *workflow.Engine
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

func NewWorker(id string, engine *workflow.Engine, eventBus eventbus.EventBus, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		engine:   engine,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	err := w.eventBus.Handle(events.WorkflowTriggeredEvent, w.handleWorkflowTriggered)
	if err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	w.logger.InfoContext(ctx, "Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker")
	case <-ctx.Done():
	}

	return nil
}

func (w *Worker) handleWorkflowTriggered(ctx context.Context, event any) error {
	triggered, ok := event.(*events.WorkflowTriggered)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event payload for workflow.triggered")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", triggered.WorkflowID,
		"triggering_event_id", triggered.TriggeringEventID,
	)

	req := workflow.RunRequest{
		WorkflowID:        triggered.WorkflowID,
		TriggeringEventID: triggered.TriggeringEventID,
		InitialData:       triggered.InitialData,
	}

	return w.runWithRetry(ctx, logger, req)
}

func (w *Worker) runWithRetry(ctx context.Context, logger *slog.Logger, req workflow.RunRequest) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying workflow run", "attempt", attempt, "max_attempts", maxAttempts)

			select {
			case <-time.After(time.Duration(attempt-1) * retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		execution, err := w.engine.Run(ctx, req)
		if err == nil {
			return nil
		}

		lastErr = err

		if protocol.IsNonRetriable(err) {
			// Already finalized failed by the engine; the message is spent.
			logger.ErrorContext(ctx, "Run failed permanently", "error", err)

			return nil
		}

		if attempt == maxAttempts && execution != nil {
			logger.ErrorContext(ctx, "Retry budget exhausted, finalizing execution as failed", "error", err)

			finalizeErr := w.engine.FailExecution(ctx, execution, "", err)
			if finalizeErr != nil {
				logger.ErrorContext(ctx, "Failed to finalize execution", "error", finalizeErr)
			}

			return nil
		}
	}

	return lastErr
}
