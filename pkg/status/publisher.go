// Package status publishes per-node lifecycle events for live UI consumption.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flowlineio/flowline/pkg/events"
	"github.com/flowlineio/flowline/pkg/models"
)

// Publisher emits NodeStatusEvents to a per-node-kind topic. Publishing is
// best-effort and fire-and-forget: a transport failure is logged and
// swallowed, never escalated into a run failure. Per-node ordering (loading
// before the terminal event) comes from the caller's call order, not from the
// publisher.
type Publisher struct {
	publisher message.Publisher
	logger    *slog.Logger

	executionID string
	workflowID  string
}

func NewPublisher(publisher message.Publisher, logger *slog.Logger) *Publisher {
	return &Publisher{
		publisher: publisher,
		logger:    logger,
	}
}

// ForRun returns a copy scoped to one execution. The run scope travels in the
// event payload and message metadata so consumers can subscribe per run.
func (p *Publisher) ForRun(executionID, workflowID string) *Publisher {
	scoped := *p
	scoped.executionID = executionID
	scoped.workflowID = workflowID

	return &scoped
}

// NodeStatus publishes one event to the kind's status topic.
func (p *Publisher) NodeStatus(ctx context.Context, kind string, event models.NodeStatusEvent) {
	payload, err := json.Marshal(events.NodeStatusChanged{
		ExecutionID: p.executionID,
		WorkflowID:  p.workflowID,
		NodeKind:    kind,
		Event:       event,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to encode node status event",
			"node_id", event.NodeID, "status", event.Status, "error", err)

		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("execution_id", p.executionID)
	msg.Metadata.Set("workflow_id", p.workflowID)

	err = p.publisher.Publish(events.StatusTopic(kind), msg)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to publish node status event",
			"node_id", event.NodeID, "status", event.Status, "error", err)
	}
}
