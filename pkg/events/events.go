// Package events defines the event types and topic names Flowline publishes
// and consumes.
package events

import (
	"time"

	"github.com/flowlineio/flowline/pkg/models"
)

type EventType string

// Topic carries run requests and execution lifecycle events.
const Topic = "flowline.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WorkflowTriggeredEvent is the inbound run request: a trigger delivery
	// asking the engine to execute a workflow.
	WorkflowTriggeredEvent EventType = "workflow.triggered"

	// Execution lifecycle events, published best-effort by the engine.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
)

// StatusTopic returns the per-node-kind topic live UIs subscribe to.
func StatusTopic(kind string) string {
	return "flowline.status." + kind
}

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

// WorkflowTriggered requests one workflow run. TriggeringEventID is the
// idempotency key: two deliveries with the same ID produce one execution.
type WorkflowTriggered struct {
	BaseEvent

	TriggeringEventID string         `json:"triggering_event_id"`
	InitialData       map[string]any `json:"initial_data,omitempty"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Output      map[string]any `json:"output,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id,omitempty"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// NodeStatusChanged wraps a models.NodeStatusEvent with the run scope so UI
// consumers can filter by execution.
type NodeStatusChanged struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	NodeKind    string                 `json:"node_kind"`
	Event       models.NodeStatusEvent `json:"event"`
	Timestamp   time.Time              `json:"timestamp"`
}
