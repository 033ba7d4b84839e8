package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// Execution is the durable record of one workflow run. It is created once at
// run start in pending state and finalized exactly once with a terminal
// status. TriggeringEventID is unique per execution so that a duplicate
// delivery of the same trigger never creates a second record.
type Execution struct {
	ID                string          `json:"id"`
	WorkflowID        string          `json:"workflow_id"`
	TriggeringEventID string          `json:"triggering_event_id"`
	Status            ExecutionStatus `json:"status"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	Output            map[string]any  `json:"output,omitempty"`
	Error             string          `json:"error,omitempty"`
	ErrorStack        string          `json:"error_stack,omitempty"`
}

// Terminal reports whether the execution has reached a final state.
func (e *Execution) Terminal() bool {
	return e.Status == ExecutionStatusSuccess || e.Status == ExecutionStatusFailed
}
