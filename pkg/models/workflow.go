// Package models defines the core domain models for node-based workflow execution.
package models

import "time"

// Workflow is an immutable-per-run snapshot of a workflow graph. The engine
// loads it once at run start and never writes to it.
type Workflow struct {
	ID          string          `json:"id"          validate:"required"`
	Name        string          `json:"name"        validate:"required,min=1"`
	Owner       string          `json:"owner"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Connections []*Connection   `json:"connections"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given ID, or nil when the graph has no
// such node.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}
