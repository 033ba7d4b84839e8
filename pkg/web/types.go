package web

import "github.com/flowlineio/flowline/pkg/models"

type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=1,max=255"`
	Owner       string                 `json:"owner"       validate:"required"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections []*models.Connection   `json:"connections"`
}

type UpdateWorkflowRequest struct {
	Name        *string                `json:"name"        validate:"omitempty,min=1,max=255"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections []*models.Connection   `json:"connections"`
}

// TriggerRunRequest asks for one workflow run. TriggeringEventID is optional:
// callers that retry deliveries supply their own to get idempotency, one-shot
// callers let the API mint one.
type TriggerRunRequest struct {
	TriggeringEventID string         `json:"triggering_event_id"`
	InitialData       map[string]any `json:"initial_data"`
}

type TriggerRunResponse struct {
	WorkflowID        string `json:"workflow_id"`
	TriggeringEventID string `json:"triggering_event_id"`
}
