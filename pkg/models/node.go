package models

// DefaultPort is the port name used when a connection does not name one.
const DefaultPort = "main"

// Built-in node kinds.
const (
	NodeKindManualTrigger     = "trigger:manual"
	NodeKindStripeTrigger     = "trigger:stripe"
	NodeKindGoogleFormTrigger = "trigger:googleform"
	NodeKindHTTPRequest       = "httprequest"
	NodeKindTransform         = "transform"
	NodeKindLLM               = "llm"
	NodeKindChatWebhook       = "chatwebhook"
)

// WorkflowNode is a single configured unit of work in a workflow graph.
// PositionX/PositionY are display-only and irrelevant to execution.
type WorkflowNode struct {
	ID        string         `json:"id"   validate:"required"`
	Kind      string         `json:"kind" validate:"required"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Connection is a directed dependency from one node's output port to another
// node's input port.
type Connection struct {
	FromNodeID string `json:"from_node_id" validate:"required"`
	ToNodeID   string `json:"to_node_id"   validate:"required"`
	FromPort   string `json:"from_port"`
	ToPort     string `json:"to_port"`
}

// NodeStatus is the UI-facing lifecycle state of a node within one run.
type NodeStatus string

const (
	NodeStatusLoading NodeStatus = "loading"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)

// NodeStatusEvent is published per node-kind topic for live UI consumption.
// It is ephemeral and never persisted. For a given node the ordering is
// loading followed by exactly one terminal success or error per run.
type NodeStatusEvent struct {
	NodeID string     `json:"node_id"`
	Status NodeStatus `json:"status"`
}
