// Package protocol defines the contract every node kind implements and the
// error taxonomy the engine uses to classify failures.
package protocol

import (
	"context"
	"log/slog"

	"github.com/flowlineio/flowline/pkg/models"
)

// Executor runs one node kind. Implementations validate their own required
// config fields before performing any I/O, perform at most one external call,
// and return their contribution to the run context: a map the engine merges
// into the accumulated context, namespaced under the configured output
// variable where the kind declares one.
type Executor interface {
	// Kind returns the stable string identifier this executor is registered
	// under.
	Kind() string

	// Schema returns the JSON schema describing the executor's config.
	Schema() map[string]any

	// Execute runs the node. Failures are classified retriable or
	// non-retriable; see errors.go.
	Execute(ctx context.Context, in ExecuteInput) (map[string]any, error)
}

// ExecuteInput carries everything an executor may use for one node run.
type ExecuteInput struct {
	NodeID  string
	Config  map[string]any
	Context models.ExecutionContext

	Services Services
}

// StatusPublisher emits per-node lifecycle events. Publishing is best-effort:
// implementations log and swallow transport failures.
type StatusPublisher interface {
	NodeStatus(ctx context.Context, kind string, event models.NodeStatusEvent)
}

// SecretsResolver returns the decrypted secret for a credential identifier,
// scoped to the workflow owner. Unknown identifiers fail non-retriable.
type SecretsResolver interface {
	Resolve(ctx context.Context, credentialID, ownerID string) (string, error)
}

// TemplateRenderer renders config strings against the execution context.
type TemplateRenderer interface {
	Render(template string, context models.ExecutionContext) string
	Unresolved(template string, context models.ExecutionContext) []string
}

// Services are the collaborators handed to every executor. The engine builds
// one Services value per run; Owner is the workflow owner resolved once at
// run start for scoped secret lookups.
type Services struct {
	Templates TemplateRenderer
	Status    StatusPublisher
	Secrets   SecretsResolver
	Owner     string
	Logger    *slog.Logger
}
