// Package trigger provides the trigger node kinds. Trigger nodes sit at the
// head of a workflow graph: the run context is already seeded with the trigger
// payload when they execute, so they validate the payload shape and contribute
// nothing of their own.
package trigger

import (
	"context"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/protocol"
)

// Executor handles one trigger kind. Provider-backed kinds expect the webhook
// surface to have namespaced the delivery under the provider key in the
// initial data; a missing key means the run was triggered with a payload the
// workflow cannot use.
type Executor struct {
	kind        string
	providerKey string
}

func NewManualExecutor() *Executor {
	return &Executor{kind: models.NodeKindManualTrigger}
}

func NewStripeExecutor() *Executor {
	return &Executor{kind: models.NodeKindStripeTrigger, providerKey: "stripe"}
}

func NewGoogleFormExecutor() *Executor {
	return &Executor{kind: models.NodeKindGoogleFormTrigger, providerKey: "googleForm"}
}

func (e *Executor) Kind() string {
	return e.kind
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (e *Executor) Execute(ctx context.Context, in protocol.ExecuteInput) (map[string]any, error) {
	logger := in.Services.Logger.With("module", "trigger_executor", "kind", e.kind)

	if e.providerKey != "" {
		_, ok := in.Context[e.providerKey]
		if !ok {
			return nil, protocol.NewNonRetriableError(
				"trigger node %s: payload is missing the %q key", in.NodeID, e.providerKey)
		}
	}

	logger.InfoContext(ctx, "Trigger node passed payload through")

	return nil, nil
}
