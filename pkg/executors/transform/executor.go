// Package transform provides the template-rendering node kind: a pure node
// that renders a map of templates against the run context into a declared
// output variable. It performs no I/O.
package transform

import (
	"context"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/protocol"
)

type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Kind() string {
	return models.NodeKindTransform
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variableName": map[string]any{
				"type":        "string",
				"description": "Context key the rendered fields are stored under.",
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Field name to template. Each value is rendered against the run context.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
		},
		"required": []string{"variableName", "fields"},
	}
}

func (e *Executor) Execute(ctx context.Context, in protocol.ExecuteInput) (map[string]any, error) {
	logger := in.Services.Logger.With("module", "transform_executor")

	err := protocol.ValidateConfig(e.Schema(), in.Config)
	if err != nil {
		return nil, err
	}

	variableName, _ := in.Config["variableName"].(string)
	if variableName == "" {
		return nil, protocol.NewNonRetriableError("transform node %s: variable name is missing", in.NodeID)
	}

	fields, _ := in.Config["fields"].(map[string]any)

	rendered := make(map[string]any, len(fields))

	for name, value := range fields {
		tmpl, ok := value.(string)
		if !ok {
			return nil, protocol.NewNonRetriableError("transform node %s: field %q is not a string template", in.NodeID, name)
		}

		rendered[name] = in.Services.Templates.Render(tmpl, in.Context)
	}

	logger.InfoContext(ctx, "Transform node rendered fields", "count", len(rendered))

	return map[string]any{variableName: rendered}, nil
}
