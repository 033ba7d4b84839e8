package transform

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/protocol"
	"github.com/flowlineio/flowline/pkg/template"
)

func testServices() protocol.Services {
	return protocol.Services{
		Templates: template.NewResolver(),
		Logger:    slog.Default(),
	}
}

func TestExecute_RendersFields(t *testing.T) {
	executor := NewExecutor()

	output, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID: "n-1",
		Config: map[string]any{
			"variableName": "summary",
			"fields": map[string]any{
				"greeting": "Hello {{user.name}}",
				"id":       "{{call.httpResponse.data.id}}",
			},
		},
		Context: models.ExecutionContext{
			"user": map[string]any{"name": "Ada"},
			"call": map[string]any{
				"httpResponse": map[string]any{
					"data": map[string]any{"id": float64(7)},
				},
			},
		},
		Services: testServices(),
	})
	require.NoError(t, err)

	summary, ok := output["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hello Ada", summary["greeting"])
	assert.Equal(t, "7", summary["id"])
}

func TestExecute_MissingVariableNameFails(t *testing.T) {
	executor := NewExecutor()

	_, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID: "n-1",
		Config: map[string]any{
			"fields": map[string]any{"a": "b"},
		},
		Context:  models.ExecutionContext{},
		Services: testServices(),
	})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))
}

func TestExecute_NonStringFieldFails(t *testing.T) {
	executor := NewExecutor()

	_, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID: "n-1",
		Config: map[string]any{
			"variableName": "out",
			"fields": map[string]any{
				"bad": float64(42),
			},
		},
		Context:  models.ExecutionContext{},
		Services: testServices(),
	})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))
}
