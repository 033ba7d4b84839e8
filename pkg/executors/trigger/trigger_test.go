package trigger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/protocol"
)

func testServices() protocol.Services {
	return protocol.Services{Logger: slog.Default()}
}

func TestManualTrigger_PassesThrough(t *testing.T) {
	executor := NewManualExecutor()
	assert.Equal(t, models.NodeKindManualTrigger, executor.Kind())

	output, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID:   "n-1",
		Context:  models.ExecutionContext{"anything": "goes"},
		Services: testServices(),
	})
	require.NoError(t, err)
	assert.Nil(t, output)
}

func TestStripeTrigger_RequiresProviderKey(t *testing.T) {
	executor := NewStripeExecutor()

	_, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID:   "n-1",
		Context:  models.ExecutionContext{},
		Services: testServices(),
	})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))

	output, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID: "n-1",
		Context: models.ExecutionContext{
			"stripe": map[string]any{"eventType": "invoice.paid"},
		},
		Services: testServices(),
	})
	require.NoError(t, err)
	assert.Nil(t, output)
}

func TestGoogleFormTrigger_RequiresProviderKey(t *testing.T) {
	executor := NewGoogleFormExecutor()

	_, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID:   "n-1",
		Context:  models.ExecutionContext{"stripe": map[string]any{}},
		Services: testServices(),
	})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))

	_, err = executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID: "n-1",
		Context: models.ExecutionContext{
			"googleForm": map[string]any{"formId": "f-1"},
		},
		Services: testServices(),
	})
	require.NoError(t, err)
}
