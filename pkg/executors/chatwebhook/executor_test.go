package chatwebhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
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

func TestExecute_PostsTemplatedMessage(t *testing.T) {
	var gotPayload map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := NewExecutor()

	output, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID: "n-1",
		Config: map[string]any{
			"variableName": "notify",
			"webhookUrl":   server.URL,
			"content":      "Order {{order.id}} shipped",
		},
		Context: models.ExecutionContext{
			"order": map[string]any{"id": "o-42"},
		},
		Services: testServices(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Order o-42 shipped", gotPayload["content"])

	notify, ok := output["notify"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Order o-42 shipped", notify["messageContent"])
}

func TestExecute_CustomContentKey(t *testing.T) {
	var gotPayload map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := NewExecutor()

	_, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID: "n-1",
		Config: map[string]any{
			"variableName": "notify",
			"webhookUrl":   server.URL,
			"content":      "hi",
			"contentKey":   "text",
		},
		Context:  models.ExecutionContext{},
		Services: testServices(),
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", gotPayload["text"])
}

func TestExecute_MissingConfigFails(t *testing.T) {
	executor := NewExecutor()

	tests := []struct {
		name   string
		config map[string]any
	}{
		{
			name: "missing content",
			config: map[string]any{
				"variableName": "notify",
				"webhookUrl":   "http://example.com",
			},
		},
		{
			name: "missing webhook url",
			config: map[string]any{
				"variableName": "notify",
				"content":      "hi",
			},
		},
		{
			name: "missing variable name",
			config: map[string]any{
				"webhookUrl": "http://example.com",
				"content":    "hi",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), protocol.ExecuteInput{
				NodeID:   "n-1",
				Config:   tt.config,
				Context:  models.ExecutionContext{},
				Services: testServices(),
			})
			require.Error(t, err)
			assert.True(t, protocol.IsNonRetriable(err))
		})
	}
}

func TestExecute_ServerErrorIsRetriable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := NewExecutor()

	_, err := executor.Execute(context.Background(), protocol.ExecuteInput{
		NodeID: "n-1",
		Config: map[string]any{
			"variableName": "notify",
			"webhookUrl":   server.URL,
			"content":      "hi",
		},
		Context:  models.ExecutionContext{},
		Services: testServices(),
	})
	require.Error(t, err)
	assert.True(t, protocol.IsRetriable(err))
}
