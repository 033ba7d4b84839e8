// Package chatwebhook provides the chat-message node kind: it posts a
// templated message to a Slack or Discord style incoming webhook.
package chatwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/protocol"
)

const defaultTimeout = 15 * time.Second

// Executor posts one message per node run and merges
// {variable: {messageContent}} into the run context.
type Executor struct {
	Client *http.Client
}

func NewExecutor() *Executor {
	return &Executor{Client: &http.Client{Timeout: defaultTimeout}}
}

func (e *Executor) Kind() string {
	return models.NodeKindChatWebhook
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variableName": map[string]any{
				"type":        "string",
				"description": "Context key the sent message is stored under.",
			},
			"webhookUrl": map[string]any{
				"type":        "string",
				"description": "Incoming webhook URL the message is posted to.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Message content. Supports templating.",
			},
			"contentKey": map[string]any{
				"type":        "string",
				"description": "JSON key the webhook expects the message under. Defaults to \"content\".",
			},
		},
		"required": []string{"variableName", "webhookUrl", "content"},
	}
}

func (e *Executor) Execute(ctx context.Context, in protocol.ExecuteInput) (map[string]any, error) {
	logger := in.Services.Logger.With("module", "chatwebhook_executor")

	err := protocol.ValidateConfig(e.Schema(), in.Config)
	if err != nil {
		return nil, err
	}

	variableName, _ := in.Config["variableName"].(string)
	webhookURL, _ := in.Config["webhookUrl"].(string)
	content, _ := in.Config["content"].(string)

	if variableName == "" {
		return nil, protocol.NewNonRetriableError("chat webhook node %s: variable name is missing", in.NodeID)
	}

	if webhookURL == "" {
		return nil, protocol.NewNonRetriableError("chat webhook node %s: webhook URL is required", in.NodeID)
	}

	if content == "" {
		return nil, protocol.NewNonRetriableError("chat webhook node %s: message content is required", in.NodeID)
	}

	content = in.Services.Templates.Render(content, in.Context)

	// Slack and Discord both read the message from a single JSON key, they
	// just disagree on its name.
	contentKey, _ := in.Config["contentKey"].(string)
	if contentKey == "" {
		contentKey = "content"
	}

	payload, err := json.Marshal(map[string]string{contentKey: content})
	if err != nil {
		return nil, protocol.NewNonRetriableError("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, protocol.NewNonRetriableError("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	logger.InfoContext(ctx, "Posting chat webhook message")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, protocol.NewRetriableError("webhook post failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, protocol.NewRetriableError("webhook returned status %d", resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.NewNonRetriableError("webhook returned status %d", resp.StatusCode)
	}

	logger.InfoContext(ctx, "Chat webhook message delivered", "status", resp.StatusCode)

	return map[string]any{
		variableName: map[string]any{
			"messageContent": content,
		},
	}, nil
}
