// Package llm provides the text-generation node kind. It talks to any
// OpenAI-compatible chat completion endpoint; the provider is selected by the
// configured base URL, the credential comes from the secrets resolver.
package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/protocol"
)

const defaultModel = "gpt-4.1"

const defaultSystemPrompt = "You are a helpful assistant."

// Executor generates text from a templated prompt pair and merges
// {variable: {text}} into the run context. CompletionFn is swappable so tests
// can stub the provider call.
type Executor struct {
	CompletionFn func(ctx context.Context, apiKey, baseURL, model, systemPrompt, userPrompt string) (string, error)
}

func NewExecutor() *Executor {
	return &Executor{CompletionFn: complete}
}

func (e *Executor) Kind() string {
	return models.NodeKindLLM
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"variableName": map[string]any{
				"type":        "string",
				"description": "Context key the generated text is stored under.",
			},
			"credentialId": map[string]any{
				"type":        "string",
				"description": "Credential holding the provider API key.",
			},
			"userPrompt": map[string]any{
				"type":        "string",
				"description": "Prompt sent as the user message. Supports templating.",
			},
			"systemPrompt": map[string]any{
				"type":        "string",
				"description": "Optional system message. Supports templating.",
			},
			"model": map[string]any{
				"type": "string",
			},
			"baseUrl": map[string]any{
				"type":        "string",
				"description": "Optional OpenAI-compatible endpoint override.",
			},
		},
		"required": []string{"variableName", "credentialId", "userPrompt"},
	}
}

func (e *Executor) Execute(ctx context.Context, in protocol.ExecuteInput) (map[string]any, error) {
	logger := in.Services.Logger.With("module", "llm_executor")

	err := protocol.ValidateConfig(e.Schema(), in.Config)
	if err != nil {
		return nil, err
	}

	variableName, _ := in.Config["variableName"].(string)
	credentialID, _ := in.Config["credentialId"].(string)
	userPrompt, _ := in.Config["userPrompt"].(string)

	if variableName == "" {
		return nil, protocol.NewNonRetriableError("llm node %s: variable name is missing", in.NodeID)
	}

	if credentialID == "" {
		return nil, protocol.NewNonRetriableError("llm node %s: credential is required", in.NodeID)
	}

	if userPrompt == "" {
		return nil, protocol.NewNonRetriableError("llm node %s: user prompt is missing", in.NodeID)
	}

	apiKey, err := in.Services.Secrets.Resolve(ctx, credentialID, in.Services.Owner)
	if err != nil {
		return nil, protocol.NonRetriable(err)
	}

	systemPrompt, _ := in.Config["systemPrompt"].(string)
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	} else {
		systemPrompt = in.Services.Templates.Render(systemPrompt, in.Context)
	}

	userPrompt = in.Services.Templates.Render(userPrompt, in.Context)

	model, _ := in.Config["model"].(string)
	if model == "" {
		model = defaultModel
	}

	baseURL, _ := in.Config["baseUrl"].(string)

	logger.InfoContext(ctx, "Requesting chat completion", "model", model)

	text, err := e.CompletionFn(ctx, apiKey, baseURL, model, systemPrompt, userPrompt)
	if err != nil {
		return nil, protocol.NewRetriableError("chat completion failed: %w", err)
	}

	logger.InfoContext(ctx, "Chat completion finished", "model", model, "length", len(text))

	return map[string]any{
		variableName: map[string]any{
			"text": text,
		},
	}, nil
}

func complete(ctx context.Context, apiKey, baseURL, model, systemPrompt, userPrompt string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", err
	}

	if len(completion.Choices) == 0 {
		return "", nil
	}

	return completion.Choices[0].Message.Content, nil
}
