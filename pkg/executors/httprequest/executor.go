// Package httprequest provides the HTTP request node kind.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

// ErrServerError is returned when the endpoint answers with a 5xx status.
var ErrServerError = errors.New("server error during HTTP request")

// Executor performs one templated HTTP request per node run. The response is
// merged into the run context as {httpResponse: {status, statusText, data}},
// namespaced under the configured variable name when one is declared. The
// Client is swappable so tests can stub the endpoint.
type Executor struct {
	Client *http.Client
}

func NewExecutor() *Executor {
	return &Executor{Client: &http.Client{Timeout: defaultTimeout}}
}

func (e *Executor) Kind() string {
	return models.NodeKindHTTPRequest
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"endpoint": map[string]any{
				"type":        "string",
				"description": "URL to request. Supports templating.",
			},
			"method": map[string]any{
				"type": "string",
				"enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body, sent for POST/PUT/PATCH. Supports templating.",
			},
			"headers": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"variableName": map[string]any{
				"type":        "string",
				"description": "Context key the response is stored under. Top-level merge when empty.",
			},
		},
		"required": []string{"endpoint"},
	}
}

func (e *Executor) Execute(ctx context.Context, in protocol.ExecuteInput) (map[string]any, error) {
	logger := in.Services.Logger.With("module", "httprequest_executor")

	err := protocol.ValidateConfig(e.Schema(), in.Config)
	if err != nil {
		return nil, err
	}

	endpoint, _ := in.Config["endpoint"].(string)
	endpoint = in.Services.Templates.Render(endpoint, in.Context)

	if endpoint == "" {
		return nil, protocol.NewNonRetriableError("node %s is not configured with an endpoint", in.NodeID)
	}

	method, _ := in.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)

	req, err := e.buildRequest(ctx, in, method, endpoint)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Performing HTTP request", "method", method, "endpoint", endpoint)

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, protocol.NewRetriableError("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, protocol.NewRetriableError("endpoint returned status %d: %w", resp.StatusCode, ErrServerError)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.NewNonRetriableError("endpoint returned status %d", resp.StatusCode)
	}

	data, err := decodeBody(resp)
	if err != nil {
		return nil, protocol.NewRetriableError("failed to read response body: %w", err)
	}

	logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode)

	contribution := map[string]any{
		"httpResponse": map[string]any{
			"status":     resp.StatusCode,
			"statusText": http.StatusText(resp.StatusCode),
			"data":       data,
		},
	}

	variableName, _ := in.Config["variableName"].(string)
	if variableName != "" {
		return map[string]any{variableName: contribution}, nil
	}

	return contribution, nil
}

func (e *Executor) buildRequest(
	ctx context.Context,
	in protocol.ExecuteInput,
	method string,
	endpoint string,
) (*http.Request, error) {
	var bodyReader io.Reader = strings.NewReader("")

	body, _ := in.Config["body"].(string)
	if body != "" && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		bodyReader = strings.NewReader(in.Services.Templates.Render(body, in.Context))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, protocol.NewNonRetriableError("failed to build http request: %w", err)
	}

	headers, _ := in.Config["headers"].(map[string]any)
	for key, value := range headers {
		strValue, ok := value.(string)
		if !ok {
			continue
		}

		req.Header.Set(key, in.Services.Templates.Render(strValue, in.Context))
	}

	return req, nil
}

// decodeBody parses JSON responses into structured data; anything else comes
// back as the raw text.
func decodeBody(resp *http.Response) (any, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var data any

		err = json.Unmarshal(raw, &data)
		if err == nil {
			return data, nil
		}

		return nil, fmt.Errorf("endpoint declared JSON but sent malformed body: %w", err)
	}

	return string(raw), nil
}
