package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlineio/flowline/pkg/eventbus"
	"github.com/flowlineio/flowline/pkg/events"
	"github.com/flowlineio/flowline/pkg/executors/httprequest"
	"github.com/flowlineio/flowline/pkg/executors/transform"
	"github.com/flowlineio/flowline/pkg/executors/trigger"
	"github.com/flowlineio/flowline/pkg/models"
	"github.com/flowlineio/flowline/pkg/persistence"
	"github.com/flowlineio/flowline/pkg/persistence/file"
	"github.com/flowlineio/flowline/pkg/protocol"
	"github.com/flowlineio/flowline/pkg/registry"
	"github.com/flowlineio/flowline/pkg/secrets"
	"github.com/flowlineio/flowline/pkg/status"
	"github.com/flowlineio/flowline/pkg/template"
)

// statusRecord is one observed node status event, in publish order.
type statusRecord struct {
	NodeID string
	Status models.NodeStatus
}

type captureStatusPublisher struct {
	mu      sync.Mutex
	records []statusRecord
}

func (c *captureStatusPublisher) Publish(_ string, messages ...*message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range messages {
		var changed events.NodeStatusChanged

		err := json.Unmarshal(msg.Payload, &changed)
		if err != nil {
			return err
		}

		c.records = append(c.records, statusRecord{
			NodeID: changed.Event.NodeID,
			Status: changed.Event.Status,
		})
	}

	return nil
}

func (c *captureStatusPublisher) Close() error { return nil }

func (c *captureStatusPublisher) all() []statusRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]statusRecord(nil), c.records...)
}

type captureEventBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (c *captureEventBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)

	return nil
}

func (c *captureEventBus) types() []events.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]events.EventType, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.GetType())
	}

	return out
}

// stubExecutor runs a canned function under a custom kind.
type stubExecutor struct {
	kind string
	fn   func(ctx context.Context, in protocol.ExecuteInput) (map[string]any, error)
}

func (s *stubExecutor) Kind() string           { return s.kind }
func (s *stubExecutor) Schema() map[string]any { return map[string]any{"type": "object"} }
func (s *stubExecutor) Execute(ctx context.Context, in protocol.ExecuteInput) (map[string]any, error) {
	return s.fn(ctx, in)
}

type engineFixture struct {
	engine      *Engine
	persistence persistence.Persistence
	registry    *registry.Registry
	status      *captureStatusPublisher
	bus         *captureEventBus
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultExecutors()

	capture := &captureStatusPublisher{}
	bus := &captureEventBus{}

	engine := NewEngine(Config{
		Persistence: store,
		Registry:    reg,
		Templates:   template.NewResolver(),
		Status:      status.NewPublisher(capture, slog.Default()),
		Secrets:     secrets.Static{},
		EventBus:    bus,
		Logger:      slog.Default(),
	})

	return &engineFixture{
		engine:      engine,
		persistence: store,
		registry:    reg,
		status:      capture,
		bus:         bus,
	}
}

func (f *engineFixture) saveWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	require.NoError(t, f.persistence.WorkflowRepository().SaveWorkflow(context.Background(), workflow))
}

func conn(from, to string) *models.Connection {
	return &models.Connection{FromNodeID: from, ToNodeID: to, FromPort: models.DefaultPort, ToPort: models.DefaultPort}
}

func TestRun_TwoNodeContextAccumulation(t *testing.T) {
	f := newFixture(t)

	f.registry.Register(&stubExecutor{
		kind: "test:write",
		fn: func(_ context.Context, _ protocol.ExecuteInput) (map[string]any, error) {
			return map[string]any{"myHttp": map[string]any{"data": float64(42)}}, nil
		},
	})
	f.registry.Register(&stubExecutor{
		kind: "test:read",
		fn: func(_ context.Context, in protocol.ExecuteInput) (map[string]any, error) {
			rendered := in.Services.Templates.Render("{{myHttp.data}}", in.Context)

			return map[string]any{"rendered": rendered}, nil
		},
	})

	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-1",
		Name:  "accumulation",
		Owner: "owner-1",
		Nodes: []*models.WorkflowNode{
			{ID: "n-1", Kind: "test:write"},
			{ID: "n-2", Kind: "test:read"},
		},
		Connections: []*models.Connection{conn("n-1", "n-2")},
	})

	execution, err := f.engine.Run(context.Background(), RunRequest{
		WorkflowID:        "wf-1",
		TriggeringEventID: "trg-1",
		InitialData:       map[string]any{"seed": "initial"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, "initial", execution.Output["seed"])
	assert.Equal(t, "42", execution.Output["rendered"])

	myHTTP, ok := execution.Output["myHttp"].(map[string]any)
	require.True(t, ok)
	assert.InEpsilon(t, 42.0, myHTTP["data"], 0.0001)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionCompletedEvent,
	}, f.bus.types())
}

func TestRun_Idempotency(t *testing.T) {
	f := newFixture(t)

	invocations := 0

	f.registry.Register(&stubExecutor{
		kind: "test:count",
		fn: func(_ context.Context, _ protocol.ExecuteInput) (map[string]any, error) {
			invocations++

			return map[string]any{"done": true}, nil
		},
	})

	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-1",
		Owner: "owner-1",
		Nodes: []*models.WorkflowNode{{ID: "n-1", Kind: "test:count"}},
	})

	req := RunRequest{WorkflowID: "wf-1", TriggeringEventID: "trg-same"}

	first, err := f.engine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, first.Status)

	second, err := f.engine.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "duplicate delivery returns the existing record")
	assert.Equal(t, 1, invocations, "nodes run exactly once per triggering event")
}

func TestRun_FailureShortCircuit(t *testing.T) {
	f := newFixture(t)

	thirdInvoked := false

	f.registry.Register(&stubExecutor{
		kind: "test:ok",
		fn: func(_ context.Context, _ protocol.ExecuteInput) (map[string]any, error) {
			return map[string]any{"first": "done"}, nil
		},
	})
	f.registry.Register(&stubExecutor{
		kind: "test:explode",
		fn: func(_ context.Context, _ protocol.ExecuteInput) (map[string]any, error) {
			return nil, protocol.NewNonRetriableError("missing endpoint")
		},
	})
	f.registry.Register(&stubExecutor{
		kind: "test:never",
		fn: func(_ context.Context, _ protocol.ExecuteInput) (map[string]any, error) {
			thirdInvoked = true

			return nil, nil
		},
	})

	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-1",
		Owner: "owner-1",
		Nodes: []*models.WorkflowNode{
			{ID: "n-1", Kind: "test:ok"},
			{ID: "n-2", Kind: "test:explode"},
			{ID: "n-3", Kind: "test:never"},
		},
		Connections: []*models.Connection{conn("n-1", "n-2"), conn("n-2", "n-3")},
	})

	execution, err := f.engine.Run(context.Background(), RunRequest{
		WorkflowID:        "wf-1",
		TriggeringEventID: "trg-1",
	})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))
	assert.False(t, thirdInvoked, "downstream node must never be invoked")

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.Error, "missing endpoint")
	assert.NotEmpty(t, execution.ErrorStack)

	stored, storeErr := f.persistence.ExecutionRepository().ExecutionByID(context.Background(), execution.ID)
	require.NoError(t, storeErr)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)

	assert.Equal(t, []statusRecord{
		{NodeID: "n-1", Status: models.NodeStatusLoading},
		{NodeID: "n-1", Status: models.NodeStatusSuccess},
		{NodeID: "n-2", Status: models.NodeStatusLoading},
		{NodeID: "n-2", Status: models.NodeStatusError},
	}, f.status.all(), "third node emits no status events")

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionFailedEvent,
	}, f.bus.types())
}

func TestRun_RetriableFailureLeavesExecutionPending(t *testing.T) {
	f := newFixture(t)

	attempts := 0

	f.registry.Register(&stubExecutor{
		kind: "test:flaky",
		fn: func(_ context.Context, _ protocol.ExecuteInput) (map[string]any, error) {
			attempts++
			if attempts == 1 {
				return nil, protocol.NewRetriableError("connection reset")
			}

			return map[string]any{"ok": true}, nil
		},
	})

	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-1",
		Owner: "owner-1",
		Nodes: []*models.WorkflowNode{{ID: "n-1", Kind: "test:flaky"}},
	})

	req := RunRequest{WorkflowID: "wf-1", TriggeringEventID: "trg-1"}

	execution, err := f.engine.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, protocol.IsRetriable(err))

	stored, storeErr := f.persistence.ExecutionRepository().ExecutionByID(context.Background(), execution.ID)
	require.NoError(t, storeErr)
	assert.Equal(t, models.ExecutionStatusPending, stored.Status, "retriable failure must not finalize")

	// Re-invocation under the same triggering event reuses the record.
	retried, err := f.engine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, retried.ID)
	assert.Equal(t, models.ExecutionStatusSuccess, retried.Status)
}

func TestRun_UnknownWorkflowFailsNonRetriable(t *testing.T) {
	f := newFixture(t)

	execution, err := f.engine.Run(context.Background(), RunRequest{
		WorkflowID:        "ghost",
		TriggeringEventID: "trg-1",
	})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))

	stored, storeErr := f.persistence.ExecutionRepository().ExecutionByID(context.Background(), execution.ID)
	require.NoError(t, storeErr)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
}

func TestRun_CyclicGraphFailsNonRetriable(t *testing.T) {
	f := newFixture(t)

	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-1",
		Owner: "owner-1",
		Nodes: []*models.WorkflowNode{
			{ID: "n-1", Kind: models.NodeKindManualTrigger},
			{ID: "n-2", Kind: models.NodeKindTransform},
		},
		Connections: []*models.Connection{conn("n-1", "n-2"), conn("n-2", "n-1")},
	})

	execution, err := f.engine.Run(context.Background(), RunRequest{
		WorkflowID:        "wf-1",
		TriggeringEventID: "trg-1",
	})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
}

func TestRun_UnknownNodeKindFails(t *testing.T) {
	f := newFixture(t)

	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-1",
		Owner: "owner-1",
		Nodes: []*models.WorkflowNode{{ID: "n-1", Kind: "nope"}},
	})

	execution, err := f.engine.Run(context.Background(), RunRequest{
		WorkflowID:        "wf-1",
		TriggeringEventID: "trg-1",
	})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Empty(t, f.status.all(), "unregistered kinds have no status topic")
}

func TestRun_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Run(context.Background(), RunRequest{WorkflowID: "wf-1"})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))

	_, err = f.engine.Run(context.Background(), RunRequest{TriggeringEventID: "trg-1"})
	require.Error(t, err)
	assert.True(t, protocol.IsNonRetriable(err))
}

func TestRun_CancellationBetweenNodes(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())

	f.registry.Register(&stubExecutor{
		kind: "test:cancel",
		fn: func(_ context.Context, _ protocol.ExecuteInput) (map[string]any, error) {
			cancel()

			return map[string]any{"first": true}, nil
		},
	})
	f.registry.Register(&stubExecutor{
		kind: "test:after",
		fn: func(_ context.Context, _ protocol.ExecuteInput) (map[string]any, error) {
			t.Fatal("node after cancellation must not run")

			return nil, nil
		},
	})

	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-1",
		Owner: "owner-1",
		Nodes: []*models.WorkflowNode{
			{ID: "n-1", Kind: "test:cancel"},
			{ID: "n-2", Kind: "test:after"},
		},
		Connections: []*models.Connection{conn("n-1", "n-2")},
	})

	execution, err := f.engine.Run(ctx, RunRequest{
		WorkflowID:        "wf-1",
		TriggeringEventID: "trg-1",
	})
	require.Error(t, err)
	assert.True(t, protocol.IsRetriable(err))

	stored, storeErr := f.persistence.ExecutionRepository().ExecutionByID(context.Background(), execution.ID)
	require.NoError(t, storeErr)
	assert.Equal(t, models.ExecutionStatusPending, stored.Status)
}

func TestRun_EndToEndStubbedHTTP(t *testing.T) {
	f := newFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer server.Close()

	// Re-register the HTTP kind so requests hit the stub with a short timeout.
	httpExecutor := httprequest.NewExecutor()
	httpExecutor.Client = server.Client()
	f.registry.Register(httpExecutor)
	f.registry.Register(trigger.NewManualExecutor())
	f.registry.Register(transform.NewExecutor())

	f.saveWorkflow(t, &models.Workflow{
		ID:    "wf-e2e",
		Owner: "owner-1",
		Nodes: []*models.WorkflowNode{
			{ID: "n-trigger", Kind: models.NodeKindManualTrigger},
			{ID: "n-call", Kind: models.NodeKindHTTPRequest, Config: map[string]any{
				"endpoint":     server.URL + "/x",
				"variableName": "call",
			}},
			{ID: "n-template", Kind: models.NodeKindTransform, Config: map[string]any{
				"variableName": "result",
				"fields": map[string]any{
					"id": "{{call.httpResponse.data.id}}",
				},
			}},
		},
		Connections: []*models.Connection{
			conn("n-trigger", "n-call"),
			conn("n-call", "n-template"),
		},
	})

	execution, err := f.engine.Run(context.Background(), RunRequest{
		WorkflowID:        "wf-e2e",
		TriggeringEventID: "trg-e2e",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	call, ok := execution.Output["call"].(map[string]any)
	require.True(t, ok)

	response, ok := call["httpResponse"].(map[string]any)
	require.True(t, ok)

	data, ok := response["data"].(map[string]any)
	require.True(t, ok)
	assert.InEpsilon(t, 7.0, data["id"], 0.0001)

	result, ok := execution.Output["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "7", result["id"])

	records := f.status.all()
	require.Len(t, records, 6)

	for i, nodeID := range []string{"n-trigger", "n-call", "n-template"} {
		assert.Equal(t, statusRecord{NodeID: nodeID, Status: models.NodeStatusLoading}, records[2*i])
		assert.Equal(t, statusRecord{NodeID: nodeID, Status: models.NodeStatusSuccess}, records[2*i+1])
	}
}
