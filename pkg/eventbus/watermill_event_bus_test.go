package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlineio/flowline/pkg/channels/gochannel"
	"github.com/flowlineio/flowline/pkg/events"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestPublishAndHandle_WorkflowTriggered(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.WorkflowTriggered, 1)

	err := bus.Handle(events.WorkflowTriggeredEvent, func(_ context.Context, event any) error {
		triggered, ok := event.(*events.WorkflowTriggered)
		require.True(t, ok)
		received <- triggered

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = bus.Subscribe(ctx)
	require.NoError(t, err)

	err = bus.Publish(ctx, "wf-1", events.WorkflowTriggered{
		BaseEvent: events.BaseEvent{
			ID:         "evt-1",
			Type:       events.WorkflowTriggeredEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: "wf-1",
		},
		TriggeringEventID: "trg-1",
		InitialData:       map[string]any{"seed": "value"},
	})
	require.NoError(t, err)

	select {
	case triggered := <-received:
		assert.Equal(t, "wf-1", triggered.WorkflowID)
		assert.Equal(t, "trg-1", triggered.TriggeringEventID)
		assert.Equal(t, "value", triggered.InitialData["seed"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishAndHandle_ExecutionLifecycle(t *testing.T) {
	bus := newTestBus(t)

	completed := make(chan *events.ExecutionCompleted, 1)
	failed := make(chan *events.ExecutionFailed, 1)

	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		completed <- event.(*events.ExecutionCompleted)

		return nil
	}))
	require.NoError(t, bus.Handle(events.ExecutionFailedEvent, func(_ context.Context, event any) error {
		failed <- event.(*events.ExecutionFailed)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "exec-1", events.ExecutionCompleted{
		BaseEvent:   events.BaseEvent{ID: "evt-1", Type: events.ExecutionCompletedEvent, WorkflowID: "wf-1"},
		ExecutionID: "exec-1",
		Output:      map[string]any{"done": true},
	}))
	require.NoError(t, bus.Publish(ctx, "exec-2", events.ExecutionFailed{
		BaseEvent:   events.BaseEvent{ID: "evt-2", Type: events.ExecutionFailedEvent, WorkflowID: "wf-1"},
		ExecutionID: "exec-2",
		Error:       "boom",
	}))

	for range 2 {
		select {
		case event := <-completed:
			assert.Equal(t, "exec-1", event.ExecutionID)
		case event := <-failed:
			assert.Equal(t, "exec-2", event.ExecutionID)
			assert.Equal(t, "boom", event.Error)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestHandle_AfterSubscribe(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// Registration races with the consuming goroutine; late handlers must
	// still receive later deliveries.
	received := make(chan *events.ExecutionStarted, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)

		_ = bus.Handle(events.ExecutionStartedEvent, func(_ context.Context, event any) error {
			received <- event.(*events.ExecutionStarted)

			return nil
		})
	}()
	<-done

	require.NoError(t, bus.Publish(ctx, "exec-1", events.ExecutionStarted{
		BaseEvent:   events.BaseEvent{ID: "evt-1", Type: events.ExecutionStartedEvent, WorkflowID: "wf-1"},
		ExecutionID: "exec-1",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestGenerateID_Unique(t *testing.T) {
	bus := newTestBus(t)

	seen := map[string]bool{}
	for range 100 {
		id := bus.GenerateID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
