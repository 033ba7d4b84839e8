package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetError_RecordsAndFlipsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "workflow.node",
		attribute.String(NodeIDKey, "n-1"),
	)

	SetError(span, errors.New("endpoint returned status 404"),
		attribute.String(ExecutionIDKey, "exec-1"),
	)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	ended := spans[0]
	assert.Equal(t, codes.Error, ended.Status().Code)
	assert.Equal(t, "endpoint returned status 404", ended.Status().Description)

	var sawErrorEvent bool

	for _, event := range ended.Events() {
		if event.Name != ErrorEventName {
			continue
		}

		sawErrorEvent = true

		assert.Contains(t, event.Attributes, attribute.String(ExecutionIDKey, "exec-1"))
	}

	assert.True(t, sawErrorEvent, "error event must be attached to the span")
}
