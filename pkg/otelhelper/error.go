package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorEventName is the span event attached to every failed node or run.
const ErrorEventName = "flowline.error"

// SetError records err on the span and flips its status so failed nodes and
// runs are queryable in the trace backend. Callers pass the attribute keys
// from this package (node ID, execution ID) to scope the error event.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent(ErrorEventName, trace.WithAttributes(
		attrs...,
	))
}
