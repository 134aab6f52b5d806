package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Lattice semantic convention attributes.
var (
	AttrTraceID   = attribute.Key("mirrornode.event.trace_id")
	AttrEventType = attribute.Key("mirrornode.event.type")
	AttrNode      = attribute.Key("mirrornode.event.node")
	AttrTarget    = attribute.Key("mirrornode.route.target")
	AttrAdapter   = attribute.Key("mirrornode.adapter.name")
	AttrStatus    = attribute.Key("mirrornode.adapter.status")
	AttrConsensus = attribute.Key("mirrornode.consensus.reached")
	AttrOperation = attribute.Key("mirrornode.operation")

	AttrHTTPMethod = attribute.Key("http.request.method")
	AttrHTTPRoute  = attribute.Key("http.route")
	AttrHTTPStatus = attribute.Key("http.response.status_code")
)

// EventOperation creates attributes for an event-carrying operation.
func EventOperation(traceID, eventType, node string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTraceID.String(traceID),
		AttrEventType.String(eventType),
		AttrNode.String(node),
	}
}

// AdapterOutcome creates attributes for one adapter response.
func AdapterOutcome(adapter, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAdapter.String(adapter),
		AttrStatus.String(status),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes annotates the current span.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
