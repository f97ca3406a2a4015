package reagent

import "context"

// Tracer creates spans around run iterations, model calls, and tool rounds.
// The observer package provides an OTEL-backed implementation via
// NewTracer(). When no Tracer is configured, span creation is skipped.
type Tracer interface {
	// Start creates a new span. Callers must call Span.End() when the
	// operation completes.
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span represents a traced operation.
type Span interface {
	SetAttr(attrs ...SpanAttr)
	// Error records an error on the span and marks it as failed.
	Error(err error)
	// End completes the span. Must be called exactly once.
	End()
}

// SpanAttr is a key-value attribute attached to a span.
type SpanAttr struct {
	Key   string
	Value any
}

func StringAttr(k, v string) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}

func IntAttr(k string, v int) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}

func BoolAttr(k string, v bool) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}
