// Package treez renders spans and events as a hierarchical tree.
//
// treez pairs a minimal tracer with a layer that draws what the tracer
// records as an indented, optionally box-drawn tree. It is meant for humans
// reading diagnostics in a terminal, including output produced by many
// goroutines at once.
//
// Core Components:
//   - Tracer: Manages span lifecycle and dispatches to layers.
//   - ActiveSpan: Handle for an open span.
//   - SpanRef: Read access to a live span and its extension slots.
//   - HierarchicalLayer: Renders the tree.
//   - Collector: In-memory sink for captured output.
//
// Basic Usage:
//
//	tracer := treez.New()
//	defer tracer.Close()
//	tracer.AddLayer(treez.MustNewLayer(treez.DefaultConfig()))
//
//	ctx, span := tracer.StartSpan(ctx, "server", treez.F("port", 8080))
//	defer span.Finish()
//
//	tracer.Info(ctx, "listening")
//
// Concurrent Output:
//
// Goroutines may log into one layer concurrently. Each span banner or event
// line is written with a single Write call while the layer lock is held, and
// when focus moves between unrelated spans the layer re-prints ("retraces")
// the ancestors needed to keep the tree readable.
//
// Context Propagation:
//
// Spans are linked via context.Context. Child spans inherit their parent's
// TraceID and reference the parent's SpanID.
package treez

// Key represents a span name.
type Key = string

// SpanID identifies a span for the lifetime of its tracer. Zero means no span.
type SpanID uint64

// Field is one named value recorded on a span or an event.
type Field struct {
	Value any
	Key   string
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// MessageKey is the field rendered without its name.
const MessageKey = "message"
