package treez

import (
	"context"
	"runtime/pprof"
	"sync"
	"time"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "treez"
)

// ThreadNameLabel is the pprof label read as the thread name of a line.
const ThreadNameLabel = "treez.thread"

// Span is the tracer's record of a single unit of work.
// Spans are NOT thread-safe - do not modify from multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability
type Span struct {
	Fields    []Field
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	TraceID   string
	Name      string
	Target    string
	SpanID    SpanID
	ParentID  SpanID
	Level     Level
}

// spanRecord is a registry entry. The parent pointer keeps the ancestry
// walkable after an ancestor closed and left the registry.
type spanRecord struct {
	span   *Span
	parent *spanRecord
	ctx    context.Context
	fields []Field // Creation fields, never modified.
	ext    Extensions
}

// ActiveSpan is the handle of an open span.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	rec    *spanRecord
	tracer *Tracer
	mu     sync.Mutex // Protects Fields and EndTime.
}

// Record appends a field to the span. Layers capture fields when the span is
// created, so recorded fields show up in completion data only.
// No-op if span is already finished.
func (a *ActiveSpan) Record(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.rec.span.EndTime.IsZero() {
		return
	}
	a.rec.span.Fields = append(a.rec.span.Fields, Field{Key: key, Value: value})
}

// Field returns the most recently recorded value for key.
func (a *ActiveSpan) Field(key string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fields := a.rec.span.Fields
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Key == key {
			return fields[i].Value, true
		}
	}
	return nil, false
}

// Finish closes the span and notifies the tracer's layers.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.mu.Lock()
	if !a.rec.span.EndTime.IsZero() {
		a.mu.Unlock()
		return
	}
	a.rec.span.EndTime = a.tracer.clock.Now()
	a.rec.span.Duration = a.rec.span.EndTime.Sub(a.rec.span.StartTime)
	a.mu.Unlock()

	// Layers run without the span lock held: they may log.
	a.tracer.closeSpan(a.rec)
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	return a.rec.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() SpanID {
	return a.rec.span.SpanID
}

// Context creates a new context with this span as the current span.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	bundle := &contextBundle{tracer: a.tracer, rec: a.rec}
	return context.WithValue(parent, bundleKey, bundle)
}

// GetSpan extracts the current span from a context.
// Returns nil if no span is present.
func GetSpan(ctx context.Context) *Span {
	if rec := currentRecord(ctx); rec != nil {
		return rec.span
	}
	return nil
}

// CurrentSpanID returns the id of the current span in ctx, or zero.
func CurrentSpanID(ctx context.Context) SpanID {
	if rec := currentRecord(ctx); rec != nil {
		return rec.span.SpanID
	}
	return 0
}

func currentRecord(ctx context.Context) *spanRecord {
	if ctx == nil {
		return nil
	}
	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.rec
	}
	return nil
}

// WithThreadName labels ctx so that lines rendered for it carry name as
// their thread name. The label is also visible to pprof.
func WithThreadName(ctx context.Context, name string) context.Context {
	return pprof.WithLabels(ctx, pprof.Labels(ThreadNameLabel, name))
}

// ThreadName returns the thread name attached with WithThreadName.
func ThreadName(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	return pprof.Label(ctx, ThreadNameLabel)
}

// SpanRef gives layers read access to a span and its extension slots.
// The zero SpanRef refers to no span.
type SpanRef struct {
	rec *spanRecord
}

// Valid reports whether the reference points at a span.
func (s SpanRef) Valid() bool { return s.rec != nil }

// ID returns the span id.
func (s SpanRef) ID() SpanID { return s.rec.span.SpanID }

// Name returns the span name.
func (s SpanRef) Name() string { return s.rec.span.Name }

// Target returns the target of the tracer that created the span.
func (s SpanRef) Target() string { return s.rec.span.Target }

// Level returns the span level.
func (s SpanRef) Level() Level { return s.rec.span.Level }

// StartTime returns the time the tracer opened the span.
func (s SpanRef) StartTime() time.Time { return s.rec.span.StartTime }

// Fields returns the fields the span was created with.
func (s SpanRef) Fields() []Field { return s.rec.fields }

// Context returns the context the span was created in.
func (s SpanRef) Context() context.Context { return s.rec.ctx }

// Parent returns the parent span, if any.
func (s SpanRef) Parent() (SpanRef, bool) {
	if s.rec.parent == nil {
		return SpanRef{}, false
	}
	return SpanRef{rec: s.rec.parent}, true
}

// Depth returns the number of ancestors of the span.
func (s SpanRef) Depth() int {
	n := 0
	for r := s.rec.parent; r != nil; r = r.parent {
		n++
	}
	return n
}

// Path returns the span's ancestors from the root down to and including the
// span itself.
func (s SpanRef) Path() []SpanRef {
	path := make([]SpanRef, s.Depth()+1)
	i := len(path) - 1
	for r := s.rec; r != nil; r = r.parent {
		path[i] = SpanRef{rec: r}
		i--
	}
	return path
}

// Extensions returns the span's extension slots.
func (s SpanRef) Extensions() *Extensions { return &s.rec.ext }

// Extensions stores arbitrary per-span data owned by layers. Each layer keys
// its data with a private key type.
type Extensions struct {
	values map[any]any
	mu     sync.Mutex
}

// Insert stores value under key, replacing any previous value.
func (e *Extensions) Insert(key, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.values == nil {
		e.values = make(map[any]any)
	}
	e.values[key] = value
}

// Get returns the value stored under key.
func (e *Extensions) Get(key any) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[key]
	return v, ok
}

// Extension returns the value stored under key if it has type T.
func Extension[T any](s SpanRef, key any) (T, bool) {
	var zero T
	if !s.Valid() {
		return zero, false
	}
	v, ok := s.Extensions().Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
