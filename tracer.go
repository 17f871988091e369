package treez

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// contextBundle holds both tracer and span to reduce context allocations.
type contextBundle struct {
	tracer *Tracer
	rec    *spanRecord
}

// Layer observes what a Tracer records. Callbacks run synchronously on the
// goroutine that opened the span, logged the event or finished the span.
type Layer interface {
	// OnNewSpan is called after span was registered, before StartSpan returns.
	OnNewSpan(ctx context.Context, span SpanRef, lookup Lookup)
	// OnEvent is called for every event.
	OnEvent(ctx context.Context, ev *Event, lookup Lookup)
	// OnClose is called when span is finished, while it is still resolvable.
	OnClose(ctx context.Context, span SpanRef, lookup Lookup)
}

// Lookup resolves live spans by id. Closed spans do not resolve.
type Lookup interface {
	Span(id SpanID) (SpanRef, bool)
}

// Event is a single leveled record, optionally inside a span.
type Event struct {
	Time   time.Time
	Target string
	Fields []Field
	Span   SpanID
	Level  Level
}

type layerEntry struct {
	layer Layer
	id    uint64
}

// registry is the state shared by a tracer and the views returned by
// WithTarget.
//
//nolint:govet // Field order optimized for functionality over memory
type registry struct {
	spans       map[SpanID]*spanRecord
	layers      []layerEntry
	panicHook   func(layerID uint64, r any)
	traceIDPool *IDPool
	idPoolOnce  sync.Once
	spansLock   sync.RWMutex
	layersLock  sync.RWMutex
	nextLayerID atomic.Uint64
	nextSpanID  atomic.Uint64
}

// Span resolves a live span.
func (r *registry) Span(id SpanID) (SpanRef, bool) {
	r.spansLock.RLock()
	defer r.spansLock.RUnlock()
	rec, ok := r.spans[id]
	if !ok {
		return SpanRef{}, false
	}
	return SpanRef{rec: rec}, true
}

// Tracer manages span lifecycle and layer dispatch.
// Safe for concurrent use by multiple goroutines.
type Tracer struct {
	reg    *registry
	clock  clockz.Clock
	target string
}

// New creates a new tracer.
// Uses the real clock for production behavior.
func New() *Tracer {
	return &Tracer{
		reg:   newRegistry(),
		clock: clockz.RealClock,
	}
}

func newRegistry() *registry {
	return &registry{
		spans:  make(map[SpanID]*spanRecord),
		layers: make([]layerEntry, 0),
	}
}

// WithClock returns a new tracer with the specified clock.
// Enables clock injection for deterministic testing.
func (t *Tracer) WithClock(clock clockz.Clock) *Tracer {
	return &Tracer{
		reg:    newRegistry(),
		clock:  clock,
		target: t.target,
	}
}

// WithTarget returns a view of the tracer whose spans and events carry
// target. The view shares spans and layers with t.
func (t *Tracer) WithTarget(target string) *Tracer {
	return &Tracer{
		reg:    t.reg,
		clock:  t.clock,
		target: target,
	}
}

// Target returns the target stamped on spans and events.
func (t *Tracer) Target() string {
	return t.target
}

// Clock returns the tracer's clock.
func (t *Tracer) Clock() clockz.Clock {
	return t.clock
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.reg.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		poolSize := runtime.NumCPU() * 100

		t.reg.traceIDPool = NewIDPool(poolSize, func() string {
			id, err := uuid.NewRandom()
			if err == nil {
				return hex.EncodeToString(id[:])
			}
			bytes := make([]byte, 16)
			if _, err := rand.Read(bytes); err != nil {
				// Fallback to time-based ID if crypto/rand fails.
				return hex.EncodeToString([]byte(t.clock.Now().Format(time.RFC3339Nano)))
			}
			return hex.EncodeToString(bytes)
		})
	})
}

// AddLayer registers a layer and returns its id.
func (t *Tracer) AddLayer(layer Layer) uint64 {
	if layer == nil {
		return 0
	}

	id := t.reg.nextLayerID.Add(1)

	t.reg.layersLock.Lock()
	defer t.reg.layersLock.Unlock()

	t.reg.layers = append(t.reg.layers, layerEntry{
		id:    id,
		layer: layer,
	})

	return id
}

// RemoveLayer removes a layer by ID.
func (t *Tracer) RemoveLayer(id uint64) {
	t.reg.layersLock.Lock()
	defer t.reg.layersLock.Unlock()

	// Preserve order
	for i, l := range t.reg.layers {
		if l.id == id {
			copy(t.reg.layers[i:], t.reg.layers[i+1:])
			t.reg.layers = t.reg.layers[:len(t.reg.layers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a layer panics. Without a
// hook, layer panics propagate to the caller.
func (t *Tracer) SetPanicHook(hook func(layerID uint64, r any)) {
	t.reg.layersLock.Lock()
	defer t.reg.layersLock.Unlock()
	t.reg.panicHook = hook
}

// Span resolves a live span by id.
func (t *Tracer) Span(id SpanID) (SpanRef, bool) {
	return t.reg.Span(id)
}

// StartSpan opens an INFO span. If the context contains an existing span,
// the new span will be its child.
func (t *Tracer) StartSpan(ctx context.Context, operation Key, fields ...Field) (context.Context, *ActiveSpan) {
	return t.StartSpanLevel(ctx, LevelInfo, operation, fields...)
}

// StartSpanLevel opens a span at level.
func (t *Tracer) StartSpanLevel(ctx context.Context, level Level, operation Key, fields ...Field) (context.Context, *ActiveSpan) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	captured := make([]Field, len(fields))
	copy(captured, fields)

	span := &Span{
		SpanID:    SpanID(t.reg.nextSpanID.Add(1)),
		Name:      operation,
		Target:    t.target,
		Level:     level,
		StartTime: t.clock.Now(),
		Fields:    append([]Field(nil), fields...),
	}

	// Link to parent span if present.
	parent := currentRecord(ctx)
	if parent != nil {
		span.TraceID = parent.span.TraceID
		span.ParentID = parent.span.SpanID
	} else {
		t.ensureIDPools()
		span.TraceID = t.reg.traceIDPool.Get()
	}

	rec := &spanRecord{span: span, parent: parent, fields: captured}
	newCtx := context.WithValue(ctx, bundleKey, &contextBundle{tracer: t, rec: rec})
	rec.ctx = newCtx

	t.reg.spansLock.Lock()
	t.reg.spans[span.SpanID] = rec
	t.reg.spansLock.Unlock()

	ref := SpanRef{rec: rec}
	t.dispatch(func(l Layer) { l.OnNewSpan(newCtx, ref, t.reg) })

	return newCtx, &ActiveSpan{rec: rec, tracer: t}
}

// closeSpan notifies layers and then forgets the span.
func (t *Tracer) closeSpan(rec *spanRecord) {
	ref := SpanRef{rec: rec}
	t.dispatch(func(l Layer) { l.OnClose(rec.ctx, ref, t.reg) })

	t.reg.spansLock.Lock()
	delete(t.reg.spans, rec.span.SpanID)
	t.reg.spansLock.Unlock()
}

// Event records an event in the current span of ctx. A non-empty msg becomes
// the leading message field.
func (t *Tracer) Event(ctx context.Context, level Level, msg string, fields ...Field) {
	all := make([]Field, 0, len(fields)+1)
	if msg != "" {
		all = append(all, Field{Key: MessageKey, Value: msg})
	}
	all = append(all, fields...)

	t.Emit(ctx, &Event{
		Time:   t.clock.Now(),
		Level:  level,
		Target: t.target,
		Fields: all,
		Span:   CurrentSpanID(ctx),
	})
}

// Emit dispatches a fully built event. Bridges from other logging APIs use
// it to control the time, target and span of the event.
func (t *Tracer) Emit(ctx context.Context, ev *Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	t.dispatch(func(l Layer) { l.OnEvent(ctx, ev, t.reg) })
}

// Trace records a TRACE event.
func (t *Tracer) Trace(ctx context.Context, msg string, fields ...Field) {
	t.Event(ctx, LevelTrace, msg, fields...)
}

// Debug records a DEBUG event.
func (t *Tracer) Debug(ctx context.Context, msg string, fields ...Field) {
	t.Event(ctx, LevelDebug, msg, fields...)
}

// Info records an INFO event.
func (t *Tracer) Info(ctx context.Context, msg string, fields ...Field) {
	t.Event(ctx, LevelInfo, msg, fields...)
}

// Warn records a WARN event.
func (t *Tracer) Warn(ctx context.Context, msg string, fields ...Field) {
	t.Event(ctx, LevelWarn, msg, fields...)
}

// Error records an ERROR event.
func (t *Tracer) Error(ctx context.Context, msg string, fields ...Field) {
	t.Event(ctx, LevelError, msg, fields...)
}

// dispatch calls fn for every registered layer, in registration order.
func (t *Tracer) dispatch(fn func(Layer)) {
	t.reg.layersLock.RLock()
	if len(t.reg.layers) == 0 {
		t.reg.layersLock.RUnlock()
		return
	}

	layers := make([]layerEntry, len(t.reg.layers))
	copy(layers, t.reg.layers)
	hook := t.reg.panicHook
	t.reg.layersLock.RUnlock()

	for _, l := range layers {
		t.safeCall(l, hook, fn)
	}
}

func (*Tracer) safeCall(entry layerEntry, hook func(uint64, any), fn func(Layer)) {
	if hook != nil {
		defer func() {
			if r := recover(); r != nil {
				hook(entry.id, r)
			}
		}()
	}
	fn(entry.layer)
}

// LiveSpans returns the number of open spans.
func (t *Tracer) LiveSpans() int {
	t.reg.spansLock.RLock()
	defer t.reg.spansLock.RUnlock()
	return len(t.reg.spans)
}

// Close shuts down the tracer and cleans up resources.
// This should be called when the tracer is no longer needed.
func (t *Tracer) Close() {
	// Stop new layer callbacks.
	t.reg.layersLock.Lock()
	t.reg.layers = nil
	t.reg.layersLock.Unlock()

	// Close ID pools
	if t.reg.traceIDPool != nil {
		t.reg.traceIDPool.Close()
	}
}
