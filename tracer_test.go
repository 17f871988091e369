package treez

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// recordingLayer logs every callback it receives.
type recordingLayer struct {
	calls []string
	mu    sync.Mutex
}

func (r *recordingLayer) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recordingLayer) OnNewSpan(_ context.Context, span SpanRef, _ Lookup) {
	r.add("new %s depth=%d", span.Name(), span.Depth())
}

func (r *recordingLayer) OnEvent(_ context.Context, ev *Event, lookup Lookup) {
	name := "-"
	if span, ok := lookup.Span(ev.Span); ok {
		name = span.Name()
	}
	r.add("event %v in %s", ev.Fields[0].Value, name)
}

func (r *recordingLayer) OnClose(_ context.Context, span SpanRef, lookup Lookup) {
	_, live := lookup.Span(span.ID())
	r.add("close %s live=%t", span.Name(), live)
}

func (r *recordingLayer) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestTracerStartSpanNoParent(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	ctx, span := tracer.StartSpan(context.Background(), "root", F("k", "v"))

	if span.SpanID() == 0 {
		t.Error("Expected non-zero SpanID")
	}
	if len(span.TraceID()) != 32 {
		t.Errorf("Expected 32 hex chars of trace id, got %q", span.TraceID())
	}
	if span.rec.span.ParentID != 0 {
		t.Error("Expected no ParentID for root span")
	}
	if span.rec.span.Level != LevelInfo {
		t.Errorf("Expected INFO span, got %s", span.rec.span.Level)
	}
	if GetSpan(ctx) != span.rec.span {
		t.Error("Expected span to be propagated in context")
	}
	if CurrentSpanID(ctx) != span.SpanID() {
		t.Errorf("Expected current span %d, got %d", span.SpanID(), CurrentSpanID(ctx))
	}
	if CurrentSpanID(context.Background()) != 0 {
		t.Error("Expected no current span in background context")
	}
}

func TestTracerStartSpanWithParent(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	parentCtx, parent := tracer.StartSpan(context.Background(), "parent")
	childCtx, child := tracer.StartSpanLevel(parentCtx, LevelDebug, "child")

	if child.TraceID() != parent.TraceID() {
		t.Errorf("Expected child trace %s, got %s", parent.TraceID(), child.TraceID())
	}
	if child.rec.span.ParentID != parent.SpanID() {
		t.Errorf("Expected parent %d, got %d", parent.SpanID(), child.rec.span.ParentID)
	}

	ref, ok := tracer.Span(CurrentSpanID(childCtx))
	if !ok {
		t.Fatal("Expected child to resolve")
	}
	if ref.Level() != LevelDebug {
		t.Errorf("Expected DEBUG, got %s", ref.Level())
	}
	if p, ok := ref.Parent(); !ok || p.ID() != parent.SpanID() {
		t.Error("Expected parent reference")
	}
	if ref.Depth() != 1 {
		t.Errorf("Expected depth 1, got %d", ref.Depth())
	}
}

func TestTracerSpanIDsUnique(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	const goroutines, spans = 8, 100
	var (
		mu   sync.Mutex
		seen = make(map[SpanID]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < spans; j++ {
				_, span := tracer.StartSpan(context.Background(), "op")
				span.Finish()
				mu.Lock()
				if seen[span.SpanID()] {
					t.Errorf("SpanID %d reused", span.SpanID())
				}
				seen[span.SpanID()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if tracer.LiveSpans() != 0 {
		t.Errorf("Expected no live spans, got %d", tracer.LiveSpans())
	}
}

func TestTracerLayerCallbacks(t *testing.T) {
	tracer := New()
	defer tracer.Close()
	layer := &recordingLayer{}
	tracer.AddLayer(layer)

	ctx, server := tracer.StartSpan(context.Background(), "server")
	connCtx, conn := tracer.StartSpan(ctx, "conn")
	tracer.Info(connCtx, "hello")
	tracer.Info(context.Background(), "outside")
	conn.Finish()
	conn.Finish()
	server.Finish()

	want := []string{
		"new server depth=0",
		"new conn depth=1",
		"event hello in conn",
		"event outside in -",
		"close conn live=true",
		"close server live=true",
	}
	got := layer.snapshot()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected callbacks\n%v\ngot\n%v", want, got)
	}
	if _, ok := tracer.Span(conn.SpanID()); ok {
		t.Error("Expected closed span not to resolve")
	}
}

func TestTracerRemoveLayer(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	first, second := &recordingLayer{}, &recordingLayer{}
	id := tracer.AddLayer(first)
	tracer.AddLayer(second)
	if tracer.AddLayer(nil) != 0 {
		t.Error("Expected nil layer to be ignored")
	}

	tracer.RemoveLayer(id)
	tracer.Info(context.Background(), "after")

	if len(first.snapshot()) != 0 {
		t.Errorf("Removed layer received %v", first.snapshot())
	}
	if len(second.snapshot()) != 1 {
		t.Errorf("Expected one callback, got %v", second.snapshot())
	}
}

type panickingLayer struct{ recordingLayer }

func (*panickingLayer) OnEvent(context.Context, *Event, Lookup) { panic("layer bug") }

func TestTracerPanicHook(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	id := tracer.AddLayer(&panickingLayer{})
	after := &recordingLayer{}
	tracer.AddLayer(after)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("Expected panic without hook")
			}
		}()
		tracer.Info(context.Background(), "boom")
	}()

	var hooked []uint64
	tracer.SetPanicHook(func(layerID uint64, _ any) { hooked = append(hooked, layerID) })
	tracer.Info(context.Background(), "boom")

	if len(hooked) != 1 || hooked[0] != id {
		t.Errorf("Expected hook for layer %d, got %v", id, hooked)
	}
	if len(after.snapshot()) != 1 {
		t.Errorf("Expected later layers to keep running, got %v", after.snapshot())
	}
}

func TestTracerWithTarget(t *testing.T) {
	tracer := New()
	defer tracer.Close()
	layer := &recordingLayer{}
	tracer.AddLayer(layer)

	db := tracer.WithTarget("app::db")
	ctx, span := db.StartSpan(context.Background(), "query")
	defer span.Finish()

	ref, ok := tracer.Span(span.SpanID())
	if !ok {
		t.Fatal("Expected target view to share the registry")
	}
	if ref.Target() != "app::db" || db.Target() != "app::db" {
		t.Errorf("Expected target app::db, got %q", ref.Target())
	}

	var got *Event
	tracer.AddLayer(eventFunc(func(ev *Event) { got = ev }))
	db.Warn(ctx, "slow", F("ms", 900))
	if got == nil || got.Target != "app::db" || got.Level != LevelWarn || got.Span != span.SpanID() {
		t.Errorf("Unexpected event %+v", got)
	}
	if len(got.Fields) != 2 || got.Fields[0].Key != MessageKey {
		t.Errorf("Expected message field first, got %v", got.Fields)
	}
}

// eventFunc is a layer that only observes events.
type eventFunc func(*Event)

func (eventFunc) OnNewSpan(context.Context, SpanRef, Lookup) {}

func (f eventFunc) OnEvent(_ context.Context, ev *Event, _ Lookup) { f(ev) }

func (eventFunc) OnClose(context.Context, SpanRef, Lookup) {}

func TestTracerPathSurvivesClosedAncestor(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	ctx, parent := tracer.StartSpan(context.Background(), "parent")
	childCtx, child := tracer.StartSpan(ctx, "child")
	defer child.Finish()
	parent.Finish()

	ref, ok := tracer.Span(CurrentSpanID(childCtx))
	if !ok {
		t.Fatal("Expected child to resolve")
	}
	path := ref.Path()
	if len(path) != 2 || path[0].Name() != "parent" || path[1].Name() != "child" {
		t.Errorf("Unexpected path %v", path)
	}
	if _, ok := tracer.Span(parent.SpanID()); ok {
		t.Error("Expected closed parent not to resolve")
	}
}

func TestTracerClose(t *testing.T) {
	tracer := New()
	layer := &recordingLayer{}
	tracer.AddLayer(layer)
	_, early := tracer.StartSpan(context.Background(), "early")
	tracer.Close()
	early.Finish()
	if len(layer.snapshot()) != 1 {
		t.Errorf("Expected only the open callback, got %v", layer.snapshot())
	}
	layer.calls = nil

	_, span := tracer.StartSpan(context.Background(), "late")
	span.Finish()
	if len(layer.snapshot()) != 0 {
		t.Errorf("Expected no callbacks after Close, got %v", layer.snapshot())
	}
	if span.TraceID() == "" {
		t.Error("Expected trace id after Close")
	}
}

func TestTracerWithFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := clockz.NewFakeClockAt(start)
	tracer := New().WithClock(clock)
	defer tracer.Close()

	if tracer.Clock() != clock {
		t.Error("Expected injected clock")
	}

	_, span := tracer.StartSpan(context.Background(), "op")
	clock.Advance(100 * time.Millisecond)
	span.Finish()

	if span.rec.span.StartTime != start {
		t.Errorf("Expected start %v, got %v", start, span.rec.span.StartTime)
	}
	if span.rec.span.Duration != 100*time.Millisecond {
		t.Errorf("Expected duration 100ms, got %v", span.rec.span.Duration)
	}
}
