package treez

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestActiveSpanRecord(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op", F("initial", 1))
	span.Record("status", "ok")
	span.Record("status", "retried")

	if v, ok := span.Field("status"); !ok || v != "retried" {
		t.Errorf("Expected latest status 'retried', got %v", v)
	}
	if v, ok := span.Field("initial"); !ok || v != 1 {
		t.Errorf("Expected initial field, got %v", v)
	}
	if _, ok := span.Field("missing"); ok {
		t.Error("Expected missing field to be absent")
	}

	// Creation fields are what layers see.
	ref, _ := tracer.Span(span.SpanID())
	if len(ref.Fields()) != 1 || ref.Fields()[0].Key != "initial" {
		t.Errorf("Expected creation fields only, got %v", ref.Fields())
	}

	span.Finish()
	span.Record("late", true)
	if _, ok := span.Field("late"); ok {
		t.Error("Expected Record after Finish to be ignored")
	}
}

func TestActiveSpanConcurrentRecord(t *testing.T) {
	tracer := New()
	defer tracer.Close()
	_, span := tracer.StartSpan(context.Background(), "op")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				span.Record("n", j)
				span.Field("n")
			}
		}()
	}
	wg.Wait()
	span.Finish()

	if n := len(span.rec.span.Fields); n != 1000 {
		t.Errorf("Expected 1000 recorded fields, got %d", n)
	}
}

func TestActiveSpanFinishIdempotent(t *testing.T) {
	clock := clockz.NewFakeClock()
	tracer := New().WithClock(clock)
	defer tracer.Close()
	layer := &recordingLayer{}
	tracer.AddLayer(layer)

	_, span := tracer.StartSpan(context.Background(), "op")
	clock.Advance(time.Second)
	span.Finish()
	end := span.rec.span.EndTime
	clock.Advance(time.Second)
	span.Finish()

	if span.rec.span.EndTime != end {
		t.Error("Expected second Finish to keep the end time")
	}
	if got := layer.snapshot(); len(got) != 2 {
		t.Errorf("Expected one open and one close, got %v", got)
	}
}

func TestActiveSpanContext(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op")
	defer span.Finish()

	ctx := span.Context(context.Background())
	if GetSpan(ctx) != span.rec.span {
		t.Error("Expected span in derived context")
	}
	_, child := tracer.StartSpan(ctx, "child")
	defer child.Finish()
	if child.rec.span.ParentID != span.SpanID() {
		t.Error("Expected spans started from the derived context to be children")
	}
}

func TestGetSpanWithoutSpan(t *testing.T) {
	if GetSpan(context.Background()) != nil {
		t.Error("Expected no span in background context")
	}
	//nolint:staticcheck // nil context is tolerated
	if GetSpan(nil) != nil {
		t.Error("Expected no span in nil context")
	}

	type otherKey string
	ctx := context.WithValue(context.Background(), otherKey("treez"), "not a span")
	if GetSpan(ctx) != nil {
		t.Error("Expected foreign context values to be ignored")
	}
}

func TestThreadName(t *testing.T) {
	if _, ok := ThreadName(context.Background()); ok {
		t.Error("Expected no thread name")
	}

	ctx := WithThreadName(context.Background(), "worker-3")
	if name, ok := ThreadName(ctx); !ok || name != "worker-3" {
		t.Errorf("Expected worker-3, got %q", name)
	}

	tracer := New()
	defer tracer.Close()
	spanCtx, span := tracer.StartSpan(ctx, "op")
	defer span.Finish()
	if name, _ := ThreadName(spanCtx); name != "worker-3" {
		t.Errorf("Expected thread name to survive span contexts, got %q", name)
	}
}

func TestSpanRefExtensions(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op")
	defer span.Finish()
	ref, _ := tracer.Span(span.SpanID())

	type key struct{}
	if _, ok := Extension[int](ref, key{}); ok {
		t.Error("Expected empty extensions")
	}

	ref.Extensions().Insert(key{}, 42)
	if v, ok := Extension[int](ref, key{}); !ok || v != 42 {
		t.Errorf("Expected 42, got %v", v)
	}
	if _, ok := Extension[string](ref, key{}); ok {
		t.Error("Expected a type mismatch to miss")
	}
	if _, ok := Extension[int](SpanRef{}, key{}); ok {
		t.Error("Expected the zero SpanRef to have no extensions")
	}
}
