package treez

import (
	"context"
	"io"
	"testing"
)

func BenchmarkTracer(b *testing.B) {
	tracer := New()
	defer tracer.Close()
	ctx := context.Background()

	b.Run("no-layers", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			spanCtx, span := tracer.StartSpan(ctx, "op", F("key", "value"))
			tracer.Info(spanCtx, "event", F("n", i))
			span.Finish()
		}
	})

	cfg := DefaultConfig()
	cfg.MakeWriter = func() io.Writer { return io.Discard }
	cfg.ANSI = false

	for _, bc := range []struct {
		name      string
		configure func(*Config)
	}{
		{"whitespace", func(*Config) {}},
		{"lines", func(c *Config) { c.IndentLines = true }},
		{"retrace", func(c *Config) { c.IndentLines, c.SpanRetrace = true, true }},
		{"deferred", func(c *Config) { c.DeferredSpans = true }},
	} {
		b.Run(bc.name, func(b *testing.B) {
			tracer := New()
			defer tracer.Close()
			c := cfg
			bc.configure(&c)
			tracer.AddLayer(MustNewLayer(c))

			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				spanCtx, span := tracer.StartSpan(ctx, "op", F("key", "value"))
				tracer.Info(spanCtx, "event", F("n", i))
				span.Finish()
			}
		})
	}
}

func TestTracerWithoutLayers(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	ctx, span := tracer.StartSpan(context.Background(), "op")
	tracer.Info(ctx, "nobody listens")
	span.Finish()

	if tracer.LiveSpans() != 0 {
		t.Errorf("Expected no live spans, got %d", tracer.LiveSpans())
	}
	if span.rec.span.EndTime.IsZero() {
		t.Error("Expected span to be finished")
	}
}
