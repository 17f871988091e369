package treez

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/muesli/termenv"

	"github.com/zoobzio/treez/internal/format"
	"github.com/zoobzio/treez/internal/goid"
)

// HierarchicalLayer renders spans and events as a tree.
//
// All rendering state is guarded by one mutex, held for the whole of a
// callback: reconciling the ancestor path and writing the lines it produces
// must not interleave with another goroutine doing the same.
type HierarchicalLayer struct {
	cfg  Config
	opts format.Options
	key  dataKey

	mu          sync.Mutex
	bufs        format.Buffers
	lastEmitted SpanID // span whose banner or event line was written last

	// Goroutines currently inside a callback. A nested callback on the same
	// goroutine (a sink that logs) is dropped instead of deadlocking.
	rendering sync.Map
}

var _ Layer = (*HierarchicalLayer)(nil)

// NewLayer creates a layer rendering with cfg.
func NewLayer(cfg Config) (*HierarchicalLayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &HierarchicalLayer{
		cfg: cfg.withDefaults(),
		opts: format.Options{
			IndentAmount: cfg.IndentAmount,
			Wraparound:   cfg.Wraparound,
			IndentLines:  cfg.IndentLines,
		},
	}
	l.key = dataKey{layer: l}
	return l, nil
}

// MustNewLayer is NewLayer for configurations known to be valid.
func MustNewLayer(cfg Config) *HierarchicalLayer {
	l, err := NewLayer(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// Config returns the layer's configuration.
func (l *HierarchicalLayer) Config() Config {
	return l.cfg
}

// OnNewSpan implements Layer.
func (l *HierarchicalLayer) OnNewSpan(ctx context.Context, span SpanRef, lookup Lookup) {
	// Data is attached even when the callback is dropped below, later
	// callbacks for the span depend on it.
	if _, ok := Extension[*SpanData](span, l.key); !ok {
		span.Extensions().Insert(l.key, newSpanData(l.spanStart(span), span.Fields(), !l.cfg.DeferredSpans))
	}

	// Printed by the first event inside the span.
	if l.cfg.DeferredSpans {
		return
	}

	l.callback(ctx, func(r *run) {
		if l.cfg.SpanRetrace {
			l.retrace(r, span, lookup, l.cfg.VerboseEntry, true)
			return
		}

		if parent, ok := span.Parent(); ok && l.cfg.VerboseEntry {
			l.writeSpan(r, parent, format.SpanMode{Kind: format.PreOpen})
		}
		l.lastEmitted = span.ID()
		l.writeSpan(r, span, format.SpanMode{Kind: format.Open, Verbose: l.cfg.VerboseEntry})
	})
}

// OnEvent implements Layer.
func (l *HierarchicalLayer) OnEvent(ctx context.Context, ev *Event, lookup Lookup) {
	if ev.Level < l.cfg.MinLevel {
		return
	}

	l.callback(ctx, func(r *run) {
		var span SpanRef
		inSpan := false
		if ev.Span != 0 {
			span, inSpan = lookup.Span(ev.Span)
		}

		if inSpan && (l.cfg.SpanRetrace || l.cfg.DeferredSpans) {
			l.retrace(r, span, lookup, l.cfg.VerboseRetrace, false)
		}

		depth := 0
		timing := Timing{Now: ev.Time}
		if timing.Now.IsZero() {
			timing.Now = l.cfg.Clock.Now()
		}
		if inSpan {
			depth = span.Depth() + 1
			if data, ok := l.spanData(span); ok {
				timing.Elapsed = timing.Now.Sub(data.start)
				timing.InSpan = true
			}
		}
		l.writeEvent(ev, timing)
		l.flush(r, depth, format.SpanMode{Kind: format.Event})
	})
}

// OnClose implements Layer.
func (l *HierarchicalLayer) OnClose(ctx context.Context, span SpanRef, _ Lookup) {
	l.callback(ctx, func(r *run) {
		// A deferred span that was never printed closes silently.
		if l.cfg.DeferredSpans {
			data, ok := Extension[*SpanData](span, l.key)
			if !ok || !data.written {
				return
			}
		}

		l.writeSpan(r, span, format.SpanMode{Kind: format.Close, Verbose: l.cfg.VerboseExit})

		parent, ok := span.Parent()
		if !ok {
			l.lastEmitted = 0
			return
		}
		// The parent is in focus again.
		l.lastEmitted = parent.ID()
		if l.cfg.VerboseExit {
			l.writeSpan(r, parent, format.SpanMode{Kind: format.PostClose})
		}
	})
}

// spanStart is the time elapsed durations are measured from. Events are
// stamped by the tracer's clock, so the span's own start time is used.
func (l *HierarchicalLayer) spanStart(span SpanRef) time.Time {
	if start := span.StartTime(); !start.IsZero() {
		return start
	}
	return l.cfg.Clock.Now()
}

// run carries the state of one callback.
type run struct {
	err    error
	prefix string
}

// callback runs fn with the layer locked, unless the calling goroutine is
// already inside a callback of this layer.
func (l *HierarchicalLayer) callback(ctx context.Context, fn func(r *run)) {
	id := goid.Get()
	if _, busy := l.rendering.LoadOrStore(id, struct{}{}); busy {
		l.cfg.Metrics.eventDropped()
		return
	}
	defer l.rendering.Delete(id)

	if err := l.locked(ctx, fn); err != nil {
		l.cfg.OnError(err)
	}
}

func (l *HierarchicalLayer) locked(ctx context.Context, fn func(r *run)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	// A panic mid-line must not leave text for the next unit.
	defer func() {
		if p := recover(); p != nil {
			l.bufs.Discard()
			panic(p)
		}
	}()

	r := &run{prefix: l.prefix(ctx)}
	fn(r)
	return r.err
}

// prefix renders the thread id and name put in front of every line.
func (l *HierarchicalLayer) prefix(ctx context.Context) string {
	var b strings.Builder
	if l.cfg.ThreadIDs {
		b.WriteString(strconv.FormatUint(goid.Get(), 10))
	}
	if l.cfg.ThreadNames {
		if name, ok := ThreadName(ctx); ok {
			if b.Len() > 0 {
				b.WriteByte(':')
			}
			b.WriteString(name)
		}
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	return b.String()
}

// writeSpan composes and flushes the banner of span.
func (l *HierarchicalLayer) writeSpan(r *run, span SpanRef, mode format.SpanMode) {
	data, ok := l.spanData(span)
	if !ok {
		return
	}

	buf := &l.bufs.Current
	if l.cfg.SpanModes {
		buf.WriteString(mode.String())
		buf.WriteString(": ")
	}
	if l.cfg.Targets && span.Target() != "" {
		buf.WriteString(l.styled(span.Target(), termenv.Style.Faint))
		buf.WriteString("::")
	}
	buf.WriteString(l.styled(span.Name(), nameStyle))
	switch {
	case l.cfg.BracketedFields:
		buf.WriteString(l.styled("{", nameStyle))
		writeKVs(buf, data.fields)
		buf.WriteString(l.styled("}", nameStyle))
	case len(data.fields) > 0:
		buf.WriteByte(' ')
		writeKVs(buf, data.fields)
	}

	l.flush(r, span.Depth(), mode)
}

// writeEvent composes an event line into the current buffer.
func (l *HierarchicalLayer) writeEvent(ev *Event, timing Timing) {
	buf := &l.bufs.Current
	for _, tf := range []TimeFormat{l.cfg.Timer, l.cfg.Elapsed} {
		if s := tf.FormatTime(timing); s != "" {
			buf.WriteString(l.styled(s, termenv.Style.Faint))
			buf.WriteByte(' ')
		}
	}

	level := fmt.Sprintf("%5s", ev.Level)
	buf.WriteString(l.styled(level, func(s termenv.Style) termenv.Style {
		return s.Foreground(ev.Level.color()).Bold()
	}))

	if l.cfg.Targets && ev.Target != "" {
		buf.WriteByte(' ')
		buf.WriteString(l.styled(ev.Target, termenv.Style.Faint))
	}

	if len(ev.Fields) > 0 {
		fields := make([]renderedField, len(ev.Fields))
		for i, f := range ev.Fields {
			fields[i] = renderedField{key: f.Key, value: formatField(f)}
		}
		buf.WriteByte(' ')
		writeKVs(buf, fields)
	}
}

// flush indents the current buffer for depth and writes it to the sink. After
// the first failure of a callback nothing else is written.
func (l *HierarchicalLayer) flush(r *run, depth int, mode format.SpanMode) {
	if r.err != nil {
		l.bufs.Discard()
		return
	}

	opts := l.opts
	opts.Prefix = r.prefix
	l.bufs.IndentCurrent(depth, opts, mode)
	if err := l.bufs.FlushCurrent(l.cfg.MakeWriter()); err != nil {
		l.cfg.Metrics.writeError()
		r.err = errors.Wrapf(err, "treez: writing %s line", mode)
		return
	}
	l.cfg.Metrics.lineWritten(mode)
}

func nameStyle(s termenv.Style) termenv.Style {
	return s.Foreground(termenv.ANSIGreen).Bold()
}

func (l *HierarchicalLayer) styled(text string, style func(termenv.Style) termenv.Style) string {
	if !l.cfg.ANSI {
		return text
	}
	return style(termenv.String(text)).String()
}
