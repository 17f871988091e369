package treez

import (
	"time"

	"github.com/zoobzio/treez/internal/invariants"
)

// dataKey keys a layer's SpanData in the span extensions. Each layer owns
// its own key so several layers can render the same tracer.
type dataKey struct {
	layer *HierarchicalLayer
}

// renderedField is a field whose value was formatted when it was captured.
type renderedField struct {
	key   string
	value string
}

// SpanData is what a HierarchicalLayer remembers about a live span.
type SpanData struct {
	start   time.Time
	fields  []renderedField
	written bool
}

// newSpanData captures fields in creation order. written starts false for
// deferred spans.
func newSpanData(start time.Time, fields []Field, written bool) *SpanData {
	d := &SpanData{
		start:   start,
		fields:  make([]renderedField, 0, len(fields)),
		written: written,
	}
	for _, f := range fields {
		d.fields = append(d.fields, renderedField{key: f.Key, value: formatField(f)})
	}
	return d
}

// markWritten flags the span as printed and returns the previous flag.
func (d *SpanData) markWritten() bool {
	prev := d.written
	d.written = true
	return prev
}

// Written reports whether the span's banner was printed.
func (d *SpanData) Written() bool { return d.written }

// Start returns the time elapsed durations inside the span are measured from.
func (d *SpanData) Start() time.Time { return d.start }

// spanData returns the data this layer attached to span. A span without data
// was created before the layer was added, or the host skipped OnNewSpan.
func (l *HierarchicalLayer) spanData(span SpanRef) (*SpanData, bool) {
	d, ok := Extension[*SpanData](span, l.key)
	if !ok {
		_ = invariants.Violation("span %d (%s) has no data for this layer", span.ID(), span.Name())
		return nil, false
	}
	return d, true
}
