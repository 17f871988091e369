package treez

import (
	"github.com/zoobzio/treez/internal/format"
)

// retrace moves the focus of the rendering from the last emitted span to
// span, re-printing the ancestors of span that the reader cannot see above
// the next line. When entering, span itself is new and renders as Open.
//
// preOpen prints the parent of the first re-printed span for context.
func (l *HierarchicalLayer) retrace(r *run, span SpanRef, lookup Lookup, preOpen, entering bool) {
	prev := l.lastEmitted
	l.lastEmitted = span.ID()
	if prev == span.ID() {
		return
	}

	var from []SpanRef
	if prev != 0 {
		if p, ok := lookup.Span(prev); ok {
			from = p.Path()
		}
	}
	to := span.Path()

	for i, s := range to[divergence(from, to):] {
		data, ok := l.spanData(s)
		if !ok {
			continue
		}

		verbose := false
		if i == 0 && preOpen {
			if parent, ok := s.Parent(); ok {
				l.writeSpan(r, parent, format.SpanMode{Kind: format.PreOpen})
				verbose = true
			}
		}

		kind := format.Retrace
		if entering && s.rec == span.rec {
			kind = format.Open
		}
		if !data.markWritten() {
			kind = format.Open
		}

		mode := format.SpanMode{Kind: kind, Verbose: verbose}
		if kind == format.Retrace {
			l.cfg.Metrics.spanRetraced(mode)
		}
		l.writeSpan(r, s, mode)
	}
}

// divergence returns the length of the common prefix of two root paths.
func divergence(prev, next []SpanRef) int {
	n := 0
	for n < len(prev) && n < len(next) && prev[n].rec == next[n].rec {
		n++
	}
	return n
}
