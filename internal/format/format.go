// Package format draws the tree: it indents one rendered unit (a span banner
// or an event line) and decorates it with box-drawing glyphs.
package format

import (
	"io"
	"strings"
)

const (
	lineVert   = "│"
	lineHoriz  = "─"
	lineBranch = "├"
	lineClose  = "┘"
	lineClose2 = "┌"
	lineOpen   = "┐"
	lineOpen2  = "└"
)

// Kind is the reason a unit is being printed.
type Kind uint8

const (
	// PreOpen re-shows a parent because one of its children is being entered.
	PreOpen Kind = iota
	// Open is the first banner of a span.
	Open
	// Retrace re-shows a span that was printed before and is back in focus.
	Retrace
	// Close is the banner printed when a span is closed.
	Close
	// PostClose re-shows a parent after one of its children closed.
	PostClose
	// Event is a leaf line.
	Event
)

// SpanMode selects the connector glyphs of a unit.
type SpanMode struct {
	Kind    Kind
	Verbose bool
}

// String returns the label printed in front of banners when span modes are
// enabled.
func (m SpanMode) String() string {
	var s string
	switch m.Kind {
	case PreOpen:
		return "pre_open"
	case PostClose:
		return "post_close"
	case Event:
		return "event"
	case Open:
		s = "open"
	case Retrace:
		s = "retrace"
	case Close:
		s = "close"
	default:
		return "unknown"
	}
	if m.Verbose {
		s += "(v)"
	}
	return s
}

func (m SpanMode) opens() bool {
	return m.Kind == PreOpen || m.Kind == Open || m.Kind == Retrace
}

func (m SpanMode) closes() bool {
	return m.Kind == Close || m.Kind == PostClose
}

// Options are the rendering parameters shared by every unit of a layer.
type Options struct {
	// Prefix is written in front of every physical line (thread id/name).
	Prefix string
	// IndentAmount is the width of one indentation level. Must be positive.
	IndentAmount int
	// Wraparound resets the indentation to zero every Wraparound levels.
	// Zero means unbounded.
	Wraparound int
	// IndentLines draws a box-drawing tree instead of plain whitespace.
	IndentLines bool
}

// EffectiveDepth returns depth modulo the wraparound.
func (o Options) EffectiveDepth(depth int) int {
	if o.Wraparound > 0 {
		return depth % o.Wraparound
	}
	return depth
}

// wraps reports whether a wrap marker belongs next to a unit at depth. Markers
// are only drawn in box-drawing mode; whitespace mode just resets.
func (o Options) wraps(depth int) bool {
	return o.IndentLines && o.Wraparound > 0 && depth > 0 && (depth+1)%o.Wraparound == 0
}

// Buffers is the pair of scratch buffers a layer composes into. Current holds
// the unit being composed; the indent buffer stages its decorated form.
type Buffers struct {
	Current strings.Builder
	indent  strings.Builder
}

// IndentCurrent replaces the contents of Current with their indented,
// decorated rendering at depth. In box-drawing mode a wrap marker is added
// before closing units and after opening units that sit on a wrap boundary.
func (b *Buffers) IndentCurrent(depth int, opts Options, mode SpanMode) {
	eff := opts.EffectiveDepth(depth)
	wrap := opts.wraps(depth)

	if wrap && mode.closes() {
		b.indent.WriteString(opts.Prefix)
		repeat(&b.indent, lineHoriz, eff*opts.IndentAmount)
		b.indent.WriteString(lineOpen)
		b.indent.WriteByte('\n')
	}

	IndentBlock(b.Current.String(), &b.indent, eff, opts, mode)
	b.Current.Reset()
	b.flushIndent()

	if wrap && mode.opens() {
		b.Current.WriteString(opts.Prefix)
		repeat(&b.Current, lineHoriz, eff*opts.IndentAmount)
		b.Current.WriteString(lineClose)
		b.Current.WriteByte('\n')
	}
}

func (b *Buffers) flushIndent() {
	b.Current.WriteString(b.indent.String())
	b.indent.Reset()
}

// FlushCurrent writes Current to w with a single Write call and clears it.
// The buffer is cleared even if the write fails.
func (b *Buffers) FlushCurrent(w io.Writer) error {
	defer b.Current.Reset()
	if b.Current.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(w, b.Current.String())
	return err
}

// Discard drops anything composed so far.
func (b *Buffers) Discard() {
	b.Current.Reset()
	b.indent.Reset()
}

// IndentBlock appends block, split into lines, to buf with the indentation of
// depth. depth must already be reduced by the wraparound.
func IndentBlock(block string, buf *strings.Builder, depth int, opts Options, mode SpanMode) {
	lines := splitLines(block)
	if len(lines) == 0 {
		return
	}
	if opts.IndentLines {
		indentBlockWithLines(lines, buf, depth, opts.IndentAmount, opts.Prefix, mode)
		return
	}
	indent := strings.Repeat(" ", depth*opts.IndentAmount)
	for _, line := range lines {
		buf.WriteString(opts.Prefix)
		buf.WriteString(indent)
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
}

func indentBlockWithLines(lines []string, buf *strings.Builder, depth, amount int, prefix string, mode SpanMode) {
	spaces := depth * amount

	// Depth zero only gets the bracket glyph, there is nothing to connect to.
	if spaces == 0 {
		for i, line := range lines {
			buf.WriteString(prefix)
			if i == 0 {
				switch mode.Kind {
				case Open, Retrace:
					buf.WriteString(lineOpen)
				case Close:
					buf.WriteString(lineClose)
				}
			}
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		return
	}

	// A vertical line at every level up until the last one.
	var s strings.Builder
	s.WriteString(prefix)
	for i := 0; i < spaces-amount; i++ {
		if i%amount == 0 {
			s.WriteString(lineVert)
		} else {
			s.WriteByte(' ')
		}
	}

	buf.WriteString(s.String())
	switch {
	case mode.Kind == PreOpen:
		buf.WriteString(lineBranch)
		repeat(buf, lineHoriz, amount/2-1)
		buf.WriteString(lineOpen)
	case mode.Kind == PostClose:
		buf.WriteString(lineBranch)
		repeat(buf, lineHoriz, amount/2-1)
		buf.WriteString(lineClose)
	case mode.Kind == Event:
		buf.WriteString(lineBranch)
		repeat(buf, lineHoriz, amount-1)
	case mode.Verbose:
		corner, bracket := lineOpen2, lineOpen
		if mode.Kind == Close {
			corner, bracket = lineClose2, lineClose
		}
		buf.WriteString(lineVert)
		repeat(buf, " ", amount/2-1)
		// A single column has no room for the corner and fill.
		if amount > 1 {
			buf.WriteString(corner)
		}
		repeat(buf, lineHoriz, amount-1-amount/2)
		if amount > 1 {
			buf.WriteString(bracket)
		} else {
			buf.WriteString(lineVert)
		}
	default:
		bracket := lineOpen
		if mode.Kind == Close {
			bracket = lineClose
		}
		buf.WriteString(lineBranch)
		repeat(buf, lineHoriz, amount-1)
		buf.WriteString(bracket)
	}
	buf.WriteString(lines[0])
	buf.WriteByte('\n')

	// Continuation lines only get the vertical bar of their own level.
	s.WriteString(lineVert)
	repeat(&s, " ", amount-1)
	for _, line := range lines[1:] {
		buf.WriteString(s.String())
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
}

func splitLines(block string) []string {
	block = strings.TrimSuffix(block, "\n")
	if block == "" {
		return nil
	}
	return strings.Split(block, "\n")
}

func repeat(buf *strings.Builder, s string, n int) {
	for i := 0; i < n; i++ {
		buf.WriteString(s)
	}
}
