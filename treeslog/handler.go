/*
Package treeslog routes log/slog records into a treez.Tracer, so that they
are rendered as events of the span found in the record's context.

	tracer := treez.New()
	tracer.AddLayer(treez.MustNewLayer(treez.DefaultConfig()))
	logger := slog.New(treeslog.NewHandler(tracer))

	ctx, span := tracer.StartSpan(ctx, "request")
	logger.InfoContext(ctx, "handled", "status", 200)
	span.Finish()

Attributes added with Logger.With become fields of every event; groups
prefix the keys of the fields inside them with "group.".

slog levels map onto treez levels by range: below Debug is TRACE, below Info
is DEBUG, below Warn is INFO, below Error is WARN and anything else is ERROR.
*/
package treeslog

import (
	"context"
	"log/slog"

	"github.com/zoobzio/treez"
)

// Option configures a Handler.
type Option func(*Handler)

// WithLevel drops records below level. By default every record is passed on
// and level filtering is left to the layers.
func WithLevel(level slog.Leveler) Option {
	return func(h *Handler) { h.level = level }
}

// WithTarget sets the target of the events. Defaults to the tracer's target.
func WithTarget(target string) Option {
	return func(h *Handler) { h.target = target }
}

// Handler is a slog.Handler emitting treez events.
type Handler struct {
	tracer *treez.Tracer
	level  slog.Leveler
	target string
	attrs  []treez.Field
	group  string
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a handler emitting into tracer.
func NewHandler(tracer *treez.Tracer, opts ...Option) *Handler {
	h := &Handler{
		tracer: tracer,
		level:  slog.LevelDebug - 4,
		target: tracer.Target(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	fields := make([]treez.Field, 0, 1+len(h.attrs)+r.NumAttrs())
	if r.Message != "" {
		fields = append(fields, treez.F(treez.MessageKey, r.Message))
	}
	fields = append(fields, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.group, a)
		return true
	})

	h.tracer.Emit(ctx, &treez.Event{
		Time:   r.Time,
		Level:  Level(r.Level),
		Target: h.target,
		Fields: fields,
		Span:   treez.CurrentSpanID(ctx),
	})
	return nil
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	for _, a := range attrs {
		h2.attrs = appendAttr(h2.attrs, h.group, a)
	}
	return h2
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.group = prefixed(h.group, name)
	return h2
}

func (h *Handler) clone() *Handler {
	h2 := *h
	h2.attrs = append([]treez.Field(nil), h.attrs...)
	return &h2
}

// Level maps a slog level to a treez level.
func Level(l slog.Level) treez.Level {
	switch {
	case l < slog.LevelDebug:
		return treez.LevelTrace
	case l < slog.LevelInfo:
		return treez.LevelDebug
	case l < slog.LevelWarn:
		return treez.LevelInfo
	case l < slog.LevelError:
		return treez.LevelWarn
	default:
		return treez.LevelError
	}
}

// appendAttr flattens a into fields. Empty attributes are dropped and groups
// without a key are inlined, as slog handlers are expected to.
func appendAttr(fields []treez.Field, group string, a slog.Attr) []treez.Field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := group
		if a.Key != "" {
			sub = prefixed(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			fields = appendAttr(fields, sub, ga)
		}
		return fields
	}
	return append(fields, treez.F(prefixed(group, a.Key), a.Value.Any()))
}

func prefixed(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}
