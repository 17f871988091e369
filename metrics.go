package treez

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/treez/internal/format"
)

// Metrics counts what a layer renders. A nil *Metrics counts nothing.
type Metrics struct {
	LinesWritten  *prometheus.CounterVec
	SpansRetraced *prometheus.CounterVec
	EventsDropped prometheus.Counter
	WriteErrors   prometheus.Counter
}

// NewMetrics creates the layer counters and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treez",
			Name:      "lines_written_total",
			Help:      "Rendered units flushed to the sink, by span mode.",
		}, []string{"mode"}),
		SpansRetraced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treez",
			Name:      "spans_retraced_total",
			Help:      "Span banners printed while reconciling the ancestor path, by mode.",
		}, []string{"mode"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treez",
			Name:      "events_dropped_total",
			Help:      "Callbacks dropped because the goroutine was already rendering.",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treez",
			Name:      "write_errors_total",
			Help:      "Failed writes to the sink.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.LinesWritten, m.SpansRetraced, m.EventsDropped, m.WriteErrors)
	}
	return m
}

func (m *Metrics) lineWritten(mode format.SpanMode) {
	if m != nil {
		m.LinesWritten.WithLabelValues(mode.String()).Inc()
	}
}

func (m *Metrics) spanRetraced(mode format.SpanMode) {
	if m != nil {
		m.SpansRetraced.WithLabelValues(mode.String()).Inc()
	}
}

func (m *Metrics) eventDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}

func (m *Metrics) writeError() {
	if m != nil {
		m.WriteErrors.Inc()
	}
}
