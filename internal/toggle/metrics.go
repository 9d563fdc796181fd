package toggle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/desertthunder/scorebook/internal/models"
)

// Metrics are the Prometheus collectors of a [Controller]. A nil *Metrics records nothing.
type Metrics struct {
	toggles       *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inflight      *prometheus.GaugeVec
	reads         *prometheus.CounterVec
	droppedEvents prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scorebook",
			Subsystem: "toggle",
			Name:      "settled_total",
			Help:      "Toggles by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scorebook",
			Subsystem: "toggle",
			Name:      "round_trip_seconds",
			Help:      "Time from request start to settlement.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scorebook",
			Subsystem: "toggle",
			Name:      "inflight",
			Help:      "Toggles currently awaiting the server.",
		}, []string{"kind"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scorebook",
			Subsystem: "status",
			Name:      "reads_total",
			Help:      "Status reads by kind and cache result (fresh, stale, miss).",
		}, []string{"kind", "result"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scorebook",
			Subsystem: "toggle",
			Name:      "dropped_events_total",
			Help:      "Events dropped because no reader kept up.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.toggles, m.duration, m.inflight, m.reads, m.droppedEvents)
	}
	return m
}

func (m *Metrics) started(kind models.Kind) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(string(kind)).Inc()
}

// settled records an outcome; ran is false for toggles dropped before their request started.
func (m *Metrics) settled(kind models.Kind, outcome models.Outcome, elapsed time.Duration, ran bool) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(string(kind), string(outcome)).Inc()
	if ran {
		m.inflight.WithLabelValues(string(kind)).Dec()
		m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) read(kind models.Kind, result string) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}
