package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the polling scheduler.
type Metrics struct {
	FetchesTotal      *prometheus.CounterVec
	FetchSeconds      *prometheus.HistogramVec
	SegmentsTotal     *prometheus.CounterVec
	Segments          prometheus.Gauge
	StateTransitions  *prometheus.CounterVec
	SkippedTicksTotal prometheus.Counter
	StaleResultsTotal prometheus.Counter
}

// DefaultMetrics registers the collectors with the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates the scheduler metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vexa_poller_fetches_total",
				Help: "Transcript fetches by mode and result",
			},
			[]string{"mode", "result"},
		),
		FetchSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vexa_poller_fetch_seconds",
				Help:    "Transcript fetch latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.8, 1, 2, 5, 10},
			},
			[]string{"mode"},
		),
		SegmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vexa_poller_segments_total",
				Help: "Segments reconciled by change kind",
			},
			[]string{"change"},
		),
		Segments: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vexa_poller_segments",
				Help: "Segments currently displayed",
			},
		),
		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vexa_poller_state_transitions_total",
				Help: "Scheduler state transitions by target state",
			},
			[]string{"state"},
		),
		SkippedTicksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vexa_poller_skipped_ticks_total",
				Help: "Ticks skipped because a fetch was still outstanding",
			},
		),
		StaleResultsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vexa_poller_stale_results_total",
				Help: "Fetch results discarded because the session had changed",
			},
		),
	}
}

// RecordFetch records a completed fetch.
func (m *Metrics) RecordFetch(mode Mode, ok bool, seconds float64) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.FetchesTotal.WithLabelValues(mode.String(), result).Inc()
	m.FetchSeconds.WithLabelValues(mode.String()).Observe(seconds)
}

// RecordReconcile records the outcome of one reconciliation pass.
func (m *Metrics) RecordReconcile(added, updated, total int) {
	m.SegmentsTotal.WithLabelValues("added").Add(float64(added))
	m.SegmentsTotal.WithLabelValues("updated").Add(float64(updated))
	m.Segments.Set(float64(total))
}

// RecordState records a transition into state.
func (m *Metrics) RecordState(state State) {
	m.StateTransitions.WithLabelValues(state.String()).Inc()
}
