package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes used as the "outcome" label
const (
	OutcomeSuccess = "success"
	OutcomeNetwork = "network"
	OutcomeHTTP    = "http"
	OutcomeParse   = "parse"
)

// Reasons a fetch result is dropped without touching the view state
const (
	DiscardSuperseded = "superseded"
	DiscardInactive   = "inactive"
)

// Trigger labels for issued fetches
const (
	TriggerStart      = "start"
	TriggerTick       = "tick"
	TriggerRetry      = "retry"
	TriggerBaseChange = "base_change"
)

// RatesMetrics holds the client and poller metrics
type RatesMetrics struct {
	FetchTotal     *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	FetchesIssued  *prometheus.CounterVec
	ResultsDropped *prometheus.CounterVec
	TicksSkipped   prometheus.Counter
	SnapshotAge    prometheus.Gauge
	SourcesUsed    prometheus.Gauge
	ViewStatus     *prometheus.GaugeVec
}

// NewRatesMetrics registers all metrics on registerer
func NewRatesMetrics(registerer prometheus.Registerer) *RatesMetrics {
	factory := promauto.With(registerer)

	return &RatesMetrics{
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratewatch_fetch_total",
				Help: "Backend rate fetches by base currency and outcome",
			},
			[]string{"base", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratewatch_fetch_duration_seconds",
				Help:    "Latency of backend rate fetches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		FetchesIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratewatch_fetches_issued_total",
				Help: "Fetches issued by the poller, by trigger",
			},
			[]string{"trigger"},
		),
		ResultsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratewatch_results_dropped_total",
				Help: "Fetch results ignored because a newer fetch was issued or the poller stopped",
			},
			[]string{"reason"},
		),
		TicksSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ratewatch_ticks_skipped_total",
				Help: "Refresh ticks skipped because a fetch was already in flight",
			},
		),
		SnapshotAge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratewatch_snapshot_age_seconds",
				Help: "Age of the displayed snapshot's last_updated at the time it was applied",
			},
		),
		SourcesUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratewatch_sources_used",
				Help: "Upstream sources the backend aggregated for the displayed snapshot",
			},
		),
		ViewStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratewatch_view_status",
				Help: "1 for the poller's current view status, 0 otherwise",
			},
			[]string{"status"},
		),
	}
}

// ObserveFetch records one completed backend call
func (m *RatesMetrics) ObserveFetch(base, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(base, outcome).Inc()
	m.FetchDuration.WithLabelValues(outcome).Observe(seconds)
}

// FetchIssued records a fetch started by the poller
func (m *RatesMetrics) FetchIssued(trigger string) {
	if m == nil {
		return
	}
	m.FetchesIssued.WithLabelValues(trigger).Inc()
}

// ResultDropped records a fetch result that was not applied
func (m *RatesMetrics) ResultDropped(reason string) {
	if m == nil {
		return
	}
	m.ResultsDropped.WithLabelValues(reason).Inc()
}

// TickSkipped records a tick that found a fetch in flight
func (m *RatesMetrics) TickSkipped() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

// SnapshotApplied records gauges for a newly displayed snapshot
func (m *RatesMetrics) SnapshotApplied(ageSeconds float64, sourcesUsed int) {
	if m == nil {
		return
	}
	m.SnapshotAge.Set(ageSeconds)
	m.SourcesUsed.Set(float64(sourcesUsed))
}

// SetStatus marks status as the only active view status
func (m *RatesMetrics) SetStatus(status string, all []string) {
	if m == nil {
		return
	}
	for _, candidate := range all {
		value := 0.0
		if candidate == status {
			value = 1
		}
		m.ViewStatus.WithLabelValues(candidate).Set(value)
	}
}
