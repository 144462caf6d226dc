package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aq_dashboard"

// Metrics holds the Prometheus counters, histograms, and gauges for dataset loading and selection.
type Metrics struct {
	// Load metrics.
	Loads          *prometheus.CounterVec   // labels: dataset, outcome={success,source_unavailable,schema_mismatch,error}
	LoadDuration   *prometheus.HistogramVec // labels: dataset
	FetchDuration  *prometheus.HistogramVec // labels: kind={http,file}
	MalformedCells *prometheus.CounterVec   // labels: dataset
	Records        *prometheus.GaugeVec     // labels: dataset

	// Cache and selection metrics.
	Cache      *prometheus.CounterVec // labels: result={hit,miss,shared}
	Selections *prometheus.CounterVec // labels: kind={options,series,trends,total,breakdown}, outcome={success,insufficient,error}

	SnapshotMessages *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Loads,
		m.LoadDuration,
		m.FetchDuration,
		m.MalformedCells,
		m.Records,
		m.Cache,
		m.Selections,
		m.SnapshotMessages,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Dataset loads by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-concat load.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"dataset"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of a single source fetch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		MalformedCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_cells_total",
			Help:      "Value cells that failed numeric parsing and were treated as missing.",
		}, []string{"dataset"}),
		Records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Normalized records in the most recently built table.",
		}, []string{"dataset"}),
		Cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_total",
			Help:      "Table cache lookups by result.",
		}, []string{"result"}),
		Selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Selections by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SnapshotMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_messages_total",
			Help:      "Normalized records published to the snapshot topic.",
		}, []string{"outcome"}),
	}
}
