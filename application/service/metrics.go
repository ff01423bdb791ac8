package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments of the discovery core.
type Metrics struct {
	queries   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	indexSize *prometheus.GaugeVec
	rebuilds  prometheus.Counter
}

// NewMetrics registers the discovery metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kpath",
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Search queries by mode and outcome.",
		}, []string{"mode", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kpath",
			Subsystem: "search",
			Name:      "query_duration_seconds",
			Help:      "End-to-end planner latency per query.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		indexSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kpath",
			Subsystem: "index",
			Name:      "entries",
			Help:      "Live entries per vector index.",
		}, []string{"index"}),
		rebuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kpath",
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Completed full index rebuilds.",
		}),
	}
}

// ObserveQuery records one finished query.
func (m *Metrics) ObserveQuery(mode, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(mode, status).Inc()
	m.latency.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// SetIndexSize records the live entry count of one index.
func (m *Metrics) SetIndexSize(index string, size int) {
	if m == nil {
		return
	}
	m.indexSize.WithLabelValues(index).Set(float64(size))
}

// ObserveRebuild records one completed rebuild.
func (m *Metrics) ObserveRebuild() {
	if m == nil {
		return
	}
	m.rebuilds.Inc()
}
