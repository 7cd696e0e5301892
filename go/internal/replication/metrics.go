package replication

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector records replication activity.
type MetricsCollector interface {
	RecordPublish(success bool, duration time.Duration)
	RecordDropped()
	RecordConflict()
	RecordRemote(applied bool)
}

// NoOpMetricsCollector is used when metrics aren't needed.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublish(success bool, duration time.Duration) {}
func (NoOpMetricsCollector) RecordDropped()                                     {}
func (NoOpMetricsCollector) RecordConflict()                                    {}
func (NoOpMetricsCollector) RecordRemote(applied bool)                          {}

// PrometheusMetrics implements MetricsCollector with Prometheus collectors.
type PrometheusMetrics struct {
	publishes       *prometheus.CounterVec
	publishDuration prometheus.Histogram
	dropped         prometheus.Counter
	conflicts       prometheus.Counter
	remote          *prometheus.CounterVec
}

// NewPrometheusMetrics registers the replication collectors with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)
	return &PrometheusMetrics{
		publishes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alias_replication_publishes_total",
				Help: "Total number of state writes to the backend",
			},
			[]string{"status"},
		),
		publishDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alias_replication_publish_duration_seconds",
				Help:    "Backend write duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		dropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "alias_replication_dropped_total",
				Help: "Publishes dropped because the queue was full",
			},
		),
		conflicts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "alias_replication_conflicts_total",
				Help: "Conditional writes rejected by a newer version",
			},
		),
		remote: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alias_replication_remote_total",
				Help: "Remote notifications received",
			},
			[]string{"result"},
		),
	}
}

func (m *PrometheusMetrics) RecordPublish(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.publishes.WithLabelValues(status).Inc()
	m.publishDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordDropped() {
	m.dropped.Inc()
}

func (m *PrometheusMetrics) RecordConflict() {
	m.conflicts.Inc()
}

func (m *PrometheusMetrics) RecordRemote(applied bool) {
	result := "applied"
	if !applied {
		result = "skipped"
	}
	m.remote.WithLabelValues(result).Inc()
}
