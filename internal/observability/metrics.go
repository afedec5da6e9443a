package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for the ingestion core.
type Metrics struct {
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsCancelled prometheus.Counter
	RowsInserted  prometheus.Counter
	RowErrors     prometheus.Counter

	QueueDepth  prometheus.Gauge
	ActiveJobs  prometheus.Gauge
	JobDuration prometheus.Histogram

	WeatherFetches *prometheus.CounterVec // labels: outcome={success,error}

	CacheOps *prometheus.CounterVec // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisewatch",
			Name:      "jobs_completed_total",
			Help:      "Total import jobs that finished successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisewatch",
			Name:      "jobs_failed_total",
			Help:      "Total import jobs that failed with a file-level error.",
		}),
		JobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisewatch",
			Name:      "jobs_cancelled_total",
			Help:      "Total queued jobs removed before execution.",
		}),
		RowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisewatch",
			Name:      "rows_inserted_total",
			Help:      "Total measurement rows written to the store.",
		}),
		RowErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisewatch",
			Name:      "row_errors_total",
			Help:      "Total malformed rows skipped during parsing.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "noisewatch",
			Name:      "queue_depth",
			Help:      "Jobs currently queued across all priority lanes.",
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "noisewatch",
			Name:      "active_jobs",
			Help:      "Jobs currently being executed by the worker pool.",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "noisewatch",
			Name:      "job_duration_seconds",
			Help:      "Duration of a complete import job.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		WeatherFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noisewatch",
			Name:      "weather_fetches_total",
			Help:      "Weather source fetches by outcome.",
		}, []string{"outcome"}),
		CacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "noisewatch",
			Name:      "cache_ops_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsCancelled,
		m.RowsInserted,
		m.RowErrors,
		m.QueueDepth,
		m.ActiveJobs,
		m.JobDuration,
		m.WeatherFetches,
		m.CacheOps,
	)
	return m
}

// NewMetricsForTesting creates Metrics with no registry registration to
// avoid "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
