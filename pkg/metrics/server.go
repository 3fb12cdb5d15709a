package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics contains Prometheus metrics for the monitoring server.
type ServerMetrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec
	SubmissionsTotal     *prometheus.CounterVec
	PersistQueueDepth    prometheus.Gauge
	PersistQueueDropped  prometheus.Counter
	PersistJobsTotal     *prometheus.CounterVec
	PersistDuration      prometheus.Histogram
	RecordsWritten       *prometheus.CounterVec
	StorageHealth        *prometheus.GaugeVec
}

// NewServerMetrics creates and registers monitoring server metrics.
func NewServerMetrics(namespace string) *ServerMetrics {
	m := &ServerMetrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"method", "path"},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "submissions_total",
				Help:      "Total number of telemetry submissions",
			},
			[]string{"status"}, // status: accepted, rejected, dropped
		),
		PersistQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "persist_queue_depth",
				Help:      "Number of submissions waiting for background persistence",
			},
		),
		PersistQueueDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "persist_queue_dropped_total",
				Help:      "Total number of submissions dropped because the persistence queue was full",
			},
		),
		PersistJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "persist_jobs_total",
				Help:      "Total number of background persistence jobs",
			},
			[]string{"status"}, // status: success, error
		),
		PersistDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "persist_duration_seconds",
				Help:      "Duration of background persistence transactions",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RecordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "records_written_total",
				Help:      "Total number of telemetry records written",
			},
			[]string{"table"},
		),
		StorageHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "backend_health",
				Help:      "Storage backend health (1 for the current state, 0 otherwise)",
			},
			[]string{"backend", "health"},
		),
	}

	MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SubmissionsTotal,
		m.PersistQueueDepth,
		m.PersistQueueDropped,
		m.PersistJobsTotal,
		m.PersistDuration,
		m.RecordsWritten,
		m.StorageHealth,
	)

	return m
}
