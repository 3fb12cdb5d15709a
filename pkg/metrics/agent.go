package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AgentMetrics contains Prometheus metrics for the on-device agent.
type AgentMetrics struct {
	TicksTotal        prometheus.Counter
	SampleFailures    *prometheus.CounterVec
	EventsDetected    *prometheus.CounterVec
	SubmissionsTotal  *prometheus.CounterVec
	SubmitDuration    prometheus.Histogram
	InactivitySeconds prometheus.Gauge
}

// NewAgentMetrics creates and registers on-device agent metrics.
func NewAgentMetrics(namespace string) *AgentMetrics {
	m := &AgentMetrics{
		TicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "ticks_total",
				Help:      "Total number of detector poll cycles",
			},
		),
		SampleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "sample_failures_total",
				Help:      "Total number of failed device probes",
			},
			[]string{"probe"}, // probe: battery, wifi, ping, sensor, process
		),
		EventsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "events_detected_total",
				Help:      "Total number of session events detected",
			},
			[]string{"event_type"},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "submissions_total",
				Help:      "Total number of telemetry submissions to the server",
			},
			[]string{"status"}, // status: success, error
		),
		SubmitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "submit_duration_seconds",
				Help:      "Duration of telemetry submissions",
				Buckets:   prometheus.DefBuckets,
			},
		),
		InactivitySeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "agent",
				Name:      "inactivity_seconds",
				Help:      "Seconds since the last detected device activity",
			},
		),
	}

	MustRegister(
		m.TicksTotal,
		m.SampleFailures,
		m.EventsDetected,
		m.SubmissionsTotal,
		m.SubmitDuration,
		m.InactivitySeconds,
	)

	return m
}
