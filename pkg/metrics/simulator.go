package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the fleet simulator.
type SimulatorMetrics struct {
	SubmissionsGenerated *prometheus.CounterVec
	SubmissionFailures   *prometheus.CounterVec
	SubmitDuration       prometheus.Histogram
	DevicesSimulated     prometheus.Gauge
}

// NewSimulatorMetrics creates and registers fleet simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		SubmissionsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "submissions_generated_total",
				Help:      "Total number of telemetry submissions generated",
			},
			[]string{"device_id"},
		),
		SubmissionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "submission_failures_total",
				Help:      "Total number of failed simulated submissions",
			},
			[]string{"reason"},
		),
		SubmitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "submit_duration_seconds",
				Help:      "Duration of simulated submission requests",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DevicesSimulated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "devices_simulated",
				Help:      "Number of devices in the simulated fleet",
			},
		),
	}

	MustRegister(
		m.SubmissionsGenerated,
		m.SubmissionFailures,
		m.SubmitDuration,
		m.DevicesSimulated,
	)

	return m
}
