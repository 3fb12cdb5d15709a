// Package ingest implements the telemetry ingestion gateway: validation,
// registry upsert, and asynchronous persistence of submitted samples.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldops.dev/tabletwatch/internal/store"
	"fieldops.dev/tabletwatch/pkg/metrics"
	"fieldops.dev/tabletwatch/pkg/telemetry"
)

// DefaultQueueSize bounds the background persistence channel.
const DefaultQueueSize = 256

// ErrQueueFull is wrapped into the persist result when a job cannot be
// enqueued. The submitting caller is never failed for it.
var ErrQueueFull = errors.New("persistence queue full")

// PersistResult reports the outcome of one background persistence job.
type PersistResult struct {
	DeviceID string
	Written  telemetry.RecordCounts
	Err      error
}

// job carries one accepted submission to the persistence worker.
type job struct {
	submission *telemetry.Submission
	receivedAt time.Time
}

// Gateway accepts telemetry submissions: it validates and normalizes the
// payload, merges the device into the registry synchronously, then hands
// sample persistence to a background worker so the device is acknowledged
// without waiting on row inserts.
type Gateway struct {
	logger  *slog.Logger
	store   store.Store
	metrics *metrics.ServerMetrics // Optional metrics

	jobs chan job
	done chan struct{}

	// onPersist, when set, observes every persistence outcome. Used by
	// operators for alerting and by tests for synchronization.
	onPersist func(PersistResult)
}

// GatewayConfig holds the configuration for the Gateway.
type GatewayConfig struct {
	Logger    *slog.Logger
	Store     store.Store
	QueueSize int
	Metrics   *metrics.ServerMetrics
	OnPersist func(PersistResult)
}

// NewGateway creates a new Gateway instance.
func NewGateway(cfg *GatewayConfig) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("gateway config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Gateway{
		logger:    cfg.Logger,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		jobs:      make(chan job, queueSize),
		done:      make(chan struct{}),
		onPersist: cfg.OnPersist,
	}, nil
}

// Start launches the background persistence worker.
func (g *Gateway) Start(ctx context.Context) {
	g.logger.Info("starting ingestion gateway", "queue_size", cap(g.jobs))
	go g.processJobs(ctx)
}

// Stop waits for the persistence worker to drain and exit. Call after the
// context passed to Start has been cancelled.
func (g *Gateway) Stop() {
	<-g.done
	g.logger.Info("ingestion gateway stopped")
}

// Submit accepts one telemetry submission. The registry merge happens
// before the acknowledgment so liveness reads a fresh last_seen; sample
// rows and counters are persisted in the background. A validation failure
// returns a *telemetry.ValidationError.
func (g *Gateway) Submit(ctx context.Context, sub *telemetry.Submission) (*telemetry.Receipt, error) {
	if sub == nil {
		return nil, &telemetry.ValidationError{Field: "submission", Reason: "cannot be empty"}
	}

	now := time.Now().UTC()
	sub.Normalize(now)

	if verr := sub.Validate(); verr != nil {
		if g.metrics != nil {
			g.metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		}
		return nil, verr
	}

	if err := g.store.UpsertDevice(ctx, &store.Device{
		DeviceID:       sub.DeviceID,
		DeviceName:     sub.DeviceName,
		Location:       sub.Location,
		AndroidVersion: sub.AndroidVersion,
		AppVersion:     sub.AppVersion,
		LastSeen:       sub.Timestamp,
	}); err != nil {
		if g.metrics != nil {
			g.metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("failed to register device %s: %w", sub.DeviceID, err)
	}

	g.enqueue(sub, now)

	if g.metrics != nil {
		g.metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
		g.metrics.PersistQueueDepth.Set(float64(len(g.jobs)))
	}

	return &telemetry.Receipt{
		Status:          "received",
		DeviceID:        sub.DeviceID,
		Timestamp:       now,
		RecordsReceived: sub.Counts(),
	}, nil
}

// enqueue hands the submission to the worker without blocking the caller.
// When the queue is full the job is dropped and logged; the device has
// already been acknowledged and will submit again next tick.
func (g *Gateway) enqueue(sub *telemetry.Submission, receivedAt time.Time) {
	select {
	case g.jobs <- job{submission: sub, receivedAt: receivedAt}:
	default:
		g.logger.Warn("persistence queue full, dropping submission",
			"device_id", sub.DeviceID,
			"queue_size", cap(g.jobs),
		)
		if g.metrics != nil {
			g.metrics.PersistQueueDropped.Inc()
			g.metrics.SubmissionsTotal.WithLabelValues("dropped").Inc()
		}
		g.report(PersistResult{DeviceID: sub.DeviceID, Err: ErrQueueFull})
	}
}

// processJobs drains the job channel until the context is cancelled.
func (g *Gateway) processJobs(ctx context.Context) {
	defer close(g.done)

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("context canceled, draining persistence queue",
				"pending", len(g.jobs))
			g.drain()
			return

		case j := <-g.jobs:
			g.handleJob(ctx, j)
		}
	}
}

// drain persists whatever is still queued at shutdown, with a fresh
// bounded context since the run context is already cancelled.
func (g *Gateway) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for {
		select {
		case j := <-g.jobs:
			g.handleJob(ctx, j)
		default:
			return
		}
	}
}

func (g *Gateway) handleJob(ctx context.Context, j job) {
	start := time.Now()

	written, err := g.persist(ctx, j.submission)
	if g.metrics != nil {
		g.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		g.metrics.PersistQueueDepth.Set(float64(len(g.jobs)))
	}
	if err != nil {
		g.logger.Error("failed to persist submission",
			"device_id", j.submission.DeviceID,
			"error", err,
		)
		if g.metrics != nil {
			g.metrics.PersistJobsTotal.WithLabelValues("error").Inc()
		}
		g.report(PersistResult{DeviceID: j.submission.DeviceID, Err: err})
		return
	}

	if g.metrics != nil {
		g.metrics.PersistJobsTotal.WithLabelValues("success").Inc()
		g.countWritten(written)
	}
	g.logger.Debug("submission persisted",
		"device_id", j.submission.DeviceID,
		"device_metrics", written.DeviceMetrics,
		"network_metrics", written.NetworkMetrics,
		"app_metrics", written.AppMetrics,
		"session_events", written.SessionEvents,
	)
	g.report(PersistResult{DeviceID: j.submission.DeviceID, Written: written})
}

// persist writes all sample rows and the registry counter increments of
// one submission in a single transaction, so a partial failure leaves no
// half-recorded poll tick behind.
func (g *Gateway) persist(ctx context.Context, sub *telemetry.Submission) (telemetry.RecordCounts, error) {
	written := telemetry.RecordCounts{}

	err := g.store.Transaction(ctx, func(tx store.Store) error {
		if sub.DeviceMetrics != nil {
			if err := tx.InsertDeviceMetric(ctx, deviceMetricRow(sub)); err != nil {
				return err
			}
			written.DeviceMetrics = 1
		}
		if sub.NetworkMetrics != nil {
			if err := tx.InsertNetworkMetric(ctx, networkMetricRow(sub)); err != nil {
				return err
			}
			written.NetworkMetrics = 1
		}
		if sub.AppMetrics != nil {
			if err := tx.InsertAppMetric(ctx, appMetricRow(sub)); err != nil {
				return err
			}
			written.AppMetrics = 1
		}

		sessions, timeouts := 0, 0
		for i := range sub.SessionEvents {
			ev := &sub.SessionEvents[i]
			if err := tx.InsertSessionEvent(ctx, sessionEventRow(sub.DeviceID, ev)); err != nil {
				return err
			}
			written.SessionEvents++
			if ev.EventType.CountsTowardSessions() {
				sessions++
			}
			if ev.EventType == telemetry.EventTimeout {
				timeouts++
			}
		}

		return tx.AddDeviceCounters(ctx, sub.DeviceID, sessions, timeouts)
	})
	if err != nil {
		return telemetry.RecordCounts{}, fmt.Errorf("persistence transaction failed: %w", err)
	}
	return written, nil
}

func (g *Gateway) report(res PersistResult) {
	if g.onPersist != nil {
		g.onPersist(res)
	}
}

func (g *Gateway) countWritten(written telemetry.RecordCounts) {
	if written.DeviceMetrics > 0 {
		g.metrics.RecordsWritten.WithLabelValues("device_metrics").Add(float64(written.DeviceMetrics))
	}
	if written.NetworkMetrics > 0 {
		g.metrics.RecordsWritten.WithLabelValues("network_metrics").Add(float64(written.NetworkMetrics))
	}
	if written.AppMetrics > 0 {
		g.metrics.RecordsWritten.WithLabelValues("app_metrics").Add(float64(written.AppMetrics))
	}
	if written.SessionEvents > 0 {
		g.metrics.RecordsWritten.WithLabelValues("session_events").Add(float64(written.SessionEvents))
	}
}

func deviceMetricRow(sub *telemetry.Submission) *store.DeviceMetric {
	m := sub.DeviceMetrics
	return &store.DeviceMetric{
		DeviceID:           sub.DeviceID,
		BatteryLevel:       m.BatteryLevel,
		BatteryTemperature: m.BatteryTemperature,
		MemoryAvailable:    m.MemoryAvailable,
		MemoryTotal:        m.MemoryTotal,
		StorageAvailable:   m.StorageAvailable,
		CPUUsage:           m.CPUUsage,
		Timestamp:          m.Timestamp,
	}
}

func networkMetricRow(sub *telemetry.Submission) *store.NetworkMetric {
	m := sub.NetworkMetrics
	return &store.NetworkMetric{
		DeviceID:           sub.DeviceID,
		WifiSignalStrength: m.WifiSignalStrength,
		WifiSSID:           m.WifiSSID,
		ConnectivityStatus: string(m.ConnectivityStatus),
		NetworkType:        m.NetworkType,
		IPAddress:          m.IPAddress,
		DNSResponseTime:    m.DNSResponseTime,
		DataUsageMB:        m.DataUsageMB,
		Timestamp:          m.Timestamp,
	}
}

func appMetricRow(sub *telemetry.Submission) *store.AppMetric {
	m := sub.AppMetrics
	return &store.AppMetric{
		DeviceID:             sub.DeviceID,
		ScreenState:          string(m.ScreenState),
		AppForeground:        m.AppForeground,
		AppMemoryUsage:       m.AppMemoryUsage,
		ScreenTimeoutSetting: m.ScreenTimeoutSetting,
		LastUserInteraction:  m.LastUserInteraction,
		NotificationCount:    m.NotificationCount,
		AppCrashes:           m.AppCrashes,
		Timestamp:            m.Timestamp,
	}
}

func sessionEventRow(deviceID string, ev *telemetry.SessionEvent) *store.SessionEvent {
	row := &store.SessionEvent{
		DeviceID:  deviceID,
		EventType: string(ev.EventType),
		Duration:  ev.Duration,
		Timestamp: ev.Timestamp,
	}
	if ev.SessionID != "" {
		row.SessionID = &ev.SessionID
	}
	if ev.ErrorMessage != "" {
		row.ErrorMessage = &ev.ErrorMessage
	}
	if ev.UserID != "" {
		row.UserID = &ev.UserID
	}
	if ev.AppVersion != "" {
		row.AppVersion = &ev.AppVersion
	}
	return row
}
