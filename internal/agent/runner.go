package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fieldops.dev/tabletwatch/pkg/metrics"
	"fieldops.dev/tabletwatch/pkg/telemetry"
)

// DefaultPollInterval is the cadence of the monitoring loop.
const DefaultPollInterval = 30 * time.Second

// Runner is the agent's main loop: each tick it samples the device,
// advances the detector, and submits the combined payload.
type Runner struct {
	logger     *slog.Logger
	sampler    Sampler
	classifier *Classifier
	detector   *Detector
	submitter  *Submitter
	metrics    *metrics.AgentMetrics // Optional metrics

	interval   time.Duration
	deviceID   string
	deviceName string
	location   string
	appVersion string
}

// RunnerConfig holds the configuration for the Runner.
type RunnerConfig struct {
	Logger     *slog.Logger
	Sampler    Sampler
	Classifier *Classifier
	Submitter  *Submitter
	Metrics    *metrics.AgentMetrics

	DeviceID   string
	DeviceName string
	Location   string
	Interval   time.Duration

	// Detector overrides; zero values take the detector defaults.
	MotionThreshold   float64
	InactivityTimeout time.Duration
}

// NewRunner creates a new Runner instance.
func NewRunner(cfg *RunnerConfig) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("runner config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Sampler == nil {
		return nil, errors.New("sampler cannot be nil")
	}
	if cfg.Submitter == nil {
		return nil, errors.New("submitter cannot be nil")
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("device id cannot be empty")
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	now := time.Now().UTC()
	return &Runner{
		logger:     cfg.Logger,
		sampler:    cfg.Sampler,
		classifier: classifier,
		detector: NewDetector(now, DetectorConfig{
			SessionID:         uuid.NewString(),
			MotionThreshold:   cfg.MotionThreshold,
			InactivityTimeout: cfg.InactivityTimeout,
		}),
		submitter:  cfg.Submitter,
		metrics:    cfg.Metrics,
		interval:   interval,
		deviceID:   telemetry.NormalizeDeviceID(cfg.DeviceID),
		deviceName: cfg.DeviceName,
		location:   cfg.Location,
		appVersion: "tabletwatch_agent_v2",
	}, nil
}

// Run executes the monitoring loop until the context is cancelled. The
// first tick fires immediately.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("starting tablet agent",
		"device_id", r.deviceID,
		"interval", r.interval,
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("tablet agent stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick samples, detects, and submits one poll cycle. Submission failures
// are logged and abandoned; the next tick carries fresh readings.
func (r *Runner) tick(ctx context.Context) {
	now := time.Now().UTC()
	if r.metrics != nil {
		r.metrics.TicksTotal.Inc()
	}

	sub := r.collect(ctx, now)

	receipt, err := r.submitter.Submit(ctx, sub)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("failed to submit telemetry", "error", err)
		return
	}

	r.logger.Debug("telemetry submitted",
		"device_id", receipt.DeviceID,
		"session_events", receipt.RecordsReceived.SessionEvents,
	)
}

// collect assembles the submission for one tick.
func (r *Runner) collect(ctx context.Context, now time.Time) *telemetry.Submission {
	battery := r.sampler.Battery(ctx)
	network := r.sampler.Network(ctx)
	processes := r.sampler.Processes(ctx)
	motion := r.sampler.Motion(ctx)

	classification := r.classifier.Classify(processes)
	events := r.detector.Tick(now, Observation{
		MotionMagnitude: motion,
		Processes:       classification,
	})

	if r.metrics != nil {
		r.metrics.InactivitySeconds.Set(r.detector.Inactivity(now).Seconds())
		for _, ev := range events {
			r.metrics.EventsDetected.WithLabelValues(string(ev.EventType)).Inc()
		}
	}

	screen := telemetry.ScreenDimmed
	if r.detector.Recent(now) {
		screen = telemetry.ScreenActive
	}

	foreground := "unknown"
	if classification.Active(ClassBusiness) {
		foreground = "myob"
	} else if classification.Active(ClassScanner) {
		foreground = "scanner"
	}

	lastInteraction := r.detector.LastInteraction()
	timeoutSetting := int(r.detector.inactivityTimeout.Seconds())
	zero := 0

	sub := &telemetry.Submission{
		DeviceID:   r.deviceID,
		AppVersion: &r.appVersion,
		Timestamp:  now,
		AppMetrics: &telemetry.AppMetrics{
			ScreenState:          screen,
			AppForeground:        &foreground,
			LastUserInteraction:  &lastInteraction,
			NotificationCount:    &zero,
			ScreenTimeoutSetting: &timeoutSetting,
			Timestamp:            now,
		},
		SessionEvents: events,
		RawLogs: []string{
			fmt.Sprintf("business active: %t", classification.Active(ClassBusiness)),
			fmt.Sprintf("scanner active: %t", classification.Active(ClassScanner)),
			fmt.Sprintf("inactivity: %ds", int(r.detector.Inactivity(now).Seconds())),
		},
	}
	if r.deviceName != "" {
		sub.DeviceName = &r.deviceName
	}
	if r.location != "" {
		sub.Location = &r.location
	}
	if battery != nil {
		battery.Timestamp = now
		sub.DeviceMetrics = battery
	}
	if network != nil {
		network.Timestamp = now
		sub.NetworkMetrics = network
	}
	return sub
}
