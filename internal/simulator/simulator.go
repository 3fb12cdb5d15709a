package simulator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fieldops.dev/tabletwatch/internal/agent"
	"fieldops.dev/tabletwatch/pkg/metrics"
)

// DefaultInterval is the simulated poll cadence; shorter than a real
// tablet's so analysis windows fill quickly during development.
const DefaultInterval = 10 * time.Second

// DefaultDeviceCount is the fleet size when none is configured.
const DefaultDeviceCount = 5

// Simulator drives a fabricated fleet: each tick every device generates a
// submission and posts it to the gateway.
type Simulator struct {
	logger     *slog.Logger
	submitter  *agent.Submitter
	generators []*TelemetryGenerator
	interval   time.Duration
	metrics    *metrics.SimulatorMetrics // Optional metrics
}

// SimulatorConfig holds the configuration for the Simulator.
type SimulatorConfig struct {
	Logger *slog.Logger

	// ServerURL is the gateway base URL submissions are posted to.
	ServerURL string
	// Token, when set, is sent as a bearer token.
	Token string

	DeviceCount int
	Interval    time.Duration
	Metrics     *metrics.SimulatorMetrics
}

// NewSimulator creates a new Simulator instance with a fabricated fleet.
func NewSimulator(cfg *SimulatorConfig) (*Simulator, error) {
	if cfg == nil {
		return nil, errors.New("simulator config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL cannot be empty")
	}

	deviceCount := cfg.DeviceCount
	if deviceCount <= 0 {
		deviceCount = DefaultDeviceCount
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	submitter, err := agent.NewSubmitter(&agent.SubmitterConfig{
		Logger:    cfg.Logger,
		ServerURL: cfg.ServerURL,
		Token:     cfg.Token,
	})
	if err != nil {
		return nil, err
	}

	generators := make([]*TelemetryGenerator, 0, deviceCount)
	for i := 0; i < deviceCount; i++ {
		profile := NewTabletProfile(i)
		if profile == nil {
			return nil, errors.New("failed to fabricate tablet profile")
		}
		generators = append(generators, NewTelemetryGenerator(profile))
	}

	if cfg.Metrics != nil {
		cfg.Metrics.DevicesSimulated.Set(float64(deviceCount))
	}

	return &Simulator{
		logger:     cfg.Logger,
		submitter:  submitter,
		generators: generators,
		interval:   interval,
		metrics:    cfg.Metrics,
	}, nil
}

// Devices returns the fabricated fleet's identifiers.
func (s *Simulator) Devices() []string {
	ids := make([]string, len(s.generators))
	for i, g := range s.generators {
		ids[i] = g.profile.DeviceID
	}
	return ids
}

// Run drives the fleet until the context is cancelled. The first tick
// fires immediately.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("starting fleet simulator",
		"devices", len(s.generators),
		"interval", s.interval,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("fleet simulator stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick submits one generated payload per device.
func (s *Simulator) tick(ctx context.Context) {
	now := time.Now().UTC()

	for _, g := range s.generators {
		if ctx.Err() != nil {
			return
		}

		sub := g.Generate(now)

		start := time.Now()
		_, err := s.submitter.Submit(ctx, sub)
		if s.metrics != nil {
			s.metrics.SubmitDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("failed to submit simulated telemetry",
				"device_id", sub.DeviceID,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.SubmissionFailures.WithLabelValues("submit_error").Inc()
			}
			continue
		}

		if s.metrics != nil {
			s.metrics.SubmissionsGenerated.WithLabelValues(sub.DeviceID).Inc()
		}
	}
}
