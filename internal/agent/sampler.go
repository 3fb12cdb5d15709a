package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"fieldops.dev/tabletwatch/pkg/metrics"
	"fieldops.dev/tabletwatch/pkg/telemetry"
)

// Sampler reads the device state one probe at a time. Each probe may fail
// independently; a failed probe yields nil so the tick still submits
// whatever was readable.
type Sampler interface {
	Battery(ctx context.Context) *telemetry.DeviceMetrics
	Network(ctx context.Context) *telemetry.NetworkMetrics
	Processes(ctx context.Context) []string
	Motion(ctx context.Context) *float64
}

// TermuxSampler shells out to the Termux API binaries available on the
// tablets. Every command is bounded by a timeout; any failure is logged
// at debug level and reported as an absent reading.
type TermuxSampler struct {
	logger  *slog.Logger
	timeout time.Duration
	metrics *metrics.AgentMetrics // Optional metrics
}

// NewTermuxSampler creates a sampler with a per-command timeout.
func NewTermuxSampler(logger *slog.Logger, timeout time.Duration, m *metrics.AgentMetrics) *TermuxSampler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TermuxSampler{logger: logger, timeout: timeout, metrics: m}
}

func (s *TermuxSampler) run(ctx context.Context, probe, name string, args ...string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := exec.CommandContext(cmdCtx, name, args...).Output()
	if err != nil {
		s.logger.Debug("device probe failed", "probe", probe, "command", name, "error", err)

		if s.metrics != nil {
			s.metrics.SampleFailures.WithLabelValues(probe).Inc()
		}

		return nil, err
	}
	return out, nil
}

// Battery reads termux-battery-status.
func (s *TermuxSampler) Battery(ctx context.Context) *telemetry.DeviceMetrics {
	out, err := s.run(ctx, "battery", "termux-battery-status")
	if err != nil {
		return nil
	}

	var status struct {
		Percentage  *int     `json:"percentage"`
		Temperature *float64 `json:"temperature"`
	}
	if err := json.Unmarshal(out, &status); err != nil {
		s.logger.Debug("failed to parse battery status", "error", err)
		return nil
	}

	return &telemetry.DeviceMetrics{
		BatteryLevel:       status.Percentage,
		BatteryTemperature: status.Temperature,
	}
}

// Network reads termux-wifi-connectioninfo and probes connectivity with a
// single ping.
func (s *TermuxSampler) Network(ctx context.Context) *telemetry.NetworkMetrics {
	metrics := &telemetry.NetworkMetrics{
		ConnectivityStatus: telemetry.ConnectivityUnknown,
	}
	wifiType := "WiFi"
	metrics.NetworkType = &wifiType

	if out, err := s.run(ctx, "wifi", "termux-wifi-connectioninfo"); err == nil {
		var info struct {
			RSSI *int    `json:"rssi"`
			SSID *string `json:"ssid"`
			IP   *string `json:"ip"`
		}
		if err := json.Unmarshal(out, &info); err == nil {
			metrics.WifiSignalStrength = info.RSSI
			if info.SSID != nil {
				ssid := strings.ReplaceAll(*info.SSID, `"`, "")
				metrics.WifiSSID = &ssid
			}
			metrics.IPAddress = info.IP
		} else {
			s.logger.Debug("failed to parse wifi info", "error", err)
		}
	}

	if _, err := s.run(ctx, "ping", "ping", "-c", "1", "-W", "3", "8.8.8.8"); err == nil {
		metrics.ConnectivityStatus = telemetry.ConnectivityOnline
	} else {
		metrics.ConnectivityStatus = telemetry.ConnectivityOffline
	}

	return metrics
}

// Processes lists running processes via ps, skipping the header line.
func (s *TermuxSampler) Processes(ctx context.Context) []string {
	out, err := s.run(ctx, "process", "ps", "-A")
	if err != nil {
		return nil
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) <= 1 {
		return nil
	}
	return lines[1:]
}

// Motion reads one accelerometer sample and returns the summed absolute
// magnitude of the three axes.
func (s *TermuxSampler) Motion(ctx context.Context) *float64 {
	out, err := s.run(ctx, "sensor", "termux-sensor", "-s", "accelerometer", "-n", "1")
	if err != nil {
		return nil
	}

	var sample struct {
		Values []float64 `json:"values"`
	}
	if err := json.Unmarshal(out, &sample); err != nil || len(sample.Values) < 3 {
		s.logger.Debug("failed to parse accelerometer sample", "error", err)
		return nil
	}

	magnitude := 0.0
	for _, v := range sample.Values[:3] {
		if v < 0 {
			v = -v
		}
		magnitude += v
	}
	return &magnitude
}
