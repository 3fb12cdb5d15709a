// Package analytics implements the correlation engine: it reads the four
// telemetry streams through the storage contract and derives timeout
// patterns, business impact, and anomaly flags for the tablet fleet.
package analytics

import "fieldops.dev/tabletwatch/pkg/liveness"

// Config names every analysis threshold. All rates are percentages.
type Config struct {
	// WeakSignalDBm is the wifi level below which a sample counts as weak.
	WeakSignalDBm int

	// PeakHourRatePct and MinHourSamples qualify an hour-of-day bucket as
	// a problem hour.
	PeakHourRatePct float64
	MinHourSamples  int

	// RecoveryMinutesPerTimeout prices one timeout in lost minutes.
	RecoveryMinutesPerTimeout float64

	// Risk tier cut-offs on the business-app timeout rate.
	RiskMediumPct   float64
	RiskHighPct     float64
	RiskCriticalPct float64

	// DeviceRateHighPct marks a single device as a problem device.
	DeviceRateHighPct float64

	// LowBatteryPct and MinAnomalySamples qualify a device for the
	// low-battery-during-business-use anomaly.
	LowBatteryPct     float64
	MinAnomalySamples int

	// LossAlertHours triggers the productivity recommendation.
	LossAlertHours float64

	// IdleRiskSec marks a business-app sample as a timeout risk when the
	// last user interaction is older than this.
	IdleRiskSec int

	// SamplePairTolerance pairs battery samples with app samples taken
	// within this many seconds of each other.
	SamplePairToleranceSec int

	// DeviceLiveness classifies last_seen recency in per-device views.
	// FleetLiveness is the coarser pair the fleet list uses, where
	// anything seen within the hour still counts as recent.
	DeviceLiveness liveness.Thresholds
	FleetLiveness  liveness.Thresholds

	// Foreground-app substring tables (matched case-insensitively).
	BusinessPatterns []string
	ScannerPatterns  []string
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		WeakSignalDBm:             -70,
		PeakHourRatePct:           15,
		MinHourSamples:            5,
		RecoveryMinutesPerTimeout: 15,
		RiskMediumPct:             5,
		RiskHighPct:               15,
		RiskCriticalPct:           20,
		DeviceRateHighPct:         20,
		LowBatteryPct:             25,
		MinAnomalySamples:         3,
		LossAlertHours:            5,
		IdleRiskSec:               300,
		SamplePairToleranceSec:    60,
		DeviceLiveness:            liveness.DefaultThresholds(),
		FleetLiveness:             liveness.FleetThresholds(),
		BusinessPatterns:          []string{"myob"},
		ScannerPatterns:           []string{"scanner", "barcode", "zebra"},
	}
}
