package analytics

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Row shapes scanned out of the four telemetry streams. Field names map
// onto the snake_case column names of the underlying tables.

type batterySample struct {
	DeviceID     string
	BatteryLevel *int
	Timestamp    time.Time
}

type networkSample struct {
	DeviceID           string
	WifiSignalStrength *int
	ConnectivityStatus string
	WifiSSID           *string
	Timestamp          time.Time
}

type appSample struct {
	DeviceID            string
	AppForeground       *string
	ScreenState         string
	LastUserInteraction *time.Time
	Timestamp           time.Time
}

type eventSample struct {
	DeviceID  string
	EventType string
	Duration  *int
	Timestamp time.Time
}

// matchesAny reports whether s contains any of the patterns,
// case-insensitively. An empty s never matches.
func matchesAny(patterns []string, s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// businessActive reports whether the sample's foreground app matches the
// business-app pattern table.
func (c Config) businessActive(s appSample) bool {
	return s.AppForeground != nil && matchesAny(c.BusinessPatterns, *s.AppForeground)
}

// scannerActive reports whether the sample's foreground app matches the
// scanner pattern table.
func (c Config) scannerActive(s appSample) bool {
	return s.AppForeground != nil && matchesAny(c.ScannerPatterns, *s.AppForeground)
}

// timeoutRisk reports whether a business-app sample shows the idle
// pattern that precedes a session timeout.
func (c Config) timeoutRisk(s appSample) bool {
	if !c.businessActive(s) || s.LastUserInteraction == nil {
		return false
	}
	idle := s.Timestamp.Sub(*s.LastUserInteraction)
	return idle > time.Duration(c.IdleRiskSec)*time.Second
}

// idleRisk reports whether a sample shows stale interaction on an active
// screen, the fleet-level timeout risk signal.
func (c Config) idleRisk(s appSample, now time.Time) bool {
	if s.LastUserInteraction == nil || s.ScreenState != "active" {
		return false
	}
	return now.Sub(*s.LastUserInteraction) > time.Duration(c.IdleRiskSec)*time.Second
}

// batteryStats aggregates the battery samples that carry a level.
func batteryStats(samples []batterySample) BatteryStats {
	stats := BatteryStats{Min: math.MaxInt32}
	sum := 0
	for _, s := range samples {
		if s.BatteryLevel == nil {
			continue
		}
		level := *s.BatteryLevel
		sum += level
		if level < stats.Min {
			stats.Min = level
		}
		if level > stats.Max {
			stats.Max = level
		}
		stats.Samples++
	}
	if stats.Samples == 0 {
		stats.Min = 0
		return stats
	}
	stats.Average = round1(float64(sum) / float64(stats.Samples))
	return stats
}

// signalStats aggregates connectivity samples: average level, weak and
// offline counts, and distinct network names.
func signalStats(samples []networkSample, weakDBm int) SignalStats {
	stats := SignalStats{}
	sum := 0
	networks := map[string]struct{}{}
	for _, s := range samples {
		if s.ConnectivityStatus == "offline" {
			stats.OfflineSamples++
		}
		if s.WifiSSID != nil {
			networks[*s.WifiSSID] = struct{}{}
		}
		if s.WifiSignalStrength == nil {
			continue
		}
		sum += *s.WifiSignalStrength
		if *s.WifiSignalStrength < weakDBm {
			stats.WeakSamples++
		}
		stats.Samples++
	}
	stats.Networks = len(networks)
	if stats.Samples > 0 {
		stats.AverageDBm = round1(float64(sum) / float64(stats.Samples))
	}
	return stats
}

// eventCounts tallies events by type and derives session/timeout totals.
func eventCounts(events []eventSample) (counts map[string]int, sessions, timeouts int) {
	counts = map[string]int{}
	for _, e := range events {
		counts[e.EventType]++
		switch e.EventType {
		case "login", "session_start":
			sessions++
		case "timeout":
			timeouts++
		}
	}
	return counts, sessions, timeouts
}

// ratePct is timeouts over samples as a percentage; zero samples is a
// zero rate, never a division fault.
func ratePct(timeouts, samples int) float64 {
	if samples == 0 {
		return 0
	}
	return round1(float64(timeouts) / float64(samples) * 100)
}

// hourPatterns buckets business-app activity and timeouts by hour of day.
func (c Config) hourPatterns(apps []appSample, events []eventSample) []HourPattern {
	buckets := make([]HourPattern, 24)
	for h := range buckets {
		buckets[h].Hour = h
	}
	for _, s := range apps {
		if !c.businessActive(s) {
			continue
		}
		h := s.Timestamp.UTC().Hour()
		buckets[h].BusinessSamples++
		if c.timeoutRisk(s) {
			buckets[h].TimeoutRisks++
		}
	}
	for _, e := range events {
		if e.EventType != "timeout" {
			continue
		}
		buckets[e.Timestamp.UTC().Hour()].Timeouts++
	}

	patterns := make([]HourPattern, 0, 24)
	for _, b := range buckets {
		if b.BusinessSamples == 0 && b.Timeouts == 0 {
			continue
		}
		b.TimeoutRatePct = ratePct(b.Timeouts, b.BusinessSamples)
		patterns = append(patterns, b)
	}
	return patterns
}

// problemHours filters the buckets with enough samples and a rate above
// the peak threshold, worst first, capped at three.
func (c Config) problemHours(patterns []HourPattern) []HourPattern {
	problems := make([]HourPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.BusinessSamples > c.MinHourSamples && p.TimeoutRatePct > c.PeakHourRatePct {
			problems = append(problems, p)
		}
	}
	sort.Slice(problems, func(i, j int) bool {
		return problems[i].TimeoutRatePct > problems[j].TimeoutRatePct
	})
	if len(problems) > 3 {
		problems = problems[:3]
	}
	return problems
}

// riskTier maps a timeout rate onto the bounded tier ladder.
func (c Config) riskTier(ratePct float64) string {
	switch {
	case ratePct > c.RiskCriticalPct:
		return "CRITICAL"
	case ratePct > c.RiskHighPct:
		return "HIGH"
	case ratePct > c.RiskMediumPct:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// businessImpact prices the measured timeouts: lost hours from the fixed
// recovery cost, a daily incident rate, and a penalty-scored efficiency
// bounded at zero.
func (c Config) businessImpact(timeouts, affectedDevices int, timeoutRatePct float64, windowHours int) BusinessImpact {
	lossHours := float64(timeouts) * c.RecoveryMinutesPerTimeout / 60
	daily := 0.0
	if windowHours > 0 {
		daily = round1(float64(timeouts) * 24 / float64(windowHours))
	}
	return BusinessImpact{
		ProductivityLossHours: round2(lossHours),
		AffectedDevices:       affectedDevices,
		DailyTimeoutIncidents: daily,
		EfficiencyScore:       math.Max(0, 100-timeoutRatePct*2),
		RiskLevel:             c.riskTier(timeoutRatePct),
	}
}

// deviceImpacts aggregates business activity and timeouts per device,
// ranked by timeouts then risks.
func (c Config) deviceImpacts(apps []appSample, events []eventSample, names map[string][2]string) []DeviceImpact {
	byDevice := map[string]*DeviceImpact{}
	get := func(id string) *DeviceImpact {
		d, ok := byDevice[id]
		if !ok {
			d = &DeviceImpact{DeviceID: id}
			if meta, ok := names[id]; ok {
				d.DeviceName = meta[0]
				d.Location = meta[1]
			}
			byDevice[id] = d
		}
		return d
	}

	for _, s := range apps {
		if !c.businessActive(s) {
			continue
		}
		d := get(s.DeviceID)
		d.BusinessSamples++
		if c.timeoutRisk(s) {
			d.TimeoutRisks++
		}
		if s.Timestamp.After(d.LastActivity) {
			d.LastActivity = s.Timestamp
		}
	}
	for _, e := range events {
		if e.EventType != "timeout" {
			continue
		}
		d := get(e.DeviceID)
		d.Timeouts++
		if e.Timestamp.After(d.LastActivity) {
			d.LastActivity = e.Timestamp
		}
	}

	impacts := make([]DeviceImpact, 0, len(byDevice))
	for _, d := range byDevice {
		d.TimeoutRatePct = ratePct(d.Timeouts, d.BusinessSamples)
		impacts = append(impacts, *d)
	}
	sort.Slice(impacts, func(i, j int) bool {
		if impacts[i].Timeouts != impacts[j].Timeouts {
			return impacts[i].Timeouts > impacts[j].Timeouts
		}
		return impacts[i].TimeoutRisks > impacts[j].TimeoutRisks
	})
	return impacts
}

// pairBusinessBattery collects, per device, the battery levels sampled
// while a business app was in the foreground. Battery and app samples are
// paired when taken within the configured tolerance of each other.
func (c Config) pairBusinessBattery(apps []appSample, batteries []batterySample) map[string][]int {
	tolerance := time.Duration(c.SamplePairToleranceSec) * time.Second

	businessByDevice := map[string][]time.Time{}
	for _, s := range apps {
		if c.businessActive(s) {
			businessByDevice[s.DeviceID] = append(businessByDevice[s.DeviceID], s.Timestamp)
		}
	}

	paired := map[string][]int{}
	for _, b := range batteries {
		if b.BatteryLevel == nil {
			continue
		}
		for _, ts := range businessByDevice[b.DeviceID] {
			diff := b.Timestamp.Sub(ts)
			if diff < 0 {
				diff = -diff
			}
			if diff <= tolerance {
				paired[b.DeviceID] = append(paired[b.DeviceID], *b.BatteryLevel)
				break
			}
		}
	}
	return paired
}

// lowBatteryAnomalies flags devices whose average battery during business
// use sits below the low-battery threshold, given enough samples.
func (c Config) lowBatteryAnomalies(businessBattery map[string][]int) []Anomaly {
	anomalies := []Anomaly{}
	for deviceID, levels := range businessBattery {
		if len(levels) <= c.MinAnomalySamples {
			continue
		}
		sum := 0
		for _, l := range levels {
			sum += l
		}
		avg := float64(sum) / float64(len(levels))
		if avg < c.LowBatteryPct {
			anomalies = append(anomalies, Anomaly{
				Type:           "LOW_BATTERY_PATTERN",
				DeviceID:       deviceID,
				AverageBattery: round1(avg),
				Severity:       "HIGH",
				Recommendation: "Replace battery or increase charging frequency",
			})
		}
	}
	sort.Slice(anomalies, func(i, j int) bool {
		return anomalies[i].DeviceID < anomalies[j].DeviceID
	})
	return anomalies
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
