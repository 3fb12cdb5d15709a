package analytics

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

var _ = Describe("Pattern matching", func() {
	cfg := DefaultConfig()

	It("should match business apps case-insensitively", func() {
		Expect(matchesAny(cfg.BusinessPatterns, "com.MYOB.warehouse")).To(BeTrue())
		Expect(matchesAny(cfg.BusinessPatterns, "com.android.chrome")).To(BeFalse())
	})

	It("should match any scanner pattern", func() {
		Expect(matchesAny(cfg.ScannerPatterns, "com.zebra.scannercontrol")).To(BeTrue())
		Expect(matchesAny(cfg.ScannerPatterns, "barcode-reader")).To(BeTrue())
		Expect(matchesAny(cfg.ScannerPatterns, "com.myob.warehouse")).To(BeFalse())
	})

	It("should never match an empty foreground", func() {
		Expect(matchesAny(cfg.BusinessPatterns, "")).To(BeFalse())
		Expect(cfg.businessActive(appSample{})).To(BeFalse())
	})
})

var _ = Describe("Battery aggregation", func() {
	It("should compute average, min and max over present levels", func() {
		stats := batteryStats([]batterySample{
			{BatteryLevel: intPtr(40)},
			{BatteryLevel: intPtr(60)},
			{BatteryLevel: nil},
			{BatteryLevel: intPtr(80)},
		})
		Expect(stats.Samples).To(Equal(3))
		Expect(stats.Average).To(Equal(60.0))
		Expect(stats.Min).To(Equal(40))
		Expect(stats.Max).To(Equal(80))
	})

	It("should zero out on no samples", func() {
		stats := batteryStats(nil)
		Expect(stats.Samples).To(BeZero())
		Expect(stats.Min).To(BeZero())
		Expect(stats.Average).To(BeZero())
	})
})

var _ = Describe("Signal aggregation", func() {
	It("should count weak and offline samples and distinct networks", func() {
		stats := signalStats([]networkSample{
			{WifiSignalStrength: intPtr(-80), ConnectivityStatus: "online", WifiSSID: strPtr("warehouse-a")},
			{WifiSignalStrength: intPtr(-50), ConnectivityStatus: "online", WifiSSID: strPtr("warehouse-a")},
			{WifiSignalStrength: nil, ConnectivityStatus: "offline", WifiSSID: strPtr("warehouse-b")},
		}, -70)
		Expect(stats.Samples).To(Equal(2))
		Expect(stats.WeakSamples).To(Equal(1))
		Expect(stats.OfflineSamples).To(Equal(1))
		Expect(stats.Networks).To(Equal(2))
		Expect(stats.AverageDBm).To(Equal(-65.0))
	})
})

var _ = Describe("Timeout rate", func() {
	It("should compute 3 timeouts over 10 samples as 30 percent", func() {
		Expect(ratePct(3, 10)).To(Equal(30.0))
	})

	It("should be zero on zero samples", func() {
		Expect(ratePct(5, 0)).To(BeZero())
	})
})

var _ = Describe("Risk tiers", func() {
	cfg := DefaultConfig()

	It("should ladder LOW, MEDIUM, HIGH, CRITICAL on the configured cut-offs", func() {
		Expect(cfg.riskTier(2)).To(Equal("LOW"))
		Expect(cfg.riskTier(5)).To(Equal("LOW"))
		Expect(cfg.riskTier(6)).To(Equal("MEDIUM"))
		Expect(cfg.riskTier(16)).To(Equal("HIGH"))
		Expect(cfg.riskTier(21)).To(Equal("CRITICAL"))
	})
})

var _ = Describe("Business impact", func() {
	cfg := DefaultConfig()

	It("should price timeouts at the configured recovery cost", func() {
		impact := cfg.businessImpact(4, 2, 30.0, 24)
		Expect(impact.ProductivityLossHours).To(Equal(1.0)) // 4 * 15min
		Expect(impact.AffectedDevices).To(Equal(2))
		Expect(impact.DailyTimeoutIncidents).To(Equal(4.0))
		Expect(impact.EfficiencyScore).To(Equal(40.0))
		Expect(impact.RiskLevel).To(Equal("CRITICAL"))
	})

	It("should floor the efficiency score at zero", func() {
		impact := cfg.businessImpact(10, 1, 60.0, 24)
		Expect(impact.EfficiencyScore).To(BeZero())
	})
})

var _ = Describe("Hourly patterns", func() {
	cfg := DefaultConfig()

	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
	}

	It("should bucket business samples and timeouts by hour of day", func() {
		apps := []appSample{}
		for i := 0; i < 10; i++ {
			apps = append(apps, appSample{
				DeviceID:      "tablet_a",
				AppForeground: strPtr("com.myob.warehouse"),
				Timestamp:     at(9, i),
			})
		}
		events := []eventSample{
			{DeviceID: "tablet_a", EventType: "timeout", Timestamp: at(9, 30)},
			{DeviceID: "tablet_a", EventType: "timeout", Timestamp: at(9, 45)},
			{DeviceID: "tablet_a", EventType: "login", Timestamp: at(9, 50)},
		}

		patterns := cfg.hourPatterns(apps, events)
		Expect(patterns).To(HaveLen(1))
		Expect(patterns[0].Hour).To(Equal(9))
		Expect(patterns[0].BusinessSamples).To(Equal(10))
		Expect(patterns[0].Timeouts).To(Equal(2))
		Expect(patterns[0].TimeoutRatePct).To(Equal(20.0))
	})

	It("should surface problem hours above the peak threshold only", func() {
		patterns := []HourPattern{
			{Hour: 9, BusinessSamples: 10, Timeouts: 2, TimeoutRatePct: 20},
			{Hour: 10, BusinessSamples: 10, Timeouts: 1, TimeoutRatePct: 10},
			{Hour: 11, BusinessSamples: 3, Timeouts: 3, TimeoutRatePct: 100}, // too few samples
		}
		problems := cfg.problemHours(patterns)
		Expect(problems).To(HaveLen(1))
		Expect(problems[0].Hour).To(Equal(9))
	})
})

var _ = Describe("Low battery anomalies", func() {
	cfg := DefaultConfig()

	It("should flag a device averaging below the threshold with enough samples", func() {
		anomalies := cfg.lowBatteryAnomalies(map[string][]int{
			"tablet_a": {20, 22, 18, 24},
			"tablet_b": {80, 85, 82, 90},
			"tablet_c": {10, 12}, // too few samples
		})
		Expect(anomalies).To(HaveLen(1))
		Expect(anomalies[0].DeviceID).To(Equal("tablet_a"))
		Expect(anomalies[0].Type).To(Equal("LOW_BATTERY_PATTERN"))
		Expect(anomalies[0].AverageBattery).To(Equal(21.0))
		Expect(anomalies[0].Severity).To(Equal("HIGH"))
	})
})

var _ = Describe("Recommendations", func() {
	cfg := DefaultConfig()

	It("should escalate a critical rate and priced loss together", func() {
		analysis := &TimeoutAnalysis{
			TimeoutRatePct: 25,
			Impact:         BusinessImpact{ProductivityLossHours: 7.5},
		}
		recs := cfg.Recommend(analysis)
		Expect(recs).To(HaveLen(2))
		Expect(recs[0].Priority).To(Equal("CRITICAL"))
		Expect(recs[0].Category).To(Equal("System Configuration"))
		Expect(recs[1].Category).To(Equal("Business Process"))
	})

	It("should call out peak hours and problem devices", func() {
		analysis := &TimeoutAnalysis{
			TimeoutRatePct: 2,
			HourlyPatterns: []HourPattern{
				{Hour: 14, BusinessSamples: 12, TimeoutRatePct: 18},
			},
			DeviceImpact: []DeviceImpact{
				{DeviceID: "tablet_a", TimeoutRatePct: 25},
				{DeviceID: "tablet_b", TimeoutRatePct: 3},
			},
		}
		recs := cfg.Recommend(analysis)
		Expect(recs).To(HaveLen(2))
		Expect(recs[0].Issue).To(ContainSubstring("14:00"))
		Expect(recs[1].Issue).To(ContainSubstring("1 devices"))
	})

	It("should return an empty list on a quiet fleet", func() {
		Expect(cfg.Recommend(&TimeoutAnalysis{})).To(BeEmpty())
	})
})
