package analytics

import "time"

// BatteryStats aggregates battery samples over a window.
type BatteryStats struct {
	Average float64 `json:"average"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
	Samples int     `json:"samples"`
}

// SignalStats aggregates connectivity samples over a window.
type SignalStats struct {
	AverageDBm     float64 `json:"average_dbm"`
	WeakSamples    int     `json:"weak_samples"`
	OfflineSamples int     `json:"offline_samples"`
	Samples        int     `json:"samples"`
	Networks       int     `json:"networks"`
}

// DeviceSummary is the per-device analysis result.
type DeviceSummary struct {
	DeviceID       string         `json:"device_id"`
	WindowHours    int            `json:"window_hours"`
	Battery        BatteryStats   `json:"battery"`
	Signal         SignalStats    `json:"signal"`
	EventCounts    map[string]int `json:"event_counts"`
	SessionCount   int            `json:"session_count"`
	TimeoutCount   int            `json:"timeout_count"`
	TimeoutRatePct float64        `json:"timeout_rate_percent"`
	LastActivity   time.Time      `json:"last_activity"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// FleetSummary is the whole-fleet snapshot served to dashboards and
// broadcast to downstream collaborators.
type FleetSummary struct {
	TotalDevices   int       `json:"total_devices"`
	OnlineDevices  int       `json:"online_devices"`
	AvgBattery     float64   `json:"avg_battery"`
	BusinessActive int       `json:"business_active"`
	ScannerActive  int       `json:"scanner_active"`
	TimeoutRisks   int       `json:"timeout_risks"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// HourPattern is one hour-of-day bucket of business activity vs timeouts.
type HourPattern struct {
	Hour            int     `json:"hour"`
	BusinessSamples int     `json:"business_samples"`
	TimeoutRisks    int     `json:"timeout_risks"`
	Timeouts        int     `json:"timeouts"`
	TimeoutRatePct  float64 `json:"timeout_rate_percent"`
}

// DeviceImpact ranks one device inside a timeout analysis.
type DeviceImpact struct {
	DeviceID        string    `json:"device_id"`
	DeviceName      string    `json:"device_name,omitempty"`
	Location        string    `json:"location,omitempty"`
	BusinessSamples int       `json:"business_samples"`
	TimeoutRisks    int       `json:"timeout_risks"`
	Timeouts        int       `json:"timeouts"`
	TimeoutRatePct  float64   `json:"timeout_rate_percent"`
	LastActivity    time.Time `json:"last_activity"`
}

// BusinessImpact prices the measured timeouts in operational terms.
type BusinessImpact struct {
	ProductivityLossHours float64 `json:"productivity_loss_hours"`
	AffectedDevices       int     `json:"affected_devices"`
	DailyTimeoutIncidents float64 `json:"daily_timeout_incidents"`
	EfficiencyScore       float64 `json:"efficiency_score"`
	RiskLevel             string  `json:"risk_level"`
}

// TimeoutAnalysis is the full business-app timeout report.
type TimeoutAnalysis struct {
	WindowHours     int              `json:"analysis_period_hours"`
	BusinessSamples int              `json:"business_samples"`
	TimeoutRisks    int              `json:"timeout_risk_samples"`
	Timeouts        int              `json:"actual_timeouts"`
	TimeoutRatePct  float64          `json:"timeout_rate_percent"`
	HourlyPatterns  []HourPattern    `json:"hourly_patterns"`
	DeviceImpact    []DeviceImpact   `json:"device_impact"`
	Impact          BusinessImpact   `json:"business_impact"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Recommendation is one actionable finding, the structured record an
// external insight collaborator returns.
type Recommendation struct {
	Priority       string `json:"priority"`
	Category       string `json:"category"`
	Issue          string `json:"issue"`
	Recommendation string `json:"recommendation"`
	ExpectedImpact string `json:"expected_impact"`
	Implementation string `json:"implementation"`
}

// Anomaly flags a device exhibiting a known failure pattern.
type Anomaly struct {
	Type           string  `json:"type"`
	DeviceID       string  `json:"device_id"`
	AverageBattery float64 `json:"average_battery"`
	Severity       string  `json:"severity"`
	Recommendation string  `json:"recommendation"`
}

// TimeoutTrend is the predictive slice of an insight report.
type TimeoutTrend struct {
	CurrentRatePct float64 `json:"current_rate"`
	RiskLevel      string  `json:"risk_level"`
	Prediction     string  `json:"prediction"`
	Confidence     string  `json:"confidence"`
}

// Insights is the statistical pattern report over a window.
type Insights struct {
	WindowHours        int           `json:"analysis_period_hours"`
	DataPoints         int           `json:"data_points_analyzed"`
	ProblemHours       []HourPattern `json:"problem_hours"`
	Trend              *TimeoutTrend `json:"timeout_trend,omitempty"`
	Anomalies          []Anomaly     `json:"anomalies"`
	AvgBatteryBusiness float64       `json:"avg_battery_during_business"`
	GeneratedAt        time.Time     `json:"generated_at"`
}
