package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldops.dev/tabletwatch/internal/store"
	"fieldops.dev/tabletwatch/pkg/liveness"
)

// registryRow is the slice of device_registry the engine reads.
type registryRow struct {
	DeviceID   string
	DeviceName *string
	Location   *string
	LastSeen   time.Time
}

// Engine computes fleet and per-device analysis over the stored telemetry
// streams. It reads through the uniform query contract, so it serves the
// same answers on PostgreSQL and on the embedded fallback.
type Engine struct {
	logger *slog.Logger
	q      store.Querier
	cfg    Config
}

// EngineConfig holds the configuration for the Engine.
type EngineConfig struct {
	Logger *slog.Logger
	Store  store.Querier
	// Thresholds overrides DefaultConfig when set.
	Thresholds *Config
}

// NewEngine creates a new Engine instance.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	thresholds := DefaultConfig()
	if cfg.Thresholds != nil {
		thresholds = *cfg.Thresholds
	}

	return &Engine{
		logger: cfg.Logger,
		q:      cfg.Store,
		cfg:    thresholds,
	}, nil
}

// Thresholds returns the active analysis configuration.
func (e *Engine) Thresholds() Config {
	return e.cfg
}

// FleetSummary derives the whole-fleet snapshot: registry liveness plus
// the latest sample of each device's battery and foreground app.
func (e *Engine) FleetSummary(ctx context.Context) (*FleetSummary, error) {
	now := time.Now().UTC()

	var registry []registryRow
	if err := e.q.Fetch(ctx, &registry,
		"SELECT device_id, device_name, location, last_seen FROM device_registry"); err != nil {
		return nil, fmt.Errorf("failed to read device registry: %w", err)
	}

	var latestBattery []batterySample
	if err := e.q.Fetch(ctx, &latestBattery, `
		SELECT dm.device_id, dm.battery_level, dm.timestamp
		FROM device_metrics dm
		JOIN (
			SELECT device_id, MAX(timestamp) AS ts
			FROM device_metrics
			GROUP BY device_id
		) last ON dm.device_id = last.device_id AND dm.timestamp = last.ts`); err != nil {
		return nil, fmt.Errorf("failed to read latest device metrics: %w", err)
	}

	var latestApp []appSample
	if err := e.q.Fetch(ctx, &latestApp, `
		SELECT am.device_id, am.app_foreground, am.screen_state, am.last_user_interaction, am.timestamp
		FROM app_metrics am
		JOIN (
			SELECT device_id, MAX(timestamp) AS ts
			FROM app_metrics
			GROUP BY device_id
		) last ON am.device_id = last.device_id AND am.timestamp = last.ts`); err != nil {
		return nil, fmt.Errorf("failed to read latest app metrics: %w", err)
	}

	summary := &FleetSummary{
		TotalDevices: len(registry),
		GeneratedAt:  now,
	}

	for _, dev := range registry {
		if liveness.Classify(now, dev.LastSeen, e.cfg.DeviceLiveness) == liveness.StatusOnline {
			summary.OnlineDevices++
		}
	}

	batterySum, batteryCount := 0, 0
	for _, b := range latestBattery {
		if b.BatteryLevel != nil {
			batterySum += *b.BatteryLevel
			batteryCount++
		}
	}
	if batteryCount > 0 {
		summary.AvgBattery = round1(float64(batterySum) / float64(batteryCount))
	}

	for _, s := range latestApp {
		if e.cfg.businessActive(s) {
			summary.BusinessActive++
		}
		if e.cfg.scannerActive(s) {
			summary.ScannerActive++
		}
		if e.cfg.idleRisk(s, now) {
			summary.TimeoutRisks++
		}
	}

	return summary, nil
}

// DeviceSummary aggregates one device's streams over the trailing window.
func (e *Engine) DeviceSummary(ctx context.Context, deviceID string, windowHours int) (*DeviceSummary, error) {
	now := time.Now().UTC()
	since := store.WindowStart(now, windowHours)

	var batteries []batterySample
	if err := e.q.Fetch(ctx, &batteries,
		"SELECT device_id, battery_level, timestamp FROM device_metrics WHERE device_id = ? AND timestamp >= ?",
		deviceID, since); err != nil {
		return nil, fmt.Errorf("failed to read device metrics for %s: %w", deviceID, err)
	}

	var networks []networkSample
	if err := e.q.Fetch(ctx, &networks,
		"SELECT device_id, wifi_signal_strength, connectivity_status, wifi_ssid, timestamp FROM network_metrics WHERE device_id = ? AND timestamp >= ?",
		deviceID, since); err != nil {
		return nil, fmt.Errorf("failed to read network metrics for %s: %w", deviceID, err)
	}

	var events []eventSample
	if err := e.q.Fetch(ctx, &events,
		"SELECT device_id, event_type, duration, timestamp FROM session_events WHERE device_id = ? AND timestamp >= ?",
		deviceID, since); err != nil {
		return nil, fmt.Errorf("failed to read session events for %s: %w", deviceID, err)
	}

	counts, sessions, timeouts := eventCounts(events)

	summary := &DeviceSummary{
		DeviceID:       deviceID,
		WindowHours:    windowHours,
		Battery:        batteryStats(batteries),
		Signal:         signalStats(networks, e.cfg.WeakSignalDBm),
		EventCounts:    counts,
		SessionCount:   sessions,
		TimeoutCount:   timeouts,
		TimeoutRatePct: ratePct(timeouts, sessions),
		GeneratedAt:    now,
	}

	for _, b := range batteries {
		if b.Timestamp.After(summary.LastActivity) {
			summary.LastActivity = b.Timestamp
		}
	}
	for _, n := range networks {
		if n.Timestamp.After(summary.LastActivity) {
			summary.LastActivity = n.Timestamp
		}
	}
	for _, ev := range events {
		if ev.Timestamp.After(summary.LastActivity) {
			summary.LastActivity = ev.Timestamp
		}
	}

	return summary, nil
}

// TimeoutAnalysis builds the business-app timeout report over the
// trailing window: hourly patterns, per-device impact, priced business
// impact, and the recommendation list.
func (e *Engine) TimeoutAnalysis(ctx context.Context, windowHours int) (*TimeoutAnalysis, error) {
	now := time.Now().UTC()

	apps, events, err := e.windowSamples(ctx, now, windowHours)
	if err != nil {
		return nil, err
	}

	var registry []registryRow
	if err := e.q.Fetch(ctx, &registry,
		"SELECT device_id, device_name, location, last_seen FROM device_registry"); err != nil {
		return nil, fmt.Errorf("failed to read device registry: %w", err)
	}
	names := map[string][2]string{}
	for _, r := range registry {
		meta := [2]string{}
		if r.DeviceName != nil {
			meta[0] = *r.DeviceName
		}
		if r.Location != nil {
			meta[1] = *r.Location
		}
		names[r.DeviceID] = meta
	}

	businessSamples, risks, timeouts := 0, 0, 0
	affected := map[string]struct{}{}
	for _, s := range apps {
		if !e.cfg.businessActive(s) {
			continue
		}
		businessSamples++
		affected[s.DeviceID] = struct{}{}
		if e.cfg.timeoutRisk(s) {
			risks++
		}
	}
	for _, ev := range events {
		if ev.EventType == "timeout" {
			timeouts++
			affected[ev.DeviceID] = struct{}{}
		}
	}

	rate := ratePct(timeouts, businessSamples)
	analysis := &TimeoutAnalysis{
		WindowHours:     windowHours,
		BusinessSamples: businessSamples,
		TimeoutRisks:    risks,
		Timeouts:        timeouts,
		TimeoutRatePct:  rate,
		HourlyPatterns:  e.cfg.hourPatterns(apps, events),
		DeviceImpact:    e.cfg.deviceImpacts(apps, events, names),
		Impact:          e.cfg.businessImpact(timeouts, len(affected), rate, windowHours),
		GeneratedAt:     now,
	}
	analysis.Recommendations = e.cfg.Recommend(analysis)

	return analysis, nil
}

// InsightReport derives the statistical pattern report: problem hours,
// the timeout trend, and low-battery anomalies.
func (e *Engine) InsightReport(ctx context.Context, windowHours int) (*Insights, error) {
	now := time.Now().UTC()

	apps, events, err := e.windowSamples(ctx, now, windowHours)
	if err != nil {
		return nil, err
	}

	since := store.WindowStart(now, windowHours)
	var batteries []batterySample
	if err := e.q.Fetch(ctx, &batteries,
		"SELECT device_id, battery_level, timestamp FROM device_metrics WHERE timestamp >= ?",
		since); err != nil {
		return nil, fmt.Errorf("failed to read device metrics: %w", err)
	}

	report := &Insights{
		WindowHours:  windowHours,
		DataPoints:   len(apps) + len(events) + len(batteries),
		ProblemHours: e.cfg.problemHours(e.cfg.hourPatterns(apps, events)),
		GeneratedAt:  now,
	}

	businessSamples, timeouts := 0, 0
	for _, s := range apps {
		if e.cfg.businessActive(s) {
			businessSamples++
		}
	}
	for _, ev := range events {
		if ev.EventType == "timeout" {
			timeouts++
		}
	}
	if businessSamples > 0 {
		rate := ratePct(timeouts, businessSamples)
		tier := e.cfg.riskTier(rate)
		prediction := "Current timeout rate is manageable"
		switch tier {
		case "CRITICAL":
			prediction = "Immediate intervention required"
		case "HIGH", "MEDIUM":
			prediction = "Timeout incidents likely to increase without action"
		}
		confidence := "MEDIUM"
		if businessSamples > 50 {
			confidence = "HIGH"
		}
		report.Trend = &TimeoutTrend{
			CurrentRatePct: rate,
			RiskLevel:      tier,
			Prediction:     prediction,
			Confidence:     confidence,
		}
	}

	paired := e.cfg.pairBusinessBattery(apps, batteries)
	report.Anomalies = e.cfg.lowBatteryAnomalies(paired)

	pairSum, pairCount := 0, 0
	for _, levels := range paired {
		for _, l := range levels {
			pairSum += l
			pairCount++
		}
	}
	if pairCount > 0 {
		report.AvgBatteryBusiness = round1(float64(pairSum) / float64(pairCount))
	}

	return report, nil
}

// windowSamples reads the fleet-wide app samples and session events of
// the trailing window.
func (e *Engine) windowSamples(ctx context.Context, now time.Time, windowHours int) ([]appSample, []eventSample, error) {
	since := store.WindowStart(now, windowHours)

	var apps []appSample
	if err := e.q.Fetch(ctx, &apps,
		"SELECT device_id, app_foreground, screen_state, last_user_interaction, timestamp FROM app_metrics WHERE timestamp >= ?",
		since); err != nil {
		return nil, nil, fmt.Errorf("failed to read app metrics: %w", err)
	}

	var events []eventSample
	if err := e.q.Fetch(ctx, &events,
		"SELECT device_id, event_type, duration, timestamp FROM session_events WHERE timestamp >= ?",
		since); err != nil {
		return nil, nil, fmt.Errorf("failed to read session events: %w", err)
	}

	return apps, events, nil
}
