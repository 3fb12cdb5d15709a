package analytics

import (
	"context"
	"fmt"
	"time"

	"fieldops.dev/tabletwatch/internal/store"
	"fieldops.dev/tabletwatch/pkg/liveness"
)

// DeviceStatus is one row of the fleet list: registry identity, liveness,
// and the latest sample of each stream with the derived activity flags.
type DeviceStatus struct {
	DeviceID      string          `json:"device_id"`
	DeviceName    *string         `json:"device_name,omitempty"`
	Location      *string         `json:"location,omitempty"`
	Status        liveness.Status `json:"status"`
	LastSeen      time.Time       `json:"last_seen"`
	TotalSessions int             `json:"total_sessions"`
	TotalTimeouts int             `json:"total_timeouts"`

	BatteryLevel   *int    `json:"battery_level,omitempty"`
	SignalStrength *int    `json:"signal_strength,omitempty"`
	Connectivity   string  `json:"connectivity,omitempty"`
	ForegroundApp  *string `json:"foreground_app,omitempty"`
	ScreenState    string  `json:"screen_state,omitempty"`

	BusinessActive bool `json:"business_active"`
	ScannerActive  bool `json:"scanner_active"`
	TimeoutRisk    bool `json:"timeout_risk"`
}

// fleetRow is the registry slice the fleet list reads.
type fleetRow struct {
	DeviceID      string
	DeviceName    *string
	Location      *string
	LastSeen      time.Time
	TotalSessions int
	TotalTimeouts int
}

// FleetDevices lists every registered device with its liveness label and
// the freshest sample of each stream. The fleet list uses the coarse
// threshold pair, so anything seen within the hour still shows as warning
// rather than offline.
func (e *Engine) FleetDevices(ctx context.Context) ([]DeviceStatus, error) {
	now := time.Now().UTC()

	var registry []fleetRow
	if err := e.q.Fetch(ctx, &registry, `
		SELECT device_id, device_name, location, last_seen, total_sessions, total_timeouts
		FROM device_registry
		ORDER BY last_seen DESC`); err != nil {
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

	var latestNetwork []networkSample
	if err := e.q.Fetch(ctx, &latestNetwork, `
		SELECT nm.device_id, nm.wifi_signal_strength, nm.connectivity_status, nm.wifi_ssid, nm.timestamp
		FROM network_metrics nm
		JOIN (
			SELECT device_id, MAX(timestamp) AS ts
			FROM network_metrics
			GROUP BY device_id
		) last ON nm.device_id = last.device_id AND nm.timestamp = last.ts`); err != nil {
		return nil, fmt.Errorf("failed to read latest network metrics: %w", err)
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

	batteryByDevice := map[string]batterySample{}
	for _, b := range latestBattery {
		batteryByDevice[b.DeviceID] = b
	}
	networkByDevice := map[string]networkSample{}
	for _, n := range latestNetwork {
		networkByDevice[n.DeviceID] = n
	}
	appByDevice := map[string]appSample{}
	for _, a := range latestApp {
		appByDevice[a.DeviceID] = a
	}

	devices := make([]DeviceStatus, 0, len(registry))
	for _, r := range registry {
		d := DeviceStatus{
			DeviceID:      r.DeviceID,
			DeviceName:    r.DeviceName,
			Location:      r.Location,
			Status:        liveness.Classify(now, r.LastSeen, e.cfg.FleetLiveness),
			LastSeen:      r.LastSeen,
			TotalSessions: r.TotalSessions,
			TotalTimeouts: r.TotalTimeouts,
		}
		if b, ok := batteryByDevice[r.DeviceID]; ok {
			d.BatteryLevel = b.BatteryLevel
		}
		if n, ok := networkByDevice[r.DeviceID]; ok {
			d.SignalStrength = n.WifiSignalStrength
			d.Connectivity = n.ConnectivityStatus
		}
		if a, ok := appByDevice[r.DeviceID]; ok {
			d.ForegroundApp = a.AppForeground
			d.ScreenState = a.ScreenState
			d.BusinessActive = e.cfg.businessActive(a)
			d.ScannerActive = e.cfg.scannerActive(a)
			d.TimeoutRisk = e.cfg.idleRisk(a, now)
		}
		devices = append(devices, d)
	}

	return devices, nil
}

// DeviceHistory is the merged per-device sample history of one window.
type DeviceHistory struct {
	DeviceID       string         `json:"device_id"`
	WindowHours    int            `json:"window_hours"`
	DeviceMetrics  []BatteryPoint `json:"device_metrics"`
	NetworkMetrics []NetworkPoint `json:"network_metrics"`
	AppMetrics     []AppPoint     `json:"app_metrics"`
	SessionEvents  []EventPoint   `json:"session_events"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// BatteryPoint is one device-metric sample in a history response.
type BatteryPoint struct {
	BatteryLevel *int      `json:"battery_level,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NetworkPoint is one network sample in a history response.
type NetworkPoint struct {
	WifiSignalStrength *int      `json:"wifi_signal_strength,omitempty"`
	ConnectivityStatus string    `json:"connectivity_status"`
	WifiSSID           *string   `json:"wifi_ssid,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// AppPoint is one app sample in a history response.
type AppPoint struct {
	AppForeground       *string    `json:"app_foreground,omitempty"`
	ScreenState         string     `json:"screen_state"`
	LastUserInteraction *time.Time `json:"last_user_interaction,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
}

// EventPoint is one session event in a history response.
type EventPoint struct {
	EventType string    `json:"event_type"`
	Duration  *int      `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceHistory returns the raw sample history of one device over the
// trailing window, every stream cut at the same instant, newest first.
func (e *Engine) DeviceHistory(ctx context.Context, deviceID string, windowHours int) (*DeviceHistory, error) {
	now := time.Now().UTC()
	since := store.WindowStart(now, windowHours)

	var batteries []batterySample
	if err := e.q.Fetch(ctx, &batteries,
		"SELECT device_id, battery_level, timestamp FROM device_metrics WHERE device_id = ? AND timestamp >= ? ORDER BY timestamp DESC",
		deviceID, since); err != nil {
		return nil, fmt.Errorf("failed to read device metrics for %s: %w", deviceID, err)
	}

	var networks []networkSample
	if err := e.q.Fetch(ctx, &networks,
		"SELECT device_id, wifi_signal_strength, connectivity_status, wifi_ssid, timestamp FROM network_metrics WHERE device_id = ? AND timestamp >= ? ORDER BY timestamp DESC",
		deviceID, since); err != nil {
		return nil, fmt.Errorf("failed to read network metrics for %s: %w", deviceID, err)
	}

	var apps []appSample
	if err := e.q.Fetch(ctx, &apps,
		"SELECT device_id, app_foreground, screen_state, last_user_interaction, timestamp FROM app_metrics WHERE device_id = ? AND timestamp >= ? ORDER BY timestamp DESC",
		deviceID, since); err != nil {
		return nil, fmt.Errorf("failed to read app metrics for %s: %w", deviceID, err)
	}

	var events []eventSample
	if err := e.q.Fetch(ctx, &events,
		"SELECT device_id, event_type, duration, timestamp FROM session_events WHERE device_id = ? AND timestamp >= ? ORDER BY timestamp DESC",
		deviceID, since); err != nil {
		return nil, fmt.Errorf("failed to read session events for %s: %w", deviceID, err)
	}

	history := &DeviceHistory{
		DeviceID:       deviceID,
		WindowHours:    windowHours,
		DeviceMetrics:  make([]BatteryPoint, 0, len(batteries)),
		NetworkMetrics: make([]NetworkPoint, 0, len(networks)),
		AppMetrics:     make([]AppPoint, 0, len(apps)),
		SessionEvents:  make([]EventPoint, 0, len(events)),
		GeneratedAt:    now,
	}
	for _, b := range batteries {
		history.DeviceMetrics = append(history.DeviceMetrics, BatteryPoint{
			BatteryLevel: b.BatteryLevel,
			Timestamp:    b.Timestamp,
		})
	}
	for _, n := range networks {
		history.NetworkMetrics = append(history.NetworkMetrics, NetworkPoint{
			WifiSignalStrength: n.WifiSignalStrength,
			ConnectivityStatus: n.ConnectivityStatus,
			WifiSSID:           n.WifiSSID,
			Timestamp:          n.Timestamp,
		})
	}
	for _, a := range apps {
		history.AppMetrics = append(history.AppMetrics, AppPoint{
			AppForeground:       a.AppForeground,
			ScreenState:         a.ScreenState,
			LastUserInteraction: a.LastUserInteraction,
			Timestamp:           a.Timestamp,
		})
	}
	for _, ev := range events {
		history.SessionEvents = append(history.SessionEvents, EventPoint{
			EventType: ev.EventType,
			Duration:  ev.Duration,
			Timestamp: ev.Timestamp,
		})
	}

	return history, nil
}
