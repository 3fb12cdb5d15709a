package telemetry

import "fmt"

// Field length limits mirror the registry schema's column widths.
const (
	MaxDeviceIDLen     = 50
	MaxDeviceNameLen   = 100
	MaxLocationLen     = 100
	MaxVersionLen      = 50
	MaxSSIDLen         = 100
	MaxForegroundLen   = 200
	MaxSessionIDLen    = 100
	MaxErrorMessageLen = 500
	MaxUserIDLen       = 100
	MaxRawLogs         = 50
)

// Numeric bounds for sample fields. Out-of-range values are rejected at
// ingestion, never clamped.
const (
	MinBatteryLevel = 0
	MaxBatteryLevel = 100
	MinCPUUsage     = 0.0
	MaxCPUUsage     = 100.0
	MinWifiSignal   = -100
	MaxWifiSignal   = 0
)

// Validate checks the submission against the data model's range and enum
// constraints. It assumes Normalize has already run and returns a
// *ValidationError naming the first offending field, or nil.
func (s *Submission) Validate() error {
	if s.DeviceID == "" {
		return &ValidationError{Field: "device_id", Reason: "must not be empty after normalization"}
	}
	if len(s.DeviceID) > MaxDeviceIDLen {
		return &ValidationError{Field: "device_id", Reason: fmt.Sprintf("must be at most %d characters", MaxDeviceIDLen)}
	}
	if s.DeviceName != nil && len(*s.DeviceName) > MaxDeviceNameLen {
		return &ValidationError{Field: "device_name", Reason: fmt.Sprintf("must be at most %d characters", MaxDeviceNameLen)}
	}
	if s.Location != nil && len(*s.Location) > MaxLocationLen {
		return &ValidationError{Field: "location", Reason: fmt.Sprintf("must be at most %d characters", MaxLocationLen)}
	}
	if s.AndroidVersion != nil && len(*s.AndroidVersion) > MaxVersionLen {
		return &ValidationError{Field: "android_version", Reason: fmt.Sprintf("must be at most %d characters", MaxVersionLen)}
	}
	if s.AppVersion != nil && len(*s.AppVersion) > MaxVersionLen {
		return &ValidationError{Field: "app_version", Reason: fmt.Sprintf("must be at most %d characters", MaxVersionLen)}
	}
	if len(s.RawLogs) > MaxRawLogs {
		return &ValidationError{Field: "raw_logs", Reason: fmt.Sprintf("must contain at most %d entries", MaxRawLogs)}
	}

	if s.DeviceMetrics != nil {
		if err := s.DeviceMetrics.validate(); err != nil {
			return err
		}
	}
	if s.NetworkMetrics != nil {
		if err := s.NetworkMetrics.validate(); err != nil {
			return err
		}
	}
	if s.AppMetrics != nil {
		if err := s.AppMetrics.validate(); err != nil {
			return err
		}
	}
	for i := range s.SessionEvents {
		if err := s.SessionEvents[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *DeviceMetrics) validate() error {
	if m.BatteryLevel != nil && (*m.BatteryLevel < MinBatteryLevel || *m.BatteryLevel > MaxBatteryLevel) {
		return &ValidationError{Field: "device_metrics.battery_level", Reason: "must be between 0 and 100"}
	}
	if m.MemoryAvailable != nil && *m.MemoryAvailable < 0 {
		return &ValidationError{Field: "device_metrics.memory_available", Reason: "must not be negative"}
	}
	if m.MemoryTotal != nil && *m.MemoryTotal < 0 {
		return &ValidationError{Field: "device_metrics.memory_total", Reason: "must not be negative"}
	}
	if m.StorageAvailable != nil && *m.StorageAvailable < 0 {
		return &ValidationError{Field: "device_metrics.storage_available", Reason: "must not be negative"}
	}
	if m.CPUUsage != nil && (*m.CPUUsage < MinCPUUsage || *m.CPUUsage > MaxCPUUsage) {
		return &ValidationError{Field: "device_metrics.cpu_usage", Reason: "must be between 0 and 100"}
	}
	return nil
}

func (m *NetworkMetrics) validate() error {
	if m.WifiSignalStrength != nil && (*m.WifiSignalStrength < MinWifiSignal || *m.WifiSignalStrength > MaxWifiSignal) {
		return &ValidationError{Field: "network_metrics.wifi_signal_strength", Reason: "must be between -100 and 0 dBm"}
	}
	if m.WifiSSID != nil && len(*m.WifiSSID) > MaxSSIDLen {
		return &ValidationError{Field: "network_metrics.wifi_ssid", Reason: fmt.Sprintf("must be at most %d characters", MaxSSIDLen)}
	}
	if !m.ConnectivityStatus.Valid() {
		return &ValidationError{Field: "network_metrics.connectivity_status", Reason: "must be one of online, offline, limited, unknown"}
	}
	if m.DNSResponseTime != nil && *m.DNSResponseTime < 0 {
		return &ValidationError{Field: "network_metrics.dns_response_time", Reason: "must not be negative"}
	}
	if m.DataUsageMB != nil && *m.DataUsageMB < 0 {
		return &ValidationError{Field: "network_metrics.data_usage_mb", Reason: "must not be negative"}
	}
	return nil
}

func (m *AppMetrics) validate() error {
	if !m.ScreenState.Valid() {
		return &ValidationError{Field: "app_metrics.screen_state", Reason: "must be one of active, locked, dimmed, off"}
	}
	if m.AppForeground != nil && len(*m.AppForeground) > MaxForegroundLen {
		return &ValidationError{Field: "app_metrics.app_foreground", Reason: fmt.Sprintf("must be at most %d characters", MaxForegroundLen)}
	}
	if m.AppMemoryUsage != nil && *m.AppMemoryUsage < 0 {
		return &ValidationError{Field: "app_metrics.app_memory_usage", Reason: "must not be negative"}
	}
	if m.ScreenTimeoutSetting != nil && *m.ScreenTimeoutSetting < 0 {
		return &ValidationError{Field: "app_metrics.screen_timeout_setting", Reason: "must not be negative"}
	}
	if m.NotificationCount != nil && *m.NotificationCount < 0 {
		return &ValidationError{Field: "app_metrics.notification_count", Reason: "must not be negative"}
	}
	if m.AppCrashes != nil && *m.AppCrashes < 0 {
		return &ValidationError{Field: "app_metrics.app_crashes", Reason: "must not be negative"}
	}
	return nil
}

func (e *SessionEvent) validate() error {
	if !e.EventType.Valid() {
		return &ValidationError{Field: "session_events.event_type", Reason: "unknown event type"}
	}
	if len(e.SessionID) > MaxSessionIDLen {
		return &ValidationError{Field: "session_events.session_id", Reason: fmt.Sprintf("must be at most %d characters", MaxSessionIDLen)}
	}
	if e.Duration != nil && *e.Duration < 0 {
		return &ValidationError{Field: "session_events.duration", Reason: "must not be negative"}
	}
	if len(e.ErrorMessage) > MaxErrorMessageLen {
		return &ValidationError{Field: "session_events.error_message", Reason: fmt.Sprintf("must be at most %d characters", MaxErrorMessageLen)}
	}
	if len(e.UserID) > MaxUserIDLen {
		return &ValidationError{Field: "session_events.user_id", Reason: fmt.Sprintf("must be at most %d characters", MaxUserIDLen)}
	}
	if len(e.AppVersion) > MaxVersionLen {
		return &ValidationError{Field: "session_events.app_version", Reason: fmt.Sprintf("must be at most %d characters", MaxVersionLen)}
	}
	return nil
}
