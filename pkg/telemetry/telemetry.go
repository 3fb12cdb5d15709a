// Package telemetry defines the wire types exchanged between the tablet
// agent and the ingestion gateway, together with their validation rules.
// Every constraint is enforced here, at the boundary; downstream code can
// assume fields are either absent or in range.
package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// ConnectivityStatus describes the device's view of its network link.
type ConnectivityStatus string

const (
	ConnectivityOnline  ConnectivityStatus = "online"
	ConnectivityOffline ConnectivityStatus = "offline"
	ConnectivityLimited ConnectivityStatus = "limited"
	ConnectivityUnknown ConnectivityStatus = "unknown"
)

// Valid reports whether the value is one of the closed connectivity set.
func (c ConnectivityStatus) Valid() bool {
	switch c {
	case ConnectivityOnline, ConnectivityOffline, ConnectivityLimited, ConnectivityUnknown:
		return true
	}
	return false
}

// ScreenState describes the tablet screen at sample time.
type ScreenState string

const (
	ScreenActive ScreenState = "active"
	ScreenLocked ScreenState = "locked"
	ScreenDimmed ScreenState = "dimmed"
	ScreenOff    ScreenState = "off"
)

// Valid reports whether the value is one of the closed screen-state set.
func (s ScreenState) Valid() bool {
	switch s {
	case ScreenActive, ScreenLocked, ScreenDimmed, ScreenOff:
		return true
	}
	return false
}

// EventType is a session lifecycle event category.
type EventType string

const (
	EventLogin        EventType = "login"
	EventLogout       EventType = "logout"
	EventTimeout      EventType = "timeout"
	EventError        EventType = "error"
	EventReconnect    EventType = "reconnect"
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
)

// Valid reports whether the value is one of the closed event-type set.
func (e EventType) Valid() bool {
	switch e {
	case EventLogin, EventLogout, EventTimeout, EventError,
		EventReconnect, EventSessionStart, EventSessionEnd:
		return true
	}
	return false
}

// CountsTowardSessions reports whether the event increments a device's
// total_sessions counter on ingestion.
func (e EventType) CountsTowardSessions() bool {
	return e == EventLogin || e == EventSessionStart
}

// DeviceMetrics is one battery/memory/storage/CPU sample. Optional fields
// are pointers so an absent value is distinguishable from zero.
type DeviceMetrics struct {
	BatteryLevel       *int      `json:"battery_level,omitempty"`
	BatteryTemperature *float64  `json:"battery_temperature,omitempty"`
	MemoryAvailable    *int64    `json:"memory_available,omitempty"`
	MemoryTotal        *int64    `json:"memory_total,omitempty"`
	StorageAvailable   *int64    `json:"storage_available,omitempty"`
	CPUUsage           *float64  `json:"cpu_usage,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// NetworkMetrics is one connectivity sample.
type NetworkMetrics struct {
	WifiSignalStrength *int               `json:"wifi_signal_strength,omitempty"`
	WifiSSID           *string            `json:"wifi_ssid,omitempty"`
	ConnectivityStatus ConnectivityStatus `json:"connectivity_status"`
	NetworkType        *string            `json:"network_type,omitempty"`
	IPAddress          *string            `json:"ip_address,omitempty"`
	DNSResponseTime    *float64           `json:"dns_response_time,omitempty"`
	DataUsageMB        *float64           `json:"data_usage_mb,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
}

// AppMetrics is one foreground-application sample.
type AppMetrics struct {
	ScreenState          ScreenState `json:"screen_state"`
	AppForeground        *string     `json:"app_foreground,omitempty"`
	AppMemoryUsage       *int64      `json:"app_memory_usage,omitempty"`
	ScreenTimeoutSetting *int        `json:"screen_timeout_setting,omitempty"`
	LastUserInteraction  *time.Time  `json:"last_user_interaction,omitempty"`
	NotificationCount    *int        `json:"notification_count,omitempty"`
	AppCrashes           *int        `json:"app_crashes,omitempty"`
	Timestamp            time.Time   `json:"timestamp"`
}

// SessionEvent is a discrete session lifecycle occurrence.
type SessionEvent struct {
	EventType    EventType `json:"event_type"`
	SessionID    string    `json:"session_id,omitempty"`
	Duration     *int      `json:"duration,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	AppVersion   string    `json:"app_version,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Submission is the combined payload a device submits each poll tick:
// registry fields, up to one sample per metric stream, and any session
// events generated during the tick.
type Submission struct {
	DeviceID       string          `json:"device_id"`
	DeviceName     *string         `json:"device_name,omitempty"`
	Location       *string         `json:"location,omitempty"`
	AndroidVersion *string         `json:"android_version,omitempty"`
	AppVersion     *string         `json:"app_version,omitempty"`
	DeviceMetrics  *DeviceMetrics  `json:"device_metrics,omitempty"`
	NetworkMetrics *NetworkMetrics `json:"network_metrics,omitempty"`
	AppMetrics     *AppMetrics     `json:"app_metrics,omitempty"`
	SessionEvents  []SessionEvent  `json:"session_events,omitempty"`
	RawLogs        []string        `json:"raw_logs,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Receipt acknowledges an accepted submission before durable writes finish.
type Receipt struct {
	Status          string       `json:"status"`
	DeviceID        string       `json:"device_id"`
	Timestamp       time.Time    `json:"timestamp"`
	RecordsReceived RecordCounts `json:"records_received"`
}

// RecordCounts reports how many records of each category were accepted.
type RecordCounts struct {
	DeviceMetrics  int `json:"device_metrics"`
	NetworkMetrics int `json:"network_metrics"`
	AppMetrics     int `json:"app_metrics"`
	SessionEvents  int `json:"session_events"`
}

// NormalizeDeviceID canonicalizes a device identifier: surrounding
// whitespace is stripped, the result lower-cased, and interior spaces
// replaced with underscores. The function is idempotent.
func NormalizeDeviceID(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), " ", "_"))
}

// Normalize canonicalizes the device id and fills any zero timestamps with
// now, so every stored row carries the same clock domain.
func (s *Submission) Normalize(now time.Time) {
	s.DeviceID = NormalizeDeviceID(s.DeviceID)

	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}
	if s.DeviceMetrics != nil && s.DeviceMetrics.Timestamp.IsZero() {
		s.DeviceMetrics.Timestamp = now
	}
	if s.NetworkMetrics != nil && s.NetworkMetrics.Timestamp.IsZero() {
		s.NetworkMetrics.Timestamp = now
	}
	if s.AppMetrics != nil && s.AppMetrics.Timestamp.IsZero() {
		s.AppMetrics.Timestamp = now
	}
	for i := range s.SessionEvents {
		if s.SessionEvents[i].Timestamp.IsZero() {
			s.SessionEvents[i].Timestamp = now
		}
	}
}

// Counts returns the per-category record counts for the receipt.
func (s *Submission) Counts() RecordCounts {
	counts := RecordCounts{SessionEvents: len(s.SessionEvents)}
	if s.DeviceMetrics != nil {
		counts.DeviceMetrics = 1
	}
	if s.NetworkMetrics != nil {
		counts.NetworkMetrics = 1
	}
	if s.AppMetrics != nil {
		counts.AppMetrics = 1
	}
	return counts
}

// ValidationError names the first field that violated its constraint.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
