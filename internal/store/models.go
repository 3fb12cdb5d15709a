// Package store provides the storage abstraction for telemetry: a uniform
// query/execute contract over a preferred networked PostgreSQL backend, an
// embedded SQLite fallback, and an in-memory stub that keeps the service
// answering when no durable storage is reachable.
package store

import "time"

// Device is the registry row for one physical tablet. It is the only
// mutable entity: every ingestion advances last_seen and merges non-null
// fields, and the counters only ever move by relative increments.
// Optional columns are pointers so a merge never overwrites a known value
// with an absent one.
type Device struct {
	DeviceID       string    `gorm:"primaryKey;size:50"`
	DeviceName     *string   `gorm:"size:100"`
	Location       *string   `gorm:"size:100"`
	AndroidVersion *string   `gorm:"size:50"`
	AppVersion     *string   `gorm:"size:50"`
	FirstSeen      time.Time `gorm:"autoCreateTime"`
	LastSeen       time.Time `gorm:"index:idx_device_registry_last_seen"`
	IsActive       bool      `gorm:"default:true"`
	TotalSessions  int       `gorm:"not null;default:0"`
	TotalTimeouts  int       `gorm:"not null;default:0"`
}

// TableName specifies the table name for the Device model.
func (Device) TableName() string {
	return "device_registry"
}

// DeviceMetric is one immutable battery/memory/storage/CPU sample.
type DeviceMetric struct {
	ID                 uint   `gorm:"primaryKey"`
	DeviceID           string `gorm:"size:50;not null;index:idx_device_metrics_device_time,priority:1"`
	BatteryLevel       *int
	BatteryTemperature *float64
	MemoryAvailable    *int64
	MemoryTotal        *int64
	StorageAvailable   *int64
	CPUUsage           *float64
	Timestamp          time.Time `gorm:"not null;index:idx_device_metrics_device_time,priority:2"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for the DeviceMetric model.
func (DeviceMetric) TableName() string {
	return "device_metrics"
}

// NetworkMetric is one immutable connectivity sample.
type NetworkMetric struct {
	ID                 uint    `gorm:"primaryKey"`
	DeviceID           string  `gorm:"size:50;not null;index:idx_network_metrics_device_time,priority:1"`
	WifiSignalStrength *int
	WifiSSID           *string `gorm:"column:wifi_ssid;size:100"`
	ConnectivityStatus string  `gorm:"size:20;not null;index:idx_network_connectivity"`
	NetworkType        *string `gorm:"size:50"`
	IPAddress          *string `gorm:"size:45"`
	DNSResponseTime    *float64
	DataUsageMB        *float64
	Timestamp          time.Time `gorm:"not null;index:idx_network_metrics_device_time,priority:2"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for the NetworkMetric model.
func (NetworkMetric) TableName() string {
	return "network_metrics"
}

// AppMetric is one immutable foreground-application sample.
type AppMetric struct {
	ID                   uint    `gorm:"primaryKey"`
	DeviceID             string  `gorm:"size:50;not null;index:idx_app_metrics_device_time,priority:1"`
	ScreenState          string  `gorm:"size:20;not null"`
	AppForeground        *string `gorm:"size:200"`
	AppMemoryUsage       *int64
	ScreenTimeoutSetting *int
	LastUserInteraction  *time.Time
	NotificationCount    *int
	AppCrashes           *int
	Timestamp            time.Time `gorm:"not null;index:idx_app_metrics_device_time,priority:2"`
	CreatedAt            time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for the AppMetric model.
func (AppMetric) TableName() string {
	return "app_metrics"
}

// SessionEvent is one immutable session lifecycle occurrence.
type SessionEvent struct {
	ID           uint    `gorm:"primaryKey"`
	DeviceID     string  `gorm:"size:50;not null;index:idx_session_events_device_time,priority:1"`
	EventType    string  `gorm:"size:30;not null;index:idx_session_events_type"`
	SessionID    *string `gorm:"size:100"`
	Duration     *int
	ErrorMessage *string
	UserID       *string   `gorm:"size:100"`
	AppVersion   *string   `gorm:"size:50"`
	Timestamp    time.Time `gorm:"not null;index:idx_session_events_device_time,priority:2"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for the SessionEvent model.
func (SessionEvent) TableName() string {
	return "session_events"
}
