package store

import (
	"context"
	"time"
)

// Backend identifies which storage backend a Store is running on.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendNone     Backend = "none"
)

// Health is the storage health classification the health endpoint reports.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Querier is the uniform read/write contract every backend satisfies.
// Queries are written in portable SQL with ? placeholders; the backend
// driver handles dialect translation.
type Querier interface {
	// Fetch runs a query and scans all rows into dest (a pointer to a
	// slice of structs or scalars).
	Fetch(ctx context.Context, dest any, query string, args ...any) error
	// FetchOne runs a query expected to yield at most one row. It reports
	// whether a row was found; dest is untouched when it was not.
	FetchOne(ctx context.Context, dest any, query string, args ...any) (bool, error)
	// FetchScalar runs a query yielding a single value.
	FetchScalar(ctx context.Context, dest any, query string, args ...any) (bool, error)
	// Execute runs a statement and returns the number of affected rows.
	Execute(ctx context.Context, stmt string, args ...any) (int64, error)
}

// Store is the storage abstraction injected into the gateway, the
// analytics engine, and the HTTP handlers. Implementations must be safe
// for concurrent use.
type Store interface {
	Querier

	// Backend reports which backend this store was opened on.
	Backend() Backend
	// Ping verifies current reachability of the backend.
	Ping(ctx context.Context) error
	// Health classifies the store for the health endpoint. It never
	// returns an error; unreachable storage is a status, not a fault.
	Health(ctx context.Context) Health

	// Transaction runs fn inside one transaction; fn's store routes all
	// operations through that transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// UpsertDevice inserts the registry row or merges it into the
	// existing one: non-null incoming fields win, absent fields keep the
	// stored value, last_seen always advances, is_active resets to true.
	UpsertDevice(ctx context.Context, dev *Device) error
	// AddDeviceCounters applies relative increments to the registry
	// counters. Increments, never absolute writes, keep concurrent
	// submissions from clobbering each other.
	AddDeviceCounters(ctx context.Context, deviceID string, sessions, timeouts int) error
	// GetDevice looks up one registry row by normalized id.
	GetDevice(ctx context.Context, deviceID string) (*Device, bool, error)
	// ListDevices returns all registry rows ordered by last_seen
	// descending.
	ListDevices(ctx context.Context) ([]Device, error)

	InsertDeviceMetric(ctx context.Context, m *DeviceMetric) error
	InsertNetworkMetric(ctx context.Context, m *NetworkMetric) error
	InsertAppMetric(ctx context.Context, m *AppMetric) error
	InsertSessionEvent(ctx context.Context, e *SessionEvent) error

	// Close releases the underlying connections.
	Close() error
}

// WindowStart returns the inclusive lower bound for a lookback window of
// whole hours ending at now. Query code shares it so every stream is cut
// at the same instant.
func WindowStart(now time.Time, hours int) time.Time {
	if hours <= 0 {
		hours = 24
	}
	return now.Add(-time.Duration(hours) * time.Hour)
}
