package store

import (
	"context"
	"log/slog"
)

// nullStore is the ultimate fallback when neither PostgreSQL nor SQLite
// could be opened. Reads answer empty, writes succeed as no-ops, so the
// service stays reachable and health checks stay informative under total
// storage loss. Nothing persists in this mode.
type nullStore struct {
	logger *slog.Logger
}

func newNullStore(logger *slog.Logger) *nullStore {
	return &nullStore{logger: logger}
}

func (s *nullStore) Backend() Backend { return BackendNone }

func (s *nullStore) Ping(context.Context) error { return nil }

func (s *nullStore) Health(context.Context) Health { return HealthDegraded }

func (s *nullStore) Fetch(context.Context, any, string, ...any) error { return nil }

func (s *nullStore) FetchOne(context.Context, any, string, ...any) (bool, error) {
	return false, nil
}

func (s *nullStore) FetchScalar(context.Context, any, string, ...any) (bool, error) {
	return false, nil
}

func (s *nullStore) Execute(context.Context, string, ...any) (int64, error) { return 0, nil }

func (s *nullStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	return fn(s)
}

func (s *nullStore) UpsertDevice(_ context.Context, dev *Device) error {
	s.logger.Debug("discarding device upsert, no storage backend", "device_id", dev.DeviceID)
	return nil
}

func (s *nullStore) AddDeviceCounters(context.Context, string, int, int) error { return nil }

func (s *nullStore) GetDevice(context.Context, string) (*Device, bool, error) {
	return nil, false, nil
}

func (s *nullStore) ListDevices(context.Context) ([]Device, error) { return nil, nil }

func (s *nullStore) InsertDeviceMetric(context.Context, *DeviceMetric) error { return nil }

func (s *nullStore) InsertNetworkMetric(context.Context, *NetworkMetric) error { return nil }

func (s *nullStore) InsertAppMetric(context.Context, *AppMetric) error { return nil }

func (s *nullStore) InsertSessionEvent(context.Context, *SessionEvent) error { return nil }

func (s *nullStore) Close() error { return nil }

// NewNull returns the in-memory stub store. Exposed for tests and for the
// degraded-mode path in Open.
func NewNull(logger *slog.Logger) Store {
	return newNullStore(logger)
}
