package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormStore adapts a GORM connection (PostgreSQL or SQLite dialector) to
// the Store contract. The same implementation serves both backends; only
// the dialector differs.
type gormStore struct {
	db      *gorm.DB
	backend Backend
	logger  *slog.Logger
}

func newGormStore(db *gorm.DB, backend Backend, logger *slog.Logger) *gormStore {
	return &gormStore{db: db, backend: backend, logger: logger}
}

func (s *gormStore) Backend() Backend {
	return s.backend
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Health classifies the backend: the preferred backend reachable is
// healthy, the embedded fallback reachable is degraded, anything
// unreachable is unhealthy. Errors become a status, never a fault.
func (s *gormStore) Health(ctx context.Context) Health {
	if err := s.Ping(ctx); err != nil {
		s.logger.Warn("storage ping failed", "backend", s.backend, "error", err)
		return HealthUnhealthy
	}
	if s.backend == BackendPostgres {
		return HealthHealthy
	}
	return HealthDegraded
}

func (s *gormStore) Fetch(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error; err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	return nil
}

func (s *gormStore) FetchOne(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	tx := s.db.WithContext(ctx).Raw(query, args...).Scan(dest)
	if tx.Error != nil {
		return false, fmt.Errorf("fetch one failed: %w", tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

func (s *gormStore) FetchScalar(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	return s.FetchOne(ctx, dest, query, args...)
}

func (s *gormStore) Execute(ctx context.Context, stmt string, args ...any) (int64, error) {
	tx := s.db.WithContext(ctx).Exec(stmt, args...)
	if tx.Error != nil {
		return 0, fmt.Errorf("execute failed: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newGormStore(tx, s.backend, s.logger))
	})
}

// UpsertDevice merges the incoming registry fields into any existing row.
// COALESCE on the excluded row keeps a known value when the submission
// omitted the field; last_seen always takes the incoming value and
// is_active resets to true. The excluded pseudo-table works in both
// PostgreSQL and SQLite upserts.
func (s *gormStore) UpsertDevice(ctx context.Context, dev *Device) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"device_name":     gorm.Expr("COALESCE(excluded.device_name, device_registry.device_name)"),
			"location":        gorm.Expr("COALESCE(excluded.location, device_registry.location)"),
			"android_version": gorm.Expr("COALESCE(excluded.android_version, device_registry.android_version)"),
			"app_version":     gorm.Expr("COALESCE(excluded.app_version, device_registry.app_version)"),
			"last_seen":       gorm.Expr("excluded.last_seen"),
			"is_active":       true,
		}),
	}).Create(dev).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", dev.DeviceID, err)
	}
	return nil
}

func (s *gormStore) AddDeviceCounters(ctx context.Context, deviceID string, sessions, timeouts int) error {
	if sessions == 0 && timeouts == 0 {
		return nil
	}
	_, err := s.Execute(ctx,
		"UPDATE device_registry SET total_sessions = total_sessions + ?, total_timeouts = total_timeouts + ? WHERE device_id = ?",
		sessions, timeouts, deviceID)
	if err != nil {
		return fmt.Errorf("failed to increment counters for %s: %w", deviceID, err)
	}
	return nil
}

func (s *gormStore) GetDevice(ctx context.Context, deviceID string) (*Device, bool, error) {
	var dev Device
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&dev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to fetch device %s: %w", deviceID, err)
	}
	return &dev, true, nil
}

func (s *gormStore) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := s.db.WithContext(ctx).Order("last_seen DESC").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (s *gormStore) InsertDeviceMetric(ctx context.Context, m *DeviceMetric) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to insert device metric: %w", err)
	}
	return nil
}

func (s *gormStore) InsertNetworkMetric(ctx context.Context, m *NetworkMetric) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to insert network metric: %w", err)
	}
	return nil
}

func (s *gormStore) InsertAppMetric(ctx context.Context, m *AppMetric) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to insert app metric: %w", err)
	}
	return nil
}

func (s *gormStore) InsertSessionEvent(ctx context.Context, e *SessionEvent) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}
	return nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	s.logger.Info("closing database connection", "backend", s.backend)
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
