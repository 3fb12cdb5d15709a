package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresConfig holds the connection parameters for the preferred
// networked backend. An empty Host disables the backend entirely.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the keyword/value connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Config holds the configuration for opening the storage abstraction.
type Config struct {
	Logger *slog.Logger

	// Postgres is the preferred backend; tried first with bounded retry.
	Postgres PostgresConfig
	// SQLitePath is the embedded fallback database file. Empty disables
	// the fallback and degrades straight to the in-memory stub.
	SQLitePath string

	// Bounded retry against the preferred backend.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Connection pool bounds.
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Retry and pool defaults applied when the config leaves them zero.
const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultMaxIdleConns   = 10
	defaultMaxOpenConns   = 100
	defaultConnLifetime   = time.Hour
)

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = defaultConnLifetime
	}
}

// Open selects a backend at startup: PostgreSQL with bounded exponential
// backoff, then the embedded SQLite fallback, then the in-memory stub.
// It only returns an error for an invalid config; backend exhaustion
// degrades instead of failing startup, so the service stays reachable.
func Open(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("store config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	cfg.applyDefaults()

	if cfg.Postgres.Host != "" {
		st, err := openPostgres(ctx, cfg)
		if err == nil {
			cfg.Logger.Info("storage backend selected", "backend", BackendPostgres)
			return st, nil
		}
		cfg.Logger.Error("preferred storage backend unavailable, falling back",
			"error", err,
			"attempts", cfg.MaxAttempts,
		)
	}

	if cfg.SQLitePath != "" {
		st, err := openSQLite(cfg)
		if err == nil {
			cfg.Logger.Warn("running on embedded fallback storage",
				"backend", BackendSQLite,
				"path", cfg.SQLitePath,
			)
			return st, nil
		}
		cfg.Logger.Error("embedded fallback storage unavailable", "error", err)
	}

	cfg.Logger.Error("no durable storage available, serving empty results")
	return newNullStore(cfg.Logger), nil
}

// openPostgres dials the preferred backend with capped exponential
// backoff, honoring context cancellation between attempts.
func openPostgres(ctx context.Context, cfg *Config) (Store, error) {
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		cfg.Logger.Info("connecting to database",
			"host", cfg.Postgres.Host,
			"port", cfg.Postgres.Port,
			"dbname", cfg.Postgres.DBName,
			"attempt", attempt,
		)

		st, err := openGorm(postgres.Open(cfg.Postgres.DSN()), BackendPostgres, cfg)
		if err == nil {
			return st, nil
		}
		lastErr = err
		cfg.Logger.Warn("database connection failed, retrying",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return nil, fmt.Errorf("exhausted %d connection attempts: %w", cfg.MaxAttempts, lastErr)
}

func openSQLite(cfg *Config) (Store, error) {
	st, err := openGorm(sqlite.Open(cfg.SQLitePath), BackendSQLite, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite at %s: %w", cfg.SQLitePath, err)
	}
	return st, nil
}

func openGorm(dialector gorm.Dialector, backend Backend, cfg *Config) (Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if backend == BackendSQLite {
		// A shared pool over one file; in-memory databases in particular
		// must not be split across connections.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return newGormStore(db, backend, cfg.Logger), nil
}

// runMigrations creates schema objects idempotently on first successful
// connection to either backend.
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Device{},
		&DeviceMetric{},
		&NetworkMetric{},
		&AppMetric{},
		&SessionEvent{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}
