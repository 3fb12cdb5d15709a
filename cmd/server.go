package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldops.dev/tabletwatch/internal/analytics"
	"fieldops.dev/tabletwatch/internal/ingest"
	"fieldops.dev/tabletwatch/internal/server"
	"fieldops.dev/tabletwatch/internal/store"
	"fieldops.dev/tabletwatch/pkg/liveness"
	"fieldops.dev/tabletwatch/pkg/metrics"
	"fieldops.dev/tabletwatch/pkg/mq"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the monitoring server",
	Long: `Run the monitoring server that:
- Ingests tablet telemetry over HTTP
- Persists it to PostgreSQL, falling back to embedded SQLite
- Serves fleet, device, and analytics endpoints
- Optionally broadcasts the fleet summary to RabbitMQ`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serverCmd.Flags().String("db-host", "", "PostgreSQL host (empty skips the networked backend)")
	serverCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serverCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	serverCmd.Flags().String("db-password", "", "PostgreSQL password")
	serverCmd.Flags().String("db-name", "tabletwatch", "PostgreSQL database name")
	serverCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serverCmd.Flags().String("sqlite-path", "tabletwatch.db", "SQLite fallback database path")
	serverCmd.Flags().Int("db-max-open-conns", 100, "connection pool upper bound")
	serverCmd.Flags().Int("db-max-idle-conns", 10, "idle connections kept in the pool")
	serverCmd.Flags().Duration("db-conn-max-lifetime", time.Hour, "maximum lifetime of a pooled connection")
	serverCmd.Flags().Duration("liveness-online", liveness.DefaultThresholds().Online, "last-seen age under which a device is online")
	serverCmd.Flags().Duration("liveness-warning", liveness.DefaultThresholds().Warning, "last-seen age under which a device is in warning")
	serverCmd.Flags().Duration("liveness-fleet-warning", liveness.FleetThresholds().Warning, "warning cutoff used by the fleet list")
	serverCmd.Flags().Int("queue-size", ingest.DefaultQueueSize, "persistence queue size")
	serverCmd.Flags().StringSlice("api-tokens", nil, "bearer tokens accepted by the API (empty disables auth)")
	serverCmd.Flags().String("amqp-url", "", "RabbitMQ URL for the fleet summary broadcast (empty disables it)")
	serverCmd.Flags().String("amqp-queue", "fleet-summary", "RabbitMQ queue for the fleet summary broadcast")
	serverCmd.Flags().Duration("broadcast-interval", analytics.DefaultBroadcastInterval, "fleet summary broadcast cadence")

	// Bind flags to viper
	_ = viper.BindPFlag("server.http.port", serverCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("server.db.host", serverCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("server.db.port", serverCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("server.db.user", serverCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("server.db.password", serverCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("server.db.name", serverCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("server.db.sslmode", serverCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("server.sqlite.path", serverCmd.Flags().Lookup("sqlite-path"))
	_ = viper.BindPFlag("server.db.max_open_conns", serverCmd.Flags().Lookup("db-max-open-conns"))
	_ = viper.BindPFlag("server.db.max_idle_conns", serverCmd.Flags().Lookup("db-max-idle-conns"))
	_ = viper.BindPFlag("server.db.conn_max_lifetime", serverCmd.Flags().Lookup("db-conn-max-lifetime"))
	_ = viper.BindPFlag("server.liveness.online", serverCmd.Flags().Lookup("liveness-online"))
	_ = viper.BindPFlag("server.liveness.warning", serverCmd.Flags().Lookup("liveness-warning"))
	_ = viper.BindPFlag("server.liveness.fleet_warning", serverCmd.Flags().Lookup("liveness-fleet-warning"))
	_ = viper.BindPFlag("server.ingest.queue_size", serverCmd.Flags().Lookup("queue-size"))
	_ = viper.BindPFlag("server.api.tokens", serverCmd.Flags().Lookup("api-tokens"))
	_ = viper.BindPFlag("server.amqp.url", serverCmd.Flags().Lookup("amqp-url"))
	_ = viper.BindPFlag("server.amqp.queue", serverCmd.Flags().Lookup("amqp-queue"))
	_ = viper.BindPFlag("server.broadcast.interval", serverCmd.Flags().Lookup("broadcast-interval"))
}

func runServer(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting monitoring service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverMetrics := metrics.NewServerMetrics("tabletwatch")

	st, err := store.Open(ctx, &store.Config{
		Logger: logger,
		Postgres: store.PostgresConfig{
			Host:     viper.GetString("server.db.host"),
			Port:     viper.GetInt("server.db.port"),
			User:     viper.GetString("server.db.user"),
			Password: viper.GetString("server.db.password"),
			DBName:   viper.GetString("server.db.name"),
			SSLMode:  viper.GetString("server.db.sslmode"),
		},
		SQLitePath:      viper.GetString("server.sqlite.path"),
		MaxOpenConns:    viper.GetInt("server.db.max_open_conns"),
		MaxIdleConns:    viper.GetInt("server.db.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("server.db.conn_max_lifetime"),
	})
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		return err
	}

	gateway, err := ingest.NewGateway(&ingest.GatewayConfig{
		Logger:    logger,
		Store:     st,
		QueueSize: viper.GetInt("server.ingest.queue_size"),
		Metrics:   serverMetrics,
	})
	if err != nil {
		logger.Error("failed to create ingestion gateway", "error", err)
		return err
	}

	thresholds := analytics.DefaultConfig()
	thresholds.DeviceLiveness = liveness.Thresholds{
		Online:  viper.GetDuration("server.liveness.online"),
		Warning: viper.GetDuration("server.liveness.warning"),
	}
	thresholds.FleetLiveness = liveness.Thresholds{
		Online:  viper.GetDuration("server.liveness.online"),
		Warning: viper.GetDuration("server.liveness.fleet_warning"),
	}

	engine, err := analytics.NewEngine(&analytics.EngineConfig{
		Logger:     logger,
		Store:      st,
		Thresholds: &thresholds,
	})
	if err != nil {
		logger.Error("failed to create analytics engine", "error", err)
		return err
	}

	// Optional fleet summary broadcast
	if amqpURL := viper.GetString("server.amqp.url"); amqpURL != "" {
		publisher := mq.New(viper.GetString("server.amqp.queue"), amqpURL, logger)
		publisher.SetMetrics(metrics.NewPublisherMetrics("tabletwatch"))
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("failed to close publisher", "error", err)
			}
		}()

		broadcaster, err := analytics.NewBroadcaster(&analytics.BroadcasterConfig{
			Logger:    logger,
			Engine:    engine,
			Publisher: publisher,
			Interval:  viper.GetDuration("server.broadcast.interval"),
		})
		if err != nil {
			logger.Error("failed to create fleet summary broadcaster", "error", err)
			return err
		}
		go broadcaster.Run(ctx)
	}

	srv, err := server.NewServer(&server.ServerConfig{
		Logger:    logger,
		HTTPPort:  viper.GetInt("server.http.port"),
		Store:     st,
		Gateway:   gateway,
		Engine:    engine,
		Metrics:   serverMetrics,
		APITokens: viper.GetStringSlice("server.api.tokens"),
	})
	if err != nil {
		logger.Error("failed to create monitoring server", "error", err)
		return err
	}

	logger.Info("monitoring server configuration",
		"http_port", viper.GetInt("server.http.port"),
		"storage_backend", st.Backend(),
		"queue_size", viper.GetInt("server.ingest.queue_size"),
		"auth_enabled", len(viper.GetStringSlice("server.api.tokens")) > 0,
		"broadcast_enabled", viper.GetString("server.amqp.url") != "",
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("monitoring server error", "error", err)
		return err
	}

	logger.Info("monitoring server stopped")
	return nil
}
