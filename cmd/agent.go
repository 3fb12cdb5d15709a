package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldops.dev/tabletwatch/internal/agent"
	"fieldops.dev/tabletwatch/pkg/metrics"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the on-device agent",
	Long: `Run the tablet agent that:
- Samples battery, network, processes, and motion through Termux
- Detects business-app session-timeout risk from inactivity
- Submits telemetry to the monitoring server each poll interval`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)

	// Agent-specific flags
	agentCmd.Flags().String("server-url", "http://localhost:8080", "monitoring server base URL")
	agentCmd.Flags().String("device-id", "", "device identifier (defaults to the hostname)")
	agentCmd.Flags().String("device-name", "", "human-readable device name")
	agentCmd.Flags().String("location", "", "device location label")
	agentCmd.Flags().String("api-token", "", "bearer token for the monitoring server")
	agentCmd.Flags().Duration("interval", agent.DefaultPollInterval, "poll interval")
	agentCmd.Flags().Float64("motion-threshold", agent.DefaultMotionThreshold, "accelerometer magnitude counted as interaction")
	agentCmd.Flags().Duration("inactivity-timeout", agent.DefaultInactivityTimeout, "inactivity before a business session is at risk")
	agentCmd.Flags().Duration("sample-timeout", 10*time.Second, "per-probe command timeout")
	agentCmd.Flags().Int("metrics-port", 0, "expose Prometheus metrics on this port (0 disables)")

	// Bind flags to viper
	_ = viper.BindPFlag("agent.server.url", agentCmd.Flags().Lookup("server-url"))
	_ = viper.BindPFlag("agent.device.id", agentCmd.Flags().Lookup("device-id"))
	_ = viper.BindPFlag("agent.device.name", agentCmd.Flags().Lookup("device-name"))
	_ = viper.BindPFlag("agent.device.location", agentCmd.Flags().Lookup("location"))
	_ = viper.BindPFlag("agent.api.token", agentCmd.Flags().Lookup("api-token"))
	_ = viper.BindPFlag("agent.interval", agentCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("agent.motion.threshold", agentCmd.Flags().Lookup("motion-threshold"))
	_ = viper.BindPFlag("agent.inactivity.timeout", agentCmd.Flags().Lookup("inactivity-timeout"))
	_ = viper.BindPFlag("agent.sample.timeout", agentCmd.Flags().Lookup("sample-timeout"))
	_ = viper.BindPFlag("agent.metrics.port", agentCmd.Flags().Lookup("metrics-port"))
}

func runAgent(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting tablet agent service")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deviceID := viper.GetString("agent.device.id")
	if deviceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			logger.Error("failed to derive device id from hostname", "error", err)
			return err
		}
		deviceID = hostname
	}

	var agentMetrics *metrics.AgentMetrics
	if port := viper.GetInt("agent.metrics.port"); port > 0 {
		agentMetrics = metrics.NewAgentMetrics("tabletwatch")
		go serveMetrics(ctx, logger, port)
	}

	submitter, err := agent.NewSubmitter(&agent.SubmitterConfig{
		Logger:    logger,
		ServerURL: viper.GetString("agent.server.url"),
		Token:     viper.GetString("agent.api.token"),
		Metrics:   agentMetrics,
	})
	if err != nil {
		logger.Error("failed to create submitter", "error", err)
		return err
	}

	runner, err := agent.NewRunner(&agent.RunnerConfig{
		Logger:            logger,
		Sampler:           agent.NewTermuxSampler(logger, viper.GetDuration("agent.sample.timeout"), agentMetrics),
		Submitter:         submitter,
		Metrics:           agentMetrics,
		DeviceID:          deviceID,
		DeviceName:        viper.GetString("agent.device.name"),
		Location:          viper.GetString("agent.device.location"),
		Interval:          viper.GetDuration("agent.interval"),
		MotionThreshold:   viper.GetFloat64("agent.motion.threshold"),
		InactivityTimeout: viper.GetDuration("agent.inactivity.timeout"),
	})
	if err != nil {
		logger.Error("failed to create agent runner", "error", err)
		return err
	}

	logger.Info("tablet agent configuration",
		"device_id", deviceID,
		"server_url", viper.GetString("agent.server.url"),
		"interval", viper.GetDuration("agent.interval"),
	)

	runner.Run(ctx)

	logger.Info("tablet agent stopped")
	return nil
}

// serveMetrics exposes the Prometheus registry on its own listener for
// services that have no HTTP surface of their own.
func serveMetrics(ctx context.Context, logger *slog.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", "error", err)
	}
}
