package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldops.dev/tabletwatch/internal/simulator"
	"fieldops.dev/tabletwatch/pkg/metrics"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the fleet simulator",
	Long: `Run the fleet simulator that:
- Fabricates a fleet of tablet identities
- Generates plausible telemetry with battery drain, signal jitter,
  and occasional session timeouts
- Submits it to the monitoring server each tick`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	// Simulator-specific flags
	simulatorCmd.Flags().String("server-url", "http://localhost:8080", "monitoring server base URL")
	simulatorCmd.Flags().String("api-token", "", "bearer token for the monitoring server")
	simulatorCmd.Flags().Int("devices", simulator.DefaultDeviceCount, "number of simulated tablets")
	simulatorCmd.Flags().Duration("interval", simulator.DefaultInterval, "simulated poll interval")
	simulatorCmd.Flags().Int("metrics-port", 0, "expose Prometheus metrics on this port (0 disables)")

	// Bind flags to viper
	_ = viper.BindPFlag("simulator.server.url", simulatorCmd.Flags().Lookup("server-url"))
	_ = viper.BindPFlag("simulator.api.token", simulatorCmd.Flags().Lookup("api-token"))
	_ = viper.BindPFlag("simulator.devices", simulatorCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("simulator.metrics.port", simulatorCmd.Flags().Lookup("metrics-port"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting fleet simulator service")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var simMetrics *metrics.SimulatorMetrics
	if port := viper.GetInt("simulator.metrics.port"); port > 0 {
		simMetrics = metrics.NewSimulatorMetrics("tabletwatch")
		go serveMetrics(ctx, logger, port)
	}

	sim, err := simulator.NewSimulator(&simulator.SimulatorConfig{
		Logger:      logger,
		ServerURL:   viper.GetString("simulator.server.url"),
		Token:       viper.GetString("simulator.api.token"),
		DeviceCount: viper.GetInt("simulator.devices"),
		Interval:    viper.GetDuration("simulator.interval"),
		Metrics:     simMetrics,
	})
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	logger.Info("fleet simulator configuration",
		"server_url", viper.GetString("simulator.server.url"),
		"devices", viper.GetInt("simulator.devices"),
		"interval", viper.GetDuration("simulator.interval"),
	)

	sim.Run(ctx)

	logger.Info("fleet simulator stopped")
	return nil
}
