package server

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fieldops.dev/tabletwatch/internal/analytics"
	"fieldops.dev/tabletwatch/internal/ingest"
	"fieldops.dev/tabletwatch/internal/store"
	"fieldops.dev/tabletwatch/pkg/telemetry"
	e2econtainers "fieldops.dev/tabletwatch/test/e2e/testcontainers"
)

func ptr[T any](v T) *T { return &v }

var _ = Describe("Ingestion E2E", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		st        store.Store
		gateway   *ingest.Gateway
		engine    *analytics.Engine
		persisted chan ingest.PersistResult
	)

	// fullSubmission is a complete poll tick: registry fields, one sample
	// per stream, and a session start for a business-app user.
	fullSubmission := func(deviceID string, idle time.Duration) *telemetry.Submission {
		now := time.Now().UTC()
		interaction := now.Add(-idle)
		return &telemetry.Submission{
			DeviceID:       deviceID,
			DeviceName:     ptr("Dock Tablet"),
			Location:       ptr("loading-dock"),
			AndroidVersion: ptr("13"),
			AppVersion:     ptr("tabletwatch_agent_v2"),
			Timestamp:      now,
			DeviceMetrics: &telemetry.DeviceMetrics{
				BatteryLevel:       ptr(72),
				BatteryTemperature: ptr(31.5),
				MemoryAvailable:    ptr(int64(2 << 30)),
				MemoryTotal:        ptr(int64(4 << 30)),
				CPUUsage:           ptr(22.5),
				Timestamp:          now,
			},
			NetworkMetrics: &telemetry.NetworkMetrics{
				WifiSignalStrength: ptr(-55),
				WifiSSID:           ptr("warehouse-1"),
				ConnectivityStatus: telemetry.ConnectivityOnline,
				IPAddress:          ptr("10.0.1.21"),
				DNSResponseTime:    ptr(18.0),
				Timestamp:          now,
			},
			AppMetrics: &telemetry.AppMetrics{
				ScreenState:          telemetry.ScreenActive,
				AppForeground:        ptr("com.myob.accountright"),
				ScreenTimeoutSetting: ptr(300),
				LastUserInteraction:  &interaction,
				Timestamp:            now,
			},
			SessionEvents: []telemetry.SessionEvent{
				{EventType: telemetry.EventSessionStart, SessionID: "e2e-session", Timestamp: now},
			},
		}
	}

	submitAndWait := func(sub *telemetry.Submission) *telemetry.Receipt {
		receipt, err := gateway.Submit(ctx, sub)
		Expect(err).NotTo(HaveOccurred())

		var res ingest.PersistResult
		Eventually(persisted, 10*time.Second).Should(Receive(&res))
		Expect(res.Err).NotTo(HaveOccurred())
		return receipt
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())

		host, port, user, password, database, err := e2econtainers.GetPostgresConnectionInfo(
			context.Background(), pgContainer, pgConfig)
		Expect(err).NotTo(HaveOccurred())

		st, err = store.Open(ctx, &store.Config{
			Logger: testLogger,
			Postgres: store.PostgresConfig{
				Host:     host,
				Port:     port,
				User:     user,
				Password: password,
				DBName:   database,
				SSLMode:  "disable",
			},
		})
		Expect(err).NotTo(HaveOccurred())

		persisted = make(chan ingest.PersistResult, 64)
		gateway, err = ingest.NewGateway(&ingest.GatewayConfig{
			Logger: testLogger,
			Store:  st,
			OnPersist: func(res ingest.PersistResult) {
				persisted <- res
			},
		})
		Expect(err).NotTo(HaveOccurred())
		gateway.Start(ctx)

		engine, err = analytics.NewEngine(&analytics.EngineConfig{
			Logger: testLogger,
			Store:  st,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cancel()
		gateway.Stop()
		Expect(st.Close()).To(Succeed())
	})

	Describe("storage backend", func() {
		It("should open on PostgreSQL and report healthy", func() {
			Expect(st.Backend()).To(Equal(store.BackendPostgres))
			Expect(st.Ping(ctx)).To(Succeed())
			Expect(st.Health(ctx)).To(Equal(store.HealthHealthy))
		})
	})

	Describe("registry merge", func() {
		It("should create the registry row and keep known fields across sparse ticks", func() {
			receipt := submitAndWait(fullSubmission("Dock Tablet 9", time.Minute))
			Expect(receipt.Status).To(Equal("received"))
			Expect(receipt.DeviceID).To(Equal("dock_tablet_9"))

			dev, found, err := st.GetDevice(ctx, "dock_tablet_9")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(dev.DeviceName).To(HaveValue(Equal("Dock Tablet")))
			Expect(dev.Location).To(HaveValue(Equal("loading-dock")))
			Expect(dev.TotalSessions).To(Equal(1))
			firstSeen := dev.LastSeen

			// A sparse follow-up tick: no registry fields, a timeout event.
			sparse := &telemetry.Submission{
				DeviceID:  "dock_tablet_9",
				Timestamp: time.Now().UTC(),
				SessionEvents: []telemetry.SessionEvent{
					{
						EventType:    telemetry.EventTimeout,
						Duration:     ptr(420),
						ErrorMessage: "session timed out after 420s",
						Timestamp:    time.Now().UTC(),
					},
				},
			}
			submitAndWait(sparse)

			dev, found, err = st.GetDevice(ctx, "dock_tablet_9")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(dev.DeviceName).To(HaveValue(Equal("Dock Tablet")))
			Expect(dev.TotalSessions).To(Equal(1))
			Expect(dev.TotalTimeouts).To(Equal(1))
			Expect(dev.LastSeen).To(BeTemporally(">=", firstSeen))
		})
	})

	Describe("sample persistence", func() {
		It("should write one row per metric stream", func() {
			submitAndWait(fullSubmission("sample_tablet", time.Minute))

			for _, table := range []string{"device_metrics", "network_metrics", "app_metrics", "session_events"} {
				var count int64
				found, err := st.FetchScalar(ctx, &count,
					"SELECT COUNT(*) FROM "+table+" WHERE device_id = ?", "sample_tablet")
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(BeTrue())
				Expect(count).To(BeEquivalentTo(1), table)
			}
		})
	})

	Describe("analytics over PostgreSQL", func() {
		It("should aggregate submitted telemetry into fleet and device views", func() {
			submitAndWait(fullSubmission("analytics_tablet", 10*time.Minute))

			summary, err := engine.FleetSummary(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalDevices).To(BeNumerically(">=", 1))
			Expect(summary.OnlineDevices).To(BeNumerically(">=", 1))
			Expect(summary.BusinessActive).To(BeNumerically(">=", 1))

			device, err := engine.DeviceSummary(ctx, "analytics_tablet", 24)
			Expect(err).NotTo(HaveOccurred())
			Expect(device.Battery.Samples).To(Equal(1))
			Expect(device.Battery.Average).To(BeNumerically("==", 72))
			Expect(device.SessionCount).To(Equal(1))

			analysis, err := engine.TimeoutAnalysis(ctx, 24)
			Expect(err).NotTo(HaveOccurred())
			Expect(analysis.BusinessSamples).To(BeNumerically(">=", 1))

			fleet, err := engine.FleetDevices(ctx)
			Expect(err).NotTo(HaveOccurred())

			var status *analytics.DeviceStatus
			for i := range fleet {
				if fleet[i].DeviceID == "analytics_tablet" {
					status = &fleet[i]
					break
				}
			}
			Expect(status).NotTo(BeNil())
			Expect(status.BusinessActive).To(BeTrue())
			Expect(status.TimeoutRisk).To(BeTrue())
			Expect(status.BatteryLevel).To(HaveValue(Equal(72)))
		})

		It("should return per-device history on the networked backend", func() {
			submitAndWait(fullSubmission("history_tablet", time.Minute))

			history, err := engine.DeviceHistory(ctx, "history_tablet", 24)
			Expect(err).NotTo(HaveOccurred())
			Expect(history.DeviceMetrics).To(HaveLen(1))
			Expect(history.NetworkMetrics).To(HaveLen(1))
			Expect(history.AppMetrics).To(HaveLen(1))
			Expect(history.SessionEvents).To(HaveLen(1))
		})
	})
})
