package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fieldops.dev/tabletwatch/internal/ingest"
	"fieldops.dev/tabletwatch/internal/store"
	"fieldops.dev/tabletwatch/pkg/telemetry"
)

func ptr[T any](v T) *T { return &v }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

var _ = Describe("Gateway", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		st      store.Store
		gw      *ingest.Gateway
		results chan ingest.PersistResult
	)

	newGateway := func(s store.Store, queueSize int) *ingest.Gateway {
		g, err := ingest.NewGateway(&ingest.GatewayConfig{
			Logger:    quietLogger(),
			Store:     s,
			QueueSize: queueSize,
			OnPersist: func(res ingest.PersistResult) { results <- res },
		})
		Expect(err).NotTo(HaveOccurred())
		return g
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		results = make(chan ingest.PersistResult, 16)

		var err error
		st, err = store.Open(ctx, &store.Config{
			Logger:     quietLogger(),
			SQLitePath: ":memory:",
		})
		Expect(err).NotTo(HaveOccurred())

		gw = newGateway(st, 0)
	})

	AfterEach(func() {
		cancel()
		st.Close()
	})

	Describe("NewGateway", func() {
		It("should reject a nil config", func() {
			g, err := ingest.NewGateway(nil)
			Expect(err).To(HaveOccurred())
			Expect(g).To(BeNil())
		})

		It("should reject a missing logger", func() {
			g, err := ingest.NewGateway(&ingest.GatewayConfig{Store: st})
			Expect(err).To(HaveOccurred())
			Expect(g).To(BeNil())
		})

		It("should reject a missing store", func() {
			g, err := ingest.NewGateway(&ingest.GatewayConfig{Logger: quietLogger()})
			Expect(err).To(HaveOccurred())
			Expect(g).To(BeNil())
		})
	})

	Describe("Submit", func() {
		It("should acknowledge with per-category record counts", func() {
			receipt, err := gw.Submit(ctx, &telemetry.Submission{
				DeviceID:      " Tablet A ",
				DeviceMetrics: &telemetry.DeviceMetrics{BatteryLevel: ptr(80)},
				NetworkMetrics: &telemetry.NetworkMetrics{
					ConnectivityStatus: telemetry.ConnectivityOnline,
				},
				SessionEvents: []telemetry.SessionEvent{
					{EventType: telemetry.EventLogin},
					{EventType: telemetry.EventLogout},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Status).To(Equal("received"))
			Expect(receipt.DeviceID).To(Equal("tablet_a"))
			Expect(receipt.RecordsReceived.DeviceMetrics).To(Equal(1))
			Expect(receipt.RecordsReceived.NetworkMetrics).To(Equal(1))
			Expect(receipt.RecordsReceived.AppMetrics).To(BeZero())
			Expect(receipt.RecordsReceived.SessionEvents).To(Equal(2))
		})

		It("should register the device before acknowledging", func() {
			_, err := gw.Submit(ctx, &telemetry.Submission{
				DeviceID:   "tablet_a",
				DeviceName: ptr("Warehouse Tablet A"),
			})
			Expect(err).NotTo(HaveOccurred())

			// The worker has not started; the registry row must already exist.
			dev, found, err := st.GetDevice(ctx, "tablet_a")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(dev.DeviceName).To(HaveValue(Equal("Warehouse Tablet A")))
		})

		It("should reject an out-of-range battery level", func() {
			_, err := gw.Submit(ctx, &telemetry.Submission{
				DeviceID:      "tablet_a",
				DeviceMetrics: &telemetry.DeviceMetrics{BatteryLevel: ptr(150)},
			})

			var verr *telemetry.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Field).To(Equal("battery_level"))

			// Rejected submissions never touch the registry.
			_, found, _ := st.GetDevice(ctx, "tablet_a")
			Expect(found).To(BeFalse())
		})

		It("should reject a nil submission", func() {
			_, err := gw.Submit(ctx, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Background persistence", func() {
		BeforeEach(func() {
			gw.Start(ctx)
		})

		It("should persist sample rows and report the outcome", func() {
			_, err := gw.Submit(ctx, &telemetry.Submission{
				DeviceID:      "tablet_a",
				DeviceMetrics: &telemetry.DeviceMetrics{BatteryLevel: ptr(75)},
				AppMetrics: &telemetry.AppMetrics{
					ScreenState:   telemetry.ScreenActive,
					AppForeground: ptr("com.myob.warehouse"),
				},
			})
			Expect(err).NotTo(HaveOccurred())

			var res ingest.PersistResult
			Eventually(results).Should(Receive(&res))
			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.Written.DeviceMetrics).To(Equal(1))
			Expect(res.Written.AppMetrics).To(Equal(1))

			var count int64
			found, err := st.FetchScalar(ctx, &count,
				"SELECT COUNT(*) FROM device_metrics WHERE device_id = ?", "tablet_a")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(count).To(Equal(int64(1)))
		})

		It("should apply session counters as relative increments", func() {
			submit := func() {
				_, err := gw.Submit(ctx, &telemetry.Submission{
					DeviceID: "tablet_a",
					SessionEvents: []telemetry.SessionEvent{
						{EventType: telemetry.EventLogin},
					},
				})
				Expect(err).NotTo(HaveOccurred())
				Eventually(results).Should(Receive())
			}

			submit()
			submit()

			dev, _, err := st.GetDevice(ctx, "tablet_a")
			Expect(err).NotTo(HaveOccurred())
			Expect(dev.TotalSessions).To(Equal(2))
			Expect(dev.TotalTimeouts).To(BeZero())
		})

		It("should count timeouts separately from sessions", func() {
			_, err := gw.Submit(ctx, &telemetry.Submission{
				DeviceID: "tablet_a",
				SessionEvents: []telemetry.SessionEvent{
					{EventType: telemetry.EventTimeout, Duration: ptr(301)},
					{EventType: telemetry.EventSessionStart},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Eventually(results).Should(Receive())

			dev, _, err := st.GetDevice(ctx, "tablet_a")
			Expect(err).NotTo(HaveOccurred())
			Expect(dev.TotalSessions).To(Equal(1))
			Expect(dev.TotalTimeouts).To(Equal(1))
		})

		It("should merge registry fields across submissions", func() {
			_, err := gw.Submit(ctx, &telemetry.Submission{
				DeviceID:   "tablet_a",
				DeviceName: ptr("Warehouse Tablet A"),
				Location:   ptr("Electrical Department"),
			})
			Expect(err).NotTo(HaveOccurred())

			// Later submission without name or location.
			_, err = gw.Submit(ctx, &telemetry.Submission{
				DeviceID:   "tablet_a",
				AppVersion: ptr("2.4.1"),
			})
			Expect(err).NotTo(HaveOccurred())

			dev, _, err := st.GetDevice(ctx, "tablet_a")
			Expect(err).NotTo(HaveOccurred())
			Expect(dev.DeviceName).To(HaveValue(Equal("Warehouse Tablet A")))
			Expect(dev.Location).To(HaveValue(Equal("Electrical Department")))
			Expect(dev.AppVersion).To(HaveValue(Equal("2.4.1")))
		})
	})

	Describe("Queue overflow", func() {
		It("should drop jobs but still acknowledge the device", func() {
			small := newGateway(st, 1)
			// Worker intentionally not started so the queue cannot drain.

			_, err := small.Submit(ctx, &telemetry.Submission{DeviceID: "tablet_a"})
			Expect(err).NotTo(HaveOccurred())

			receipt, err := small.Submit(ctx, &telemetry.Submission{DeviceID: "tablet_b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Status).To(Equal("received"))

			var res ingest.PersistResult
			Eventually(results).Should(Receive(&res))
			Expect(res.DeviceID).To(Equal("tablet_b"))
			Expect(res.Err).To(MatchError(ingest.ErrQueueFull))
		})
	})

	Describe("Degraded mode", func() {
		It("should still acknowledge submissions on the stub store", func() {
			null := store.NewNull(quietLogger())
			degraded := newGateway(null, 0)
			degraded.Start(ctx)

			receipt, err := degraded.Submit(ctx, &telemetry.Submission{
				DeviceID:      "tablet_a",
				DeviceMetrics: &telemetry.DeviceMetrics{BatteryLevel: ptr(42)},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.RecordsReceived.DeviceMetrics).To(Equal(1))

			var res ingest.PersistResult
			Eventually(results).Should(Receive(&res))
			Expect(res.Err).NotTo(HaveOccurred())
		})
	})

	Describe("Shutdown", func() {
		It("should drain queued jobs before stopping", func() {
			gw.Start(ctx)

			_, err := gw.Submit(ctx, &telemetry.Submission{
				DeviceID: "tablet_a",
				SessionEvents: []telemetry.SessionEvent{
					{EventType: telemetry.EventLogin},
				},
			})
			Expect(err).NotTo(HaveOccurred())

			cancel()
			gw.Stop()

			dev, found, err := st.GetDevice(context.Background(), "tablet_a")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(dev.TotalSessions).To(Equal(1))
		})
	})
})
