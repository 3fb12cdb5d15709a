package store_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fieldops.dev/tabletwatch/internal/store"
)

func ptr[T any](v T) *T { return &v }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// openMemoryStore opens the abstraction on the embedded backend with an
// in-memory database, exercising the same code path production uses for
// the SQLite fallback.
func openMemoryStore(ctx context.Context) store.Store {
	st, err := store.Open(ctx, &store.Config{
		Logger:     quietLogger(),
		SQLitePath: ":memory:",
	})
	Expect(err).NotTo(HaveOccurred())
	Expect(st.Backend()).To(Equal(store.BackendSQLite))
	return st
}

var _ = Describe("Open", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should reject a nil config", func() {
		st, err := store.Open(ctx, nil)
		Expect(err).To(HaveOccurred())
		Expect(st).To(BeNil())
	})

	It("should reject a missing logger", func() {
		st, err := store.Open(ctx, &store.Config{})
		Expect(err).To(HaveOccurred())
		Expect(st).To(BeNil())
	})

	It("should fall back to the embedded backend when postgres is not configured", func() {
		st := openMemoryStore(ctx)
		defer st.Close()

		Expect(st.Health(ctx)).To(Equal(store.HealthDegraded))
	})

	It("should degrade to the stub when no backend is available", func() {
		st, err := store.Open(ctx, &store.Config{Logger: quietLogger()})
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Backend()).To(Equal(store.BackendNone))
		Expect(st.Health(ctx)).To(Equal(store.HealthDegraded))
	})

	It("should exhaust bounded retries against an unreachable postgres and fall back", func() {
		st, err := store.Open(ctx, &store.Config{
			Logger: quietLogger(),
			Postgres: store.PostgresConfig{
				Host:    "host-that-does-not-exist.invalid",
				Port:    5432,
				User:    "monitor",
				DBName:  "tabletwatch",
				SSLMode: "disable",
			},
			SQLitePath:     ":memory:",
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Backend()).To(Equal(store.BackendSQLite))
		st.Close()
	})
})

var _ = Describe("Device registry", func() {
	var (
		ctx context.Context
		st  store.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = openMemoryStore(ctx)
	})

	AfterEach(func() {
		st.Close()
	})

	It("should create a device on first upsert", func() {
		err := st.UpsertDevice(ctx, &store.Device{
			DeviceID:   "tablet_a",
			DeviceName: ptr("Warehouse Tablet A"),
			LastSeen:   time.Now().UTC(),
		})
		Expect(err).NotTo(HaveOccurred())

		dev, found, err := st.GetDevice(ctx, "tablet_a")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(dev.DeviceName).To(HaveValue(Equal("Warehouse Tablet A")))
		Expect(dev.IsActive).To(BeTrue())
	})

	It("should merge, not overwrite, on repeated upserts", func() {
		first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		later := first.Add(time.Hour)

		Expect(st.UpsertDevice(ctx, &store.Device{
			DeviceID:   "tablet_a",
			DeviceName: ptr("Warehouse Tablet A"),
			Location:   ptr("Electrical Department"),
			LastSeen:   first,
		})).To(Succeed())

		// Second submission carries no name or location.
		Expect(st.UpsertDevice(ctx, &store.Device{
			DeviceID: "tablet_a",
			LastSeen: later,
		})).To(Succeed())

		dev, found, err := st.GetDevice(ctx, "tablet_a")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(dev.DeviceName).To(HaveValue(Equal("Warehouse Tablet A")))
		Expect(dev.Location).To(HaveValue(Equal("Electrical Department")))
		Expect(dev.LastSeen.UTC()).To(BeTemporally("==", later))
	})

	It("should replace a field when the new submission provides it", func() {
		Expect(st.UpsertDevice(ctx, &store.Device{
			DeviceID: "tablet_a",
			Location: ptr("Electrical Department"),
			LastSeen: time.Now().UTC(),
		})).To(Succeed())

		Expect(st.UpsertDevice(ctx, &store.Device{
			DeviceID: "tablet_a",
			Location: ptr("Dispatch"),
			LastSeen: time.Now().UTC(),
		})).To(Succeed())

		dev, _, err := st.GetDevice(ctx, "tablet_a")
		Expect(err).NotTo(HaveOccurred())
		Expect(dev.Location).To(HaveValue(Equal("Dispatch")))
	})

	It("should apply counter increments additively", func() {
		Expect(st.UpsertDevice(ctx, &store.Device{DeviceID: "tablet_a", LastSeen: time.Now().UTC()})).To(Succeed())

		Expect(st.AddDeviceCounters(ctx, "tablet_a", 1, 0)).To(Succeed())
		Expect(st.AddDeviceCounters(ctx, "tablet_a", 1, 2)).To(Succeed())

		dev, _, err := st.GetDevice(ctx, "tablet_a")
		Expect(err).NotTo(HaveOccurred())
		Expect(dev.TotalSessions).To(Equal(2))
		Expect(dev.TotalTimeouts).To(Equal(2))
	})

	It("should report not-found for an unknown device", func() {
		_, found, err := st.GetDevice(ctx, "ghost")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("should list devices ordered by last_seen descending", func() {
		now := time.Now().UTC()
		Expect(st.UpsertDevice(ctx, &store.Device{DeviceID: "tablet_old", LastSeen: now.Add(-time.Hour)})).To(Succeed())
		Expect(st.UpsertDevice(ctx, &store.Device{DeviceID: "tablet_new", LastSeen: now})).To(Succeed())

		devices, err := st.ListDevices(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(devices).To(HaveLen(2))
		Expect(devices[0].DeviceID).To(Equal("tablet_new"))
	})
})

var _ = Describe("Query contract", func() {
	var (
		ctx context.Context
		st  store.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = openMemoryStore(ctx)

		Expect(st.UpsertDevice(ctx, &store.Device{DeviceID: "tablet_a", LastSeen: time.Now().UTC()})).To(Succeed())
		for i := 0; i < 3; i++ {
			Expect(st.InsertDeviceMetric(ctx, &store.DeviceMetric{
				DeviceID:     "tablet_a",
				BatteryLevel: ptr(50 + i*10),
				Timestamp:    time.Now().UTC().Add(time.Duration(i) * time.Minute),
			})).To(Succeed())
		}
	})

	AfterEach(func() {
		st.Close()
	})

	It("should fetch rows into a slice of structs", func() {
		var rows []struct {
			DeviceID     string
			BatteryLevel int
		}
		err := st.Fetch(ctx, &rows,
			"SELECT device_id, battery_level FROM device_metrics WHERE device_id = ? ORDER BY timestamp", "tablet_a")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0].BatteryLevel).To(Equal(50))
	})

	It("should fetch a scalar with a found flag", func() {
		var count int64
		found, err := st.FetchScalar(ctx, &count, "SELECT COUNT(*) FROM device_metrics")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(count).To(Equal(int64(3)))
	})

	It("should report not-found from FetchOne on an empty result", func() {
		var row store.DeviceMetric
		found, err := st.FetchOne(ctx, &row,
			"SELECT * FROM device_metrics WHERE device_id = ?", "ghost")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("should report affected rows from Execute", func() {
		affected, err := st.Execute(ctx,
			"UPDATE device_registry SET is_active = ? WHERE device_id = ?", false, "tablet_a")
		Expect(err).NotTo(HaveOccurred())
		Expect(affected).To(Equal(int64(1)))
	})
})

var _ = Describe("Transaction", func() {
	var (
		ctx context.Context
		st  store.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = openMemoryStore(ctx)
	})

	AfterEach(func() {
		st.Close()
	})

	It("should roll back every write when fn fails", func() {
		err := st.Transaction(ctx, func(tx store.Store) error {
			if err := tx.UpsertDevice(ctx, &store.Device{DeviceID: "tablet_a", LastSeen: time.Now().UTC()}); err != nil {
				return err
			}
			if err := tx.InsertSessionEvent(ctx, &store.SessionEvent{
				DeviceID:  "tablet_a",
				EventType: "login",
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return err
			}
			return errors.New("boom")
		})
		Expect(err).To(HaveOccurred())

		_, found, err := st.GetDevice(ctx, "tablet_a")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())

		var count int64
		_, err = st.FetchScalar(ctx, &count, "SELECT COUNT(*) FROM session_events")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(BeZero())
	})

	It("should commit when fn succeeds", func() {
		err := st.Transaction(ctx, func(tx store.Store) error {
			return tx.UpsertDevice(ctx, &store.Device{DeviceID: "tablet_a", LastSeen: time.Now().UTC()})
		})
		Expect(err).NotTo(HaveOccurred())

		_, found, _ := st.GetDevice(ctx, "tablet_a")
		Expect(found).To(BeTrue())
	})
})

var _ = Describe("Null store", func() {
	var (
		ctx context.Context
		st  store.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = store.NewNull(quietLogger())
	})

	It("should accept writes as no-ops", func() {
		Expect(st.UpsertDevice(ctx, &store.Device{DeviceID: "tablet_a"})).To(Succeed())
		Expect(st.InsertDeviceMetric(ctx, &store.DeviceMetric{DeviceID: "tablet_a"})).To(Succeed())
		Expect(st.AddDeviceCounters(ctx, "tablet_a", 1, 1)).To(Succeed())
	})

	It("should answer reads with empty results, never errors", func() {
		devices, err := st.ListDevices(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(devices).To(BeEmpty())

		var count int64
		found, err := st.FetchScalar(ctx, &count, "SELECT COUNT(*) FROM device_metrics")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("should run transactions against itself", func() {
		called := false
		Expect(st.Transaction(ctx, func(tx store.Store) error {
			called = true
			return tx.UpsertDevice(ctx, &store.Device{DeviceID: "tablet_a"})
		})).To(Succeed())
		Expect(called).To(BeTrue())
	})
})
