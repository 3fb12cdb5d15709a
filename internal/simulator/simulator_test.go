package simulator_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fieldops.dev/tabletwatch/internal/simulator"
	"fieldops.dev/tabletwatch/pkg/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

var _ = Describe("Simulator", func() {
	var (
		server   *httptest.Server
		mu       sync.Mutex
		received []telemetry.Submission
	)

	BeforeEach(func() {
		received = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sub telemetry.Submission
			Expect(json.NewDecoder(r.Body).Decode(&sub)).To(Succeed())

			mu.Lock()
			received = append(received, sub)
			mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			Expect(json.NewEncoder(w).Encode(telemetry.Receipt{
				Status:          "received",
				DeviceID:        sub.DeviceID,
				Timestamp:       time.Now().UTC(),
				RecordsReceived: sub.Counts(),
			})).To(Succeed())
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewSimulator", func() {
		It("should return an error when config is nil", func() {
			_, err := simulator.NewSimulator(nil)
			Expect(err).To(MatchError("simulator config cannot be nil"))
		})

		It("should return an error when the server URL is empty", func() {
			_, err := simulator.NewSimulator(&simulator.SimulatorConfig{Logger: quietLogger()})
			Expect(err).To(MatchError("server URL cannot be empty"))
		})

		It("should fabricate the requested fleet size", func() {
			sim, err := simulator.NewSimulator(&simulator.SimulatorConfig{
				Logger:      quietLogger(),
				ServerURL:   server.URL,
				DeviceCount: 3,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(sim.Devices()).To(HaveLen(3))
			Expect(sim.Devices()).To(ContainElement("sim_tablet_03"))
		})
	})

	Describe("Run", func() {
		It("should submit telemetry for every device each tick", func() {
			sim, err := simulator.NewSimulator(&simulator.SimulatorConfig{
				Logger:      quietLogger(),
				ServerURL:   server.URL,
				DeviceCount: 4,
				Interval:    20 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go sim.Run(ctx)

			Eventually(func() int {
				mu.Lock()
				defer mu.Unlock()
				return len(received)
			}, 2*time.Second).Should(BeNumerically(">=", 8))
			cancel()

			mu.Lock()
			defer mu.Unlock()
			devices := map[string]bool{}
			for _, sub := range received {
				devices[sub.DeviceID] = true
				Expect(sub.DeviceMetrics).NotTo(BeNil())
			}
			Expect(devices).To(HaveLen(4))
		})

		It("should stop when the context is cancelled", func() {
			sim, err := simulator.NewSimulator(&simulator.SimulatorConfig{
				Logger:      quietLogger(),
				ServerURL:   server.URL,
				DeviceCount: 1,
				Interval:    10 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				sim.Run(ctx)
				close(done)
			}()

			Eventually(func() int {
				mu.Lock()
				defer mu.Unlock()
				return len(received)
			}, time.Second).Should(BeNumerically(">", 0))

			cancel()
			Eventually(done, time.Second).Should(BeClosed())
		})
	})
})
