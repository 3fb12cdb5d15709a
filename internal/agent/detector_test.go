package agent_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fieldops.dev/tabletwatch/internal/agent"
	"fieldops.dev/tabletwatch/pkg/telemetry"
)

var _ = Describe("Detector", func() {
	var (
		start    time.Time
		detector *agent.Detector
	)

	businessObs := func() agent.Observation {
		return agent.Observation{
			Processes: agent.Classification{
				Matched: map[agent.Class][]string{
					agent.ClassBusiness: {"com.myob.accountright"},
				},
			},
		}
	}

	BeforeEach(func() {
		start = time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
		detector = agent.NewDetector(start, agent.DetectorConfig{SessionID: "session-1"})
	})

	Describe("Tick", func() {
		It("should emit a timeout once inactivity exceeds the threshold", func() {
			now := start.Add(301 * time.Second)

			events := detector.Tick(now, businessObs())

			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(telemetry.EventTimeout))
			Expect(events[0].SessionID).To(Equal("session-1"))
			Expect(events[0].Duration).To(HaveValue(Equal(301)))
			Expect(events[0].ErrorMessage).To(ContainSubstring("301s of inactivity"))
		})

		It("should not emit a timeout while inactivity is within the threshold", func() {
			now := start.Add(299 * time.Second)

			events := detector.Tick(now, businessObs())

			Expect(events).To(BeEmpty())
		})

		It("should not emit a timeout at exactly the threshold", func() {
			now := start.Add(300 * time.Second)

			events := detector.Tick(now, businessObs())

			Expect(events).To(BeEmpty())
		})

		It("should re-emit the timeout while the condition holds", func() {
			first := detector.Tick(start.Add(301*time.Second), businessObs())
			second := detector.Tick(start.Add(331*time.Second), businessObs())

			Expect(first).To(HaveLen(1))
			Expect(second).To(HaveLen(1))
			Expect(second[0].Duration).To(HaveValue(Equal(331)))
		})

		It("should not emit a timeout without a business process", func() {
			now := start.Add(600 * time.Second)

			events := detector.Tick(now, agent.Observation{})

			Expect(events).To(BeEmpty())
		})

		It("should reset the inactivity timer on motion above the threshold", func() {
			motion := 12.5
			obs := businessObs()
			obs.MotionMagnitude = &motion

			now := start.Add(400 * time.Second)
			events := detector.Tick(now, obs)

			Expect(events).To(BeEmpty())
			Expect(detector.LastInteraction()).To(Equal(now))
			Expect(detector.Recent(now)).To(BeTrue())
		})

		It("should ignore motion at or below the threshold", func() {
			motion := 10.0
			obs := businessObs()
			obs.MotionMagnitude = &motion

			events := detector.Tick(start.Add(400*time.Second), obs)

			Expect(events).To(HaveLen(1))
			Expect(detector.LastInteraction()).To(Equal(start))
		})

		It("should emit a session start on scanner activity", func() {
			events := detector.Tick(start.Add(10*time.Second), agent.Observation{
				Processes: agent.Classification{
					Matched: map[agent.Class][]string{
						agent.ClassScanner: {"com.zebra.datawedge"},
					},
				},
			})

			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(telemetry.EventSessionStart))
			Expect(events[0].ErrorMessage).To(Equal("barcode scanner activity detected"))
		})

		It("should emit both events when business idles and the scanner is active", func() {
			obs := businessObs()
			obs.Processes.Matched[agent.ClassScanner] = []string{"barcode-service"}

			events := detector.Tick(start.Add(400*time.Second), obs)

			Expect(events).To(HaveLen(2))
			Expect(events[0].EventType).To(Equal(telemetry.EventTimeout))
			Expect(events[1].EventType).To(Equal(telemetry.EventSessionStart))
		})

		It("should honor a custom inactivity timeout", func() {
			custom := agent.NewDetector(start, agent.DetectorConfig{
				SessionID:         "session-2",
				InactivityTimeout: 60 * time.Second,
			})

			events := custom.Tick(start.Add(61*time.Second), businessObs())

			Expect(events).To(HaveLen(1))
			Expect(events[0].Duration).To(HaveValue(Equal(61)))
		})
	})

	Describe("Inactivity", func() {
		It("should measure idle time from the last interaction", func() {
			Expect(detector.Inactivity(start.Add(90 * time.Second))).To(Equal(90 * time.Second))
		})
	})
})
