package agent

import (
	"fmt"
	"time"

	"fieldops.dev/tabletwatch/pkg/telemetry"
)

// Detector defaults.
const (
	// DefaultMotionThreshold is the accelerometer magnitude above which a
	// sample counts as user interaction.
	DefaultMotionThreshold = 10.0

	// DefaultInactivityTimeout is how long without interaction before a
	// business session is considered at risk of timing out.
	DefaultInactivityTimeout = 300 * time.Second
)

// Observation is what one poll tick saw on the device.
type Observation struct {
	// MotionMagnitude is the summed absolute accelerometer reading; nil
	// when the sensor probe failed.
	MotionMagnitude *float64
	// Processes is the classification of the running process list.
	Processes Classification
}

// Detector keeps the inactivity timer and turns per-tick observations
// into session events. It is not safe for concurrent use; the runner owns
// it on a single goroutine.
type Detector struct {
	sessionID         string
	motionThreshold   float64
	inactivityTimeout time.Duration
	lastInteraction   time.Time
}

// DetectorConfig holds the configuration for the Detector.
type DetectorConfig struct {
	// SessionID stamps every generated event; one per agent run.
	SessionID string
	// MotionThreshold overrides DefaultMotionThreshold when positive.
	MotionThreshold float64
	// InactivityTimeout overrides DefaultInactivityTimeout when positive.
	InactivityTimeout time.Duration
}

// NewDetector creates a detector whose inactivity timer starts at start.
func NewDetector(start time.Time, cfg DetectorConfig) *Detector {
	threshold := cfg.MotionThreshold
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	timeout := cfg.InactivityTimeout
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &Detector{
		sessionID:         cfg.SessionID,
		motionThreshold:   threshold,
		inactivityTimeout: timeout,
		lastInteraction:   start,
	}
}

// LastInteraction returns when user activity was last detected.
func (d *Detector) LastInteraction() time.Time {
	return d.lastInteraction
}

// Inactivity returns how long the device has been idle at now.
func (d *Detector) Inactivity(now time.Time) time.Duration {
	return now.Sub(d.lastInteraction)
}

// Recent reports whether interaction was seen on the current tick.
func (d *Detector) Recent(now time.Time) bool {
	return d.lastInteraction.Equal(now)
}

// Tick advances the detector by one observation and returns the session
// events it implies. Motion above the threshold resets the inactivity
// timer. While a business-class process is running and the timer exceeds
// the timeout, a timeout event is emitted every tick the condition holds;
// scanner activity emits a session_start each tick it is seen.
func (d *Detector) Tick(now time.Time, obs Observation) []telemetry.SessionEvent {
	if obs.MotionMagnitude != nil && *obs.MotionMagnitude > d.motionThreshold {
		d.lastInteraction = now
	}

	events := []telemetry.SessionEvent{}

	inactivity := d.Inactivity(now)
	if obs.Processes.Active(ClassBusiness) && inactivity > d.inactivityTimeout {
		seconds := int(inactivity.Seconds())
		events = append(events, telemetry.SessionEvent{
			EventType:    telemetry.EventTimeout,
			SessionID:    d.sessionID,
			Duration:     &seconds,
			ErrorMessage: fmt.Sprintf("business session timeout risk detected - %ds of inactivity", seconds),
			AppVersion:   "business_detected",
			Timestamp:    now,
		})
	}

	if obs.Processes.Active(ClassScanner) {
		events = append(events, telemetry.SessionEvent{
			EventType:    telemetry.EventSessionStart,
			SessionID:    d.sessionID,
			ErrorMessage: "barcode scanner activity detected",
			AppVersion:   "scanner_active",
			Timestamp:    now,
		})
	}

	return events
}
