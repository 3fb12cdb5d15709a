// Package liveness classifies a device's reachability from the time since
// its last contact. The classification is a pure function of two instants
// and a threshold pair; it keeps no state.
package liveness

import "time"

// Status is the tri-state liveness label derived from last contact.
type Status string

const (
	StatusOnline  Status = "online"
	StatusWarning Status = "warning"
	StatusOffline Status = "offline"
)

// Thresholds is the configurable boundary pair: a device is online while
// elapsed < Online, warning while elapsed < Warning, offline otherwise.
type Thresholds struct {
	Online  time.Duration
	Warning time.Duration
}

// DefaultThresholds is the standard 5 minute / 15 minute pair.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Online:  5 * time.Minute,
		Warning: 15 * time.Minute,
	}
}

// FleetThresholds is the coarser pair the fleet list uses, where anything
// seen within the hour still counts as recent.
func FleetThresholds() Thresholds {
	return Thresholds{
		Online:  5 * time.Minute,
		Warning: time.Hour,
	}
}

// Classify maps time-since-last-contact to a Status using the given
// threshold pair. A zero lastSeen (device never heard from) is offline.
func Classify(now, lastSeen time.Time, t Thresholds) Status {
	if lastSeen.IsZero() {
		return StatusOffline
	}
	elapsed := now.Sub(lastSeen)
	switch {
	case elapsed < t.Online:
		return StatusOnline
	case elapsed < t.Warning:
		return StatusWarning
	default:
		return StatusOffline
	}
}
