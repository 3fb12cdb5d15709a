package simulator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"fieldops.dev/tabletwatch/pkg/telemetry"
)

// Behavior probabilities and bounds of the synthetic fleet.
const (
	batteryRechargeBelow = 15
	offlineChance        = 0.03
	businessChance       = 0.55
	scannerChance        = 0.20
	timeoutChance        = 0.08
	minSignalDBm         = -90
	maxSignalDBm         = -30
)

// TelemetryGenerator produces one tablet's telemetry stream: battery that
// drains and recharges, jittering signal, and foreground apps that follow
// warehouse usage odds, including the occasional business-app timeout.
type TelemetryGenerator struct {
	profile   *TabletProfile
	sessionID string

	battery        float64
	baselineSignal int
	ssid           string
	ipAddress      string

	lastInteraction time.Time
}

// NewTelemetryGenerator creates a generator for one fabricated tablet.
func NewTelemetryGenerator(profile *TabletProfile) *TelemetryGenerator {
	return &TelemetryGenerator{
		profile:         profile,
		sessionID:       uuid.NewString(),
		battery:         60 + rand.Float64()*40,          // Starts between 60 and 100
		baselineSignal:  -65 + rand.Intn(20),             // -65 to -46 dBm
		ssid:            fmt.Sprintf("warehouse-%d", 1+rand.Intn(3)),
		ipAddress:       fmt.Sprintf("10.0.%d.%d", 1+rand.Intn(4), 2+rand.Intn(250)),
		lastInteraction: time.Now().UTC(),
	}
}

// Generate produces the submission for one poll tick at t.
func (g *TelemetryGenerator) Generate(t time.Time) *telemetry.Submission {
	sub := &telemetry.Submission{
		DeviceID:       g.profile.DeviceID,
		DeviceName:     &g.profile.DeviceName,
		Location:       &g.profile.Location,
		AndroidVersion: &g.profile.AndroidVersion,
		AppVersion:     &g.profile.AppVersion,
		Timestamp:      t,
		DeviceMetrics:  g.deviceMetrics(t),
		NetworkMetrics: g.networkMetrics(t),
	}

	foreground := g.pickForeground()
	sub.AppMetrics = g.appMetrics(t, foreground)
	sub.SessionEvents = g.sessionEvents(t, foreground)
	sub.RawLogs = []string{
		fmt.Sprintf("sim tick: battery=%.1f foreground=%s", g.battery, foreground),
	}

	return sub
}

// deviceMetrics drains the battery a little each tick and plugs the
// tablet in once it runs low.
func (g *TelemetryGenerator) deviceMetrics(t time.Time) *telemetry.DeviceMetrics {
	g.battery -= 0.1 + rand.Float64()*0.4
	if g.battery < batteryRechargeBelow {
		g.battery = 100
	}

	level := int(g.battery)
	temperature := 28 + rand.Float64()*10
	memoryTotal := int64(4 << 30)
	memoryAvailable := int64(float64(memoryTotal) * (0.2 + rand.Float64()*0.5))
	cpu := 5 + rand.Float64()*60

	return &telemetry.DeviceMetrics{
		BatteryLevel:       &level,
		BatteryTemperature: &temperature,
		MemoryAvailable:    &memoryAvailable,
		MemoryTotal:        &memoryTotal,
		CPUUsage:           &cpu,
		Timestamp:          t,
	}
}

// networkMetrics jitters the signal around the device baseline and drops
// the link entirely now and then.
func (g *TelemetryGenerator) networkMetrics(t time.Time) *telemetry.NetworkMetrics {
	signal := g.baselineSignal + rand.Intn(11) - 5
	if signal < minSignalDBm {
		signal = minSignalDBm
	}
	if signal > maxSignalDBm {
		signal = maxSignalDBm
	}

	status := telemetry.ConnectivityOnline
	if rand.Float64() < offlineChance {
		status = telemetry.ConnectivityOffline
	}

	networkType := "WiFi"
	dns := 5 + rand.Float64()*40

	return &telemetry.NetworkMetrics{
		WifiSignalStrength: &signal,
		WifiSSID:           &g.ssid,
		ConnectivityStatus: status,
		NetworkType:        &networkType,
		IPAddress:          &g.ipAddress,
		DNSResponseTime:    &dns,
		Timestamp:          t,
	}
}

// pickForeground rolls the usage odds for this tick.
func (g *TelemetryGenerator) pickForeground() string {
	roll := rand.Float64()
	switch {
	case roll < businessChance:
		return "com.myob.accountright"
	case roll < businessChance+scannerChance:
		return "com.zebra.datawedge"
	default:
		return "com.android.launcher"
	}
}

func (g *TelemetryGenerator) appMetrics(t time.Time, foreground string) *telemetry.AppMetrics {
	// Interaction goes stale in bursts so idle-risk analysis has
	// something to find.
	if rand.Float64() < 0.7 {
		g.lastInteraction = t
	}

	screen := telemetry.ScreenActive
	if rand.Float64() < 0.15 {
		screen = telemetry.ScreenDimmed
	}

	interaction := g.lastInteraction
	notifications := rand.Intn(5)
	timeoutSetting := 300

	return &telemetry.AppMetrics{
		ScreenState:          screen,
		AppForeground:        &foreground,
		LastUserInteraction:  &interaction,
		NotificationCount:    &notifications,
		ScreenTimeoutSetting: &timeoutSetting,
		Timestamp:            t,
	}
}

// sessionEvents emits a session start on scanner use and rolls the
// timeout odds while the business app is up.
func (g *TelemetryGenerator) sessionEvents(t time.Time, foreground string) []telemetry.SessionEvent {
	var events []telemetry.SessionEvent

	switch foreground {
	case "com.zebra.datawedge":
		events = append(events, telemetry.SessionEvent{
			EventType: telemetry.EventSessionStart,
			SessionID: g.sessionID,
			Timestamp: t,
		})
	case "com.myob.accountright":
		if rand.Float64() < timeoutChance {
			duration := 300 + rand.Intn(600)
			events = append(events, telemetry.SessionEvent{
				EventType:    telemetry.EventTimeout,
				SessionID:    g.sessionID,
				Duration:     &duration,
				ErrorMessage: fmt.Sprintf("simulated session timeout after %ds", duration),
				Timestamp:    t,
			})
		}
	}

	return events
}
