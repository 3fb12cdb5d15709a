// Package simulator fabricates a synthetic tablet fleet and submits
// plausible telemetry to the ingestion gateway, exercising the full wire
// contract without physical devices.
package simulator

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
)

// TabletProfile is the fabricated identity of one simulated tablet.
type TabletProfile struct {
	DeviceID       string
	DeviceName     string
	Location       string `fake:"{city}"`
	AndroidVersion string `fake:"{appversion}"`
	AppVersion     string `fake:"{appversion}"`
}

// NewTabletProfile fabricates one tablet identity. The device id is
// sequential so repeated simulator runs merge into the same registry rows.
func NewTabletProfile(index int) *TabletProfile {
	var profile TabletProfile
	if err := gofakeit.Struct(&profile); err != nil {
		return nil
	}
	profile.DeviceID = fmt.Sprintf("sim_tablet_%02d", index+1)
	profile.DeviceName = fmt.Sprintf("%s Tablet %02d", gofakeit.Company(), index+1)
	return &profile
}
