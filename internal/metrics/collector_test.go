package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/moldproof"
)

type stubDevices struct {
	devices []cloud.Device
	updated time.Time
	healthy bool
}

func (s *stubDevices) Devices() []cloud.Device { return s.devices }
func (s *stubDevices) LastUpdate() time.Time   { return s.updated }
func (s *stubDevices) Healthy() bool           { return s.healthy }

type stubEnergy map[cloud.DeviceID]float64

func (e stubEnergy) Total(id cloud.DeviceID) float64 { return e[id] }

type stubAutomation map[cloud.DeviceID]moldproof.Status

func (a stubAutomation) Status(id cloud.DeviceID) moldproof.Status { return a[id] }

func TestFleetCollectorPublishesDeviceGauges(t *testing.T) {
	devices := &stubDevices{
		devices: []cloud.Device{{
			UniqueID:  "ac1",
			Name:      "Bedroom",
			Connected: 1,
			Shadow: cloud.ShadowState{
				PowerW:    820,
				RoomTempC: 24.5,
				OnOff:     1,
				Mode:      int(cloud.ModeCool),
				TargetC:   22,
			},
		}},
		updated: time.Unix(1700000000, 0),
		healthy: true,
	}
	energy := stubEnergy{"ac1": 1.5}
	automation := stubAutomation{"ac1": {Enabled: true, Active: true, Remaining: 90 * time.Second}}

	c := NewFleetCollector(devices, energy, automation)

	expected := `
# HELP godaikin_device_power_watts Reported outdoor unit power draw (watts)
# TYPE godaikin_device_power_watts gauge
godaikin_device_power_watts{device_id="ac1",name="Bedroom"} 820
# HELP godaikin_device_energy_kwh Accumulated energy since process start (kWh)
# TYPE godaikin_device_energy_kwh gauge
godaikin_device_energy_kwh{device_id="ac1",name="Bedroom"} 1.5
# HELP godaikin_moldproof_remaining_seconds Seconds until the active mold-proof run expires
# TYPE godaikin_moldproof_remaining_seconds gauge
godaikin_moldproof_remaining_seconds{device_id="ac1",name="Bedroom"} 90
# HELP godaikin_sync_healthy Whether the most recent sync cycle succeeded (1=ok, 0=error)
# TYPE godaikin_sync_healthy gauge
godaikin_sync_healthy 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"godaikin_device_power_watts",
		"godaikin_device_energy_kwh",
		"godaikin_moldproof_remaining_seconds",
		"godaikin_sync_healthy",
	)
	if err != nil {
		t.Errorf("unexpected metrics:\n%v", err)
	}
}

func TestFleetCollectorDropsVanishedDevices(t *testing.T) {
	devices := &stubDevices{
		devices: []cloud.Device{{UniqueID: "ac1", Name: "Bedroom", Connected: 1}},
		updated: time.Unix(1700000000, 0),
		healthy: true,
	}
	c := NewFleetCollector(devices, stubEnergy{}, stubAutomation{})

	if got := testutil.CollectAndCount(c, "godaikin_device_online"); got != 1 {
		t.Fatalf("godaikin_device_online series = %d, want 1", got)
	}

	devices.devices = nil
	if got := testutil.CollectAndCount(c, "godaikin_device_online"); got != 0 {
		t.Errorf("godaikin_device_online series after removal = %d, want 0", got)
	}
}
