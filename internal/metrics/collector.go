// Package metrics exposes the device fleet, energy ledger, and mold-proof
// scheduler state as Prometheus metrics. Scrapes read the last-good cache
// and never touch the network.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/moldproof"
)

type DeviceSource interface {
	Devices() []cloud.Device
	LastUpdate() time.Time
	Healthy() bool
}

type EnergySource interface {
	Total(id cloud.DeviceID) float64
}

type AutomationSource interface {
	Status(id cloud.DeviceID) moldproof.Status
}

// FleetCollector publishes per-device gauges from the current snapshot.
type FleetCollector struct {
	devices    DeviceSource
	energy     EnergySource
	automation AutomationSource

	online      *prometheus.GaugeVec
	onOff       *prometheus.GaugeVec
	mode        *prometheus.GaugeVec
	power       *prometheus.GaugeVec
	roomTemp    *prometheus.GaugeVec
	outdoorTemp *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	setpoint    *prometheus.GaugeVec
	errorState  *prometheus.GaugeVec
	energyKWh   *prometheus.GaugeVec
	mpEnabled   *prometheus.GaugeVec
	mpActive    *prometheus.GaugeVec
	mpRemaining *prometheus.GaugeVec
	deviceCount prometheus.Gauge
	lastUpdate  prometheus.Gauge
	healthy     prometheus.Gauge
}

func NewFleetCollector(devices DeviceSource, energy EnergySource, automation AutomationSource) *FleetCollector {
	labels := []string{"device_id", "name"}
	modeLabels := []string{"device_id", "name", "mode"}
	return &FleetCollector{
		devices:    devices,
		energy:     energy,
		automation: automation,
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_online",
			Help: "Whether the device reports cloud connectivity (1=online, 0=offline)",
		}, labels),
		onOff: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_on",
			Help: "Whether the device is powered on (1=on, 0=off)",
		}, labels),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_mode",
			Help: "Active operating mode (1=active)",
		}, modeLabels),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_power_watts",
			Help: "Reported outdoor unit power draw (watts)",
		}, labels),
		roomTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_room_temperature_celsius",
			Help: "Reported room temperature (celsius)",
		}, labels),
		outdoorTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_outdoor_temperature_celsius",
			Help: "Reported outdoor temperature (celsius)",
		}, labels),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_room_humidity_percent",
			Help: "Reported room humidity (%)",
		}, labels),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_setpoint_celsius",
			Help: "Target temperature (celsius)",
		}, labels),
		errorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_error_state",
			Help: "Whether the device reports an error code (1=error, 0=ok)",
		}, labels),
		energyKWh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_device_energy_kwh",
			Help: "Accumulated energy since process start (kWh)",
		}, labels),
		mpEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_moldproof_enabled",
			Help: "Whether mold-proof is enabled for the device (1=enabled)",
		}, labels),
		mpActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_moldproof_active",
			Help: "Whether a mold-proof run is in progress (1=active)",
		}, labels),
		mpRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "godaikin_moldproof_remaining_seconds",
			Help: "Seconds until the active mold-proof run expires",
		}, labels),
		deviceCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "godaikin_devices",
			Help: "Devices in the last-good snapshot",
		}),
		lastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "godaikin_last_update_timestamp_seconds",
			Help: "Unix timestamp of the last successful sync",
		}),
		healthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "godaikin_sync_healthy",
			Help: "Whether the most recent sync cycle succeeded (1=ok, 0=error)",
		}),
	}
}

func (c *FleetCollector) vecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		c.online, c.onOff, c.mode, c.power, c.roomTemp, c.outdoorTemp,
		c.humidity, c.setpoint, c.errorState, c.energyKWh,
		c.mpEnabled, c.mpActive, c.mpRemaining,
	}
}

func (c *FleetCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, vec := range c.vecs() {
		vec.Describe(ch)
	}
	c.deviceCount.Describe(ch)
	c.lastUpdate.Describe(ch)
	c.healthy.Describe(ch)
}

func (c *FleetCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.devices.Devices()

	for _, vec := range c.vecs() {
		vec.Reset()
	}

	for _, dev := range snapshot {
		labels := prometheus.Labels{
			"device_id": string(dev.UniqueID),
			"name":      dev.Name,
		}
		st := dev.Shadow

		c.online.With(labels).Set(boolToFloat(dev.Online()))
		c.onOff.With(labels).Set(boolToFloat(st.On()))
		c.mode.With(prometheus.Labels{
			"device_id": string(dev.UniqueID),
			"name":      dev.Name,
			"mode":      st.HVACMode(),
		}).Set(1)
		c.power.With(labels).Set(st.PowerW)
		c.roomTemp.With(labels).Set(st.RoomTempC)
		c.outdoorTemp.With(labels).Set(st.OutdoorTempC)
		c.humidity.With(labels).Set(st.HumidityPct)
		c.setpoint.With(labels).Set(st.TargetC)
		c.errorState.With(labels).Set(boolToFloat(st.ErrCode != 0))
		c.energyKWh.With(labels).Set(c.energy.Total(dev.UniqueID))

		status := c.automation.Status(dev.UniqueID)
		c.mpEnabled.With(labels).Set(boolToFloat(status.Enabled))
		c.mpActive.With(labels).Set(boolToFloat(status.Active))
		c.mpRemaining.With(labels).Set(status.Remaining.Seconds())
	}

	c.deviceCount.Set(float64(len(snapshot)))
	if updated := c.devices.LastUpdate(); !updated.IsZero() {
		c.lastUpdate.Set(float64(updated.Unix()))
	} else {
		c.lastUpdate.Set(0)
	}
	c.healthy.Set(boolToFloat(c.devices.Healthy()))

	for _, vec := range c.vecs() {
		vec.Collect(ch)
	}
	c.deviceCount.Collect(ch)
	c.lastUpdate.Collect(ch)
	c.healthy.Collect(ch)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
