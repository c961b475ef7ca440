package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/moldproof"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// MetricsHandler exposes the Prometheus registry.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// DeviceSource is the cached fleet view the diagnostics endpoint reads.
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

type deviceDiagnostics struct {
	ID             cloud.DeviceID   `json:"id"`
	Name           string           `json:"name"`
	Online         bool             `json:"online"`
	Mode           string           `json:"mode"`
	FanMode        string           `json:"fan_mode"`
	TargetCelsius  float64          `json:"target_celsius"`
	RoomCelsius    float64          `json:"room_celsius"`
	OutdoorCelsius float64          `json:"outdoor_celsius"`
	PowerWatts     float64          `json:"power_watts"`
	EnergyKWh      float64          `json:"energy_kwh"`
	MoldProof      moldproof.Status `json:"mold_proof"`
}

type diagnosticsResponse struct {
	Config     any                 `json:"config"`
	Healthy    bool                `json:"healthy"`
	LastUpdate time.Time           `json:"last_update"`
	Devices    []deviceDiagnostics `json:"devices"`
}

// DiagnosticsHandler serves a JSON snapshot of the running state. The config
// passed in must already have its secrets redacted.
func DiagnosticsHandler(redactedConfig any, devices DeviceSource, energy EnergySource, automation AutomationSource, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := devices.Devices()
		resp := diagnosticsResponse{
			Config:     redactedConfig,
			Healthy:    devices.Healthy(),
			LastUpdate: devices.LastUpdate(),
			Devices:    make([]deviceDiagnostics, 0, len(snapshot)),
		}
		for _, dev := range snapshot {
			st := dev.Shadow
			resp.Devices = append(resp.Devices, deviceDiagnostics{
				ID:             dev.UniqueID,
				Name:           dev.Name,
				Online:         dev.Online(),
				Mode:           st.HVACMode(),
				FanMode:        st.FanMode(),
				TargetCelsius:  st.TargetC,
				RoomCelsius:    st.RoomTempC,
				OutdoorCelsius: st.OutdoorTempC,
				PowerWatts:     st.PowerW,
				EnergyKWh:      energy.Total(dev.UniqueID),
				MoldProof:      automation.Status(dev.UniqueID),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			log.Warn().Err(err).Msg("writing diagnostics failed")
		}
	})
}
