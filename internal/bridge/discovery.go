package bridge

import (
	"github.com/joshp123/godaikin/internal/cloud"
)

// Home Assistant entity vocabularies. The mode lists mirror the values the
// cloud service accepts; "none" is deliberately absent from presetModes
// because Home Assistant injects it as the clear-preset option.
var (
	hvacModes   = []string{"off", "cool", "dry", "fan_only"}
	fanModes    = []string{"auto", "low", "medium", "high"}
	swingModes  = []string{"off", "step_1", "step_2", "step_3", "step_4", "step_5", "auto"}
	presetModes = []string{"comfort", "eco", "boost", "sleep"}
)

const (
	minTempC  = 16.0
	maxTempC  = 31.0
	tempStepC = 1.0
)

type discoveryMessage struct {
	topic   string
	payload map[string]any
}

// discoveryMessages builds the retained config set for one device: the
// climate entity, four sensors, and the mold-proof and display switches.
func discoveryMessages(dev cloud.Device, t topicSet) []discoveryMessage {
	id := dev.UniqueID
	availability := []map[string]string{
		{"topic": t.bridgeAvailability()},
		{"topic": t.deviceAvailability(id)},
	}
	device := map[string]any{
		"identifiers":  []string{string(id)},
		"manufacturer": "Daikin",
		"model":        "GO DAIKIN",
		"name":         dev.Name,
	}
	if mac := dev.MAC(); mac != "" {
		device["connections"] = [][]string{{"mac", mac}}
	}
	deviceRef := map[string]any{"identifiers": []string{string(id)}}

	messages := []discoveryMessage{{
		topic: t.climateConfig(id),
		payload: map[string]any{
			"name":      nil,
			"object_id": string(id),
			"unique_id": string(id),

			"modes":               hvacModes,
			"mode_command_topic":  t.command(id, "mode"),
			"mode_state_topic":    t.status(id),
			"mode_state_template": "{{ value_json.mode }}",

			"temperature_command_topic":    t.command(id, "temperature"),
			"temperature_state_topic":      t.status(id),
			"temperature_state_template":   "{{ value_json.temperature }}",
			"current_temperature_topic":    t.status(id),
			"current_temperature_template": "{{ value_json.current_temperature }}",

			"fan_modes":               fanModes,
			"fan_mode_command_topic":  t.command(id, "fan_mode"),
			"fan_mode_state_topic":    t.status(id),
			"fan_mode_state_template": "{{ value_json.fan_mode }}",

			"swing_modes":               swingModes,
			"swing_mode_command_topic":  t.command(id, "swing_mode"),
			"swing_mode_state_topic":    t.status(id),
			"swing_mode_state_template": "{{ value_json.swing_mode }}",

			"swing_horizontal_modes":               swingModes,
			"swing_horizontal_mode_command_topic":  t.command(id, "swing_horizontal_mode"),
			"swing_horizontal_mode_state_topic":    t.status(id),
			"swing_horizontal_mode_state_template": "{{ value_json.swing_horizontal_mode }}",

			"preset_modes":               presetModes,
			"preset_mode_command_topic":  t.command(id, "preset_mode"),
			"preset_mode_state_topic":    t.status(id),
			"preset_mode_value_template": "{{ value_json.preset_mode }}",

			"temp_step": tempStepC,
			"min_temp":  minTempC,
			"max_temp":  maxTempC,
			"precision": tempStepC,

			"icon":              "mdi:air-conditioner",
			"qos":               0,
			"retain":            false,
			"availability_mode": "all",
			"availability":      availability,
			"device":            device,
		},
	}}

	sensors := []struct {
		name        string
		field       string
		unit        string
		deviceClass string
		stateClass  string
	}{
		{"Power", "Sta_ODPwrCon", "W", "power", "measurement"},
		{"Indoor temperature", "Sta_IDRoomTemp", "°C", "temperature", "measurement"},
		{"Outdoor temperature", "Sta_ODAirTemp", "°C", "temperature", "measurement"},
		{"Energy", "energy", "kWh", "energy", "total_increasing"},
	}
	for _, s := range sensors {
		norm := normalizeName(s.name)
		messages = append(messages, discoveryMessage{
			topic: t.sensorConfig(id, norm),
			payload: map[string]any{
				"name":                s.name,
				"unique_id":           string(id) + "_" + norm,
				"state_topic":         t.sensor(id),
				"value_template":      "{{ value_json." + s.field + " }}",
				"state_class":         s.stateClass,
				"unit_of_measurement": s.unit,
				"device_class":        s.deviceClass,
				"qos":                 0,
				"retain":              true,
				"availability_mode":   "all",
				"availability":        availability,
				"device":              deviceRef,
			},
		})
	}

	switches := []struct {
		name string
		what string
		icon string
	}{
		{"Mold proof", "mold_proof", "mdi:air-filter"},
		{"Display LED", "display_led", "mdi:led-on"},
	}
	for _, sw := range switches {
		messages = append(messages, discoveryMessage{
			topic: t.switchConfig(id, sw.what),
			payload: map[string]any{
				"name":              sw.name,
				"unique_id":         string(id) + "_" + sw.what,
				"state_topic":       t.switchState(id, sw.what),
				"command_topic":     t.command(id, sw.what),
				"payload_on":        "ON",
				"payload_off":       "OFF",
				"icon":              sw.icon,
				"qos":               0,
				"availability_mode": "all",
				"availability":      availability,
				"device":            deviceRef,
			},
		})
	}

	return messages
}
