// Package bridge exposes the device fleet over MQTT using the Home
// Assistant discovery convention and turns command topics back into cloud
// calls.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joshp123/godaikin/internal/cloud"
)

// Commands is the cloud command surface the bridge drives.
type Commands interface {
	SetMode(ctx context.Context, target cloud.Target, mode cloud.Mode) error
	SetFanSpeed(ctx context.Context, target cloud.Target, fan cloud.FanSpeed) error
	SetTemperature(ctx context.Context, target cloud.Target, celsius float64) error
	SetSwing(ctx context.Context, target cloud.Target, swing cloud.Swing) error
	SetHorizontalSwing(ctx context.Context, target cloud.Target, swing cloud.Swing) error
	SetPreset(ctx context.Context, target cloud.Target, preset cloud.Preset) error
	TurnOff(ctx context.Context, target cloud.Target) error
	SetDisplayLED(ctx context.Context, target cloud.Target, on bool) error
}

// DeviceSource resolves command targets from the last-good snapshot and
// triggers a refresh once a command has been accepted upstream.
type DeviceSource interface {
	Device(id cloud.DeviceID) (cloud.Device, bool)
	RequestRefresh()
}

// Automation is the mold-proof surface: the enabled toggle, the run trigger
// on power-off, and interruption when the user commands the device manually.
type Automation interface {
	SetEnabled(ctx context.Context, id cloud.DeviceID, enabled bool) error
	Start(ctx context.Context, target cloud.Target, previousMode cloud.Mode, previousFan cloud.FanSpeed) error
	Interrupt(id cloud.DeviceID) (bool, cloud.FanSpeed)
	Enabled(id cloud.DeviceID) bool
}

// EnergySource reads the per-device cumulative energy total.
type EnergySource interface {
	Total(id cloud.DeviceID) float64
}

type Config struct {
	Prefix          string
	DiscoveryPrefix string
}

// commandTopics is every per-device command suffix the bridge listens on.
var commandTopics = []string{
	"mode",
	"temperature",
	"fan_mode",
	"swing_mode",
	"swing_horizontal_mode",
	"preset_mode",
	"mold_proof",
	"display_led",
}

type statusPayload struct {
	Mode                string  `json:"mode"`
	Temperature         float64 `json:"temperature"`
	CurrentTemperature  float64 `json:"current_temperature"`
	FanMode             string  `json:"fan_mode"`
	SwingMode           string  `json:"swing_mode"`
	SwingHorizontalMode string  `json:"swing_horizontal_mode"`
	PresetMode          string  `json:"preset_mode"`
}

// sensorPayload keys match the value_json templates in the sensor discovery
// configs.
type sensorPayload struct {
	PowerW       float64 `json:"Sta_ODPwrCon"`
	IndoorTempC  float64 `json:"Sta_IDRoomTemp"`
	OutdoorTempC float64 `json:"Sta_ODAirTemp"`
	EnergyKWh    float64 `json:"energy"`
}

type Bridge struct {
	conn       Conn
	commands   Commands
	devices    DeviceSource
	automation Automation
	energy     EnergySource
	topics     topicSet
	log        zerolog.Logger

	mu         sync.Mutex
	discovered map[cloud.DeviceID]bool
	missing    map[cloud.DeviceID]bool
}

func New(conn Conn, commands Commands, devices DeviceSource, automation Automation, energy EnergySource, cfg Config, log zerolog.Logger) *Bridge {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "godaikin"
	}
	discovery := cfg.DiscoveryPrefix
	if discovery == "" {
		discovery = "homeassistant"
	}
	return &Bridge{
		conn:       conn,
		commands:   commands,
		devices:    devices,
		automation: automation,
		energy:     energy,
		topics:     topicSet{prefix: prefix, discovery: discovery},
		log:        log.With().Str("component", "bridge").Logger(),
		discovered: make(map[cloud.DeviceID]bool),
		missing:    make(map[cloud.DeviceID]bool),
	}
}

// AvailabilityTopic is where the bridge's online/offline state lives for a
// given topic prefix. Pass it to Dial as the ConnOptions availability topic.
func AvailabilityTopic(prefix string) string {
	if prefix == "" {
		prefix = "godaikin"
	}
	return topicSet{prefix: prefix}.bridgeAvailability()
}

// HandleUpdate publishes the fresh snapshot. Register it as a coordinator
// update listener. New devices are announced via discovery and their command
// topics subscribed before their first state publish. Known devices absent
// from the snapshot are marked offline once until they reappear.
func (b *Bridge) HandleUpdate(devices []cloud.Device) {
	seen := make(map[cloud.DeviceID]bool, len(devices))
	for _, dev := range devices {
		seen[dev.UniqueID] = true
		if !b.ensureDiscovered(dev) {
			continue
		}
		b.publishState(dev)
	}

	b.mu.Lock()
	var vanished []cloud.DeviceID
	for id := range b.discovered {
		if seen[id] {
			delete(b.missing, id)
			continue
		}
		if !b.missing[id] {
			b.missing[id] = true
			vanished = append(vanished, id)
		}
	}
	b.mu.Unlock()
	for _, id := range vanished {
		b.log.Warn().Str("device", string(id)).Msg("device missing from snapshot")
		b.publishRaw(b.topics.deviceAvailability(id), "offline")
	}
}

// Close marks the bridge offline and drops the broker connection.
func (b *Bridge) Close() {
	if err := b.conn.Publish(b.topics.bridgeAvailability(), true, []byte("offline")); err != nil {
		b.log.Warn().Err(err).Msg("publishing offline state failed")
	}
	b.conn.Close()
}

// ensureDiscovered announces a device once: discovery configs first, then
// command subscriptions. Failures leave the device unannounced so the next
// update retries.
func (b *Bridge) ensureDiscovered(dev cloud.Device) bool {
	id := dev.UniqueID
	b.mu.Lock()
	done := b.discovered[id]
	b.mu.Unlock()
	if done {
		return true
	}

	log := b.log.With().Str("device", string(id)).Logger()
	for _, msg := range discoveryMessages(dev, b.topics) {
		raw, err := json.Marshal(msg.payload)
		if err != nil {
			log.Error().Err(err).Str("topic", msg.topic).Msg("encoding discovery config failed")
			return false
		}
		if err := b.conn.Publish(msg.topic, true, raw); err != nil {
			log.Warn().Err(err).Str("topic", msg.topic).Msg("publishing discovery config failed")
			return false
		}
	}
	for _, what := range commandTopics {
		what := what
		topic := b.topics.command(id, what)
		err := b.conn.Subscribe(topic, func(payload []byte) {
			b.handleCommand(id, what, strings.TrimSpace(string(payload)))
		})
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("subscribing command topic failed")
			return false
		}
	}

	b.mu.Lock()
	b.discovered[id] = true
	b.mu.Unlock()
	log.Info().Str("name", dev.Name).Msg("announced device")
	return true
}

func (b *Bridge) publishState(dev cloud.Device) {
	id := dev.UniqueID
	st := dev.Shadow

	b.publishJSON(b.topics.status(id), statusPayload{
		Mode:                st.HVACMode(),
		Temperature:         st.TargetC,
		CurrentTemperature:  st.RoomTempC,
		FanMode:             st.FanMode(),
		SwingMode:           st.SwingMode(),
		SwingHorizontalMode: st.HorizontalSwingMode(),
		PresetMode:          string(st.Preset()),
	})
	b.publishJSON(b.topics.sensor(id), sensorPayload{
		PowerW:       st.PowerW,
		IndoorTempC:  st.RoomTempC,
		OutdoorTempC: st.OutdoorTempC,
		EnergyKWh:    b.energy.Total(id),
	})

	availability := "offline"
	if dev.Online() {
		availability = "online"
	}
	b.publishRaw(b.topics.deviceAvailability(id), availability)
	b.publishSwitch(id, "mold_proof", b.automation.Enabled(id))
	b.publishSwitch(id, "display_led", st.LEDOn())
}

func (b *Bridge) handleCommand(id cloud.DeviceID, what, payload string) {
	log := b.log.With().
		Str("device", string(id)).
		Str("command", what).
		Str("payload", payload).
		Logger()

	dev, ok := b.devices.Device(id)
	if !ok {
		commandsHandled.WithLabelValues(what, "error").Inc()
		log.Warn().Msg("command for unknown device")
		return
	}

	if err := b.dispatch(context.Background(), dev, what, payload); err != nil {
		commandsHandled.WithLabelValues(what, "error").Inc()
		log.Warn().Err(err).Msg("command failed")
		return
	}
	commandsHandled.WithLabelValues(what, "ok").Inc()
	b.devices.RequestRefresh()
	log.Debug().Msg("command handled")
}

func (b *Bridge) dispatch(ctx context.Context, dev cloud.Device, what, payload string) error {
	target := dev.Target()
	switch what {
	case "mode":
		if payload == "off" {
			return b.powerOff(ctx, dev)
		}
		mode, err := cloud.ParseMode(payload)
		if err != nil {
			return err
		}
		b.automation.Interrupt(dev.UniqueID)
		return b.commands.SetMode(ctx, target, mode)
	case "temperature":
		celsius, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q", payload)
		}
		return b.commands.SetTemperature(ctx, target, celsius)
	case "fan_mode":
		fan, err := cloud.ParseFanSpeed(payload)
		if err != nil {
			return err
		}
		b.automation.Interrupt(dev.UniqueID)
		return b.commands.SetFanSpeed(ctx, target, fan)
	case "swing_mode":
		swing, err := cloud.ParseSwing(payload)
		if err != nil {
			return err
		}
		return b.commands.SetSwing(ctx, target, swing)
	case "swing_horizontal_mode":
		swing, err := cloud.ParseSwing(payload)
		if err != nil {
			return err
		}
		return b.commands.SetHorizontalSwing(ctx, target, swing)
	case "preset_mode":
		preset, err := cloud.ParsePreset(payload)
		if err != nil {
			return err
		}
		return b.commands.SetPreset(ctx, target, preset)
	case "mold_proof":
		on, err := parseOnOff(payload)
		if err != nil {
			return err
		}
		if err := b.automation.SetEnabled(ctx, dev.UniqueID, on); err != nil {
			return err
		}
		b.publishSwitch(dev.UniqueID, "mold_proof", on)
		return nil
	case "display_led":
		on, err := parseOnOff(payload)
		if err != nil {
			return err
		}
		return b.commands.SetDisplayLED(ctx, target, on)
	default:
		return fmt.Errorf("unknown command %q", what)
	}
}

// powerOff honors the user's off command and then hands the device to the
// mold-proof scheduler, which wakes it back into fan-only when enabled. A
// running override's captured fan speed carries over so the eventual restore
// still reflects the state before any override began.
func (b *Bridge) powerOff(ctx context.Context, dev cloud.Device) error {
	id := dev.UniqueID
	previousMode := cloud.Mode(dev.Shadow.Mode)
	previousFan := cloud.FanSpeed(dev.Shadow.Fan)
	if wasActive, fan := b.automation.Interrupt(id); wasActive {
		previousFan = fan
	}

	if err := b.commands.TurnOff(ctx, dev.Target()); err != nil {
		return err
	}
	if err := b.automation.Start(ctx, dev.Target(), previousMode, previousFan); err != nil {
		return fmt.Errorf("starting mold-proof run: %w", err)
	}
	return nil
}

func (b *Bridge) publishSwitch(id cloud.DeviceID, what string, on bool) {
	state := "OFF"
	if on {
		state = "ON"
	}
	b.publishRaw(b.topics.switchState(id, what), state)
}

func (b *Bridge) publishJSON(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("encoding state failed")
		return
	}
	if err := b.conn.Publish(topic, true, raw); err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

func (b *Bridge) publishRaw(topic, payload string) {
	if err := b.conn.Publish(topic, true, []byte(payload)); err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

func parseOnOff(payload string) (bool, error) {
	switch strings.ToUpper(payload) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("invalid switch payload %q", payload)
	}
}
