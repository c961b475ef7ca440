package cloud

import (
	"fmt"
	"strings"
)

// DeviceID is the stable unique identifier reported by the cloud service.
type DeviceID string

// Device is one air conditioner as returned by the homepage fetch.
type Device struct {
	UniqueID  DeviceID    `json:"uniqueID"`
	Name      string      `json:"ACName"`
	Group     string      `json:"ACGroup"`
	ThingName string      `json:"ThingName"`
	Connected int         `json:"connected"`
	Shadow    ShadowState `json:"shadowState"`
}

// ShadowState is the flat reported/desired/capability key set the service
// tracks per device. Sta_* fields are reported telemetry, Set_* desired
// setpoints, Ena_* capability flags.
type ShadowState struct {
	Key string `json:"key"`

	RoomTempC    float64 `json:"Sta_IDRoomTemp"`
	OutdoorTempC float64 `json:"Sta_ODAirTemp"`
	HumidityPct  float64 `json:"Sta_IDRh"`
	CoilTempC    float64 `json:"Sta_IDCoilTemp"`
	PowerW       float64 `json:"Sta_ODPwrCon"`
	ErrCode      int     `json:"Sta_ErrCode"`

	OnOff     int     `json:"Set_OnOff"`
	Mode      int     `json:"Set_Mode"`
	TargetC   float64 `json:"Set_Temp"`
	Fan       int     `json:"Set_Fan"`
	SwingAuto int     `json:"Set_Swing"`
	SwingUD   int     `json:"Set_UDLvr"`
	SwingLR   int     `json:"Set_LRLvr"`
	Turbo     int     `json:"Set_Turbo"`
	Breeze    int     `json:"Set_Breeze"`
	Ecoplus   int     `json:"Set_Ecoplus"`
	Sleep     int     `json:"Set_Sleep"`
	LEDOff    int     `json:"Set_LEDOff"`

	EnaUDStep  int `json:"Ena_UDStep"`
	EnaLRSwing int `json:"Ena_LRSwing"`
	EnaLRStep  int `json:"Ena_LRStep"`
	EnaTurbo   int `json:"Ena_Turbo"`
	EnaBreeze  int `json:"Ena_Breeze"`
	EnaEcoplus int `json:"Ena_Ecoplus"`
	EnaSilent  int `json:"Ena_Silent"`
	EnaLEDOff  int `json:"Ena_LEDOff"`
}

// Target carries the identity plus routing fields a device command needs.
// The shadow key comes from the most recent state fetch.
type Target struct {
	ID        DeviceID
	ThingName string
	Key       string
}

func (d Device) Target() Target {
	return Target{ID: d.UniqueID, ThingName: d.ThingName, Key: d.Shadow.Key}
}

func (d Device) Online() bool {
	return d.Connected != 0
}

// MAC formats the unique identifier as a colon-separated MAC address when it
// is a 12-digit hex string, which is how the service derives device IDs.
func (d Device) MAC() string {
	id := strings.ToLower(string(d.UniqueID))
	if len(id) != 12 {
		return ""
	}
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, id[i:i+2])
	}
	return strings.Join(parts, ":")
}

// Mode is the Set_Mode wire value.
type Mode int

const (
	ModeCool    Mode = 1
	ModeDry     Mode = 2
	ModeFanOnly Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeCool:
		return "cool"
	case ModeDry:
		return "dry"
	case ModeFanOnly:
		return "fan_only"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "cool":
		return ModeCool, nil
	case "dry":
		return ModeDry, nil
	case "fan_only":
		return ModeFanOnly, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// FanSpeed is the Set_Fan wire value.
type FanSpeed int

const (
	FanAuto   FanSpeed = 0
	FanLow    FanSpeed = 1
	FanMedium FanSpeed = 2
	FanHigh   FanSpeed = 3
)

func (f FanSpeed) String() string {
	switch f {
	case FanAuto:
		return "auto"
	case FanLow:
		return "low"
	case FanMedium:
		return "medium"
	case FanHigh:
		return "high"
	default:
		return "unknown"
	}
}

func ParseFanSpeed(s string) (FanSpeed, error) {
	switch s {
	case "auto":
		return FanAuto, nil
	case "low":
		return FanLow, nil
	case "medium":
		return FanMedium, nil
	case "high":
		return FanHigh, nil
	default:
		return 0, fmt.Errorf("unknown fan speed %q", s)
	}
}

// Swing is the louvre position wire value (Set_UDLvr / Set_LRLvr).
type Swing int

const (
	SwingOff   Swing = 0
	SwingStep1 Swing = 1
	SwingStep2 Swing = 2
	SwingStep3 Swing = 3
	SwingStep4 Swing = 4
	SwingStep5 Swing = 5
	SwingFull  Swing = 7
)

func (s Swing) String() string {
	switch s {
	case SwingOff:
		return "off"
	case SwingFull:
		return "auto"
	case SwingStep1, SwingStep2, SwingStep3, SwingStep4, SwingStep5:
		return fmt.Sprintf("step_%d", int(s))
	default:
		return "unknown"
	}
}

func ParseSwing(s string) (Swing, error) {
	switch s {
	case "off":
		return SwingOff, nil
	case "auto":
		return SwingFull, nil
	}
	var step int
	if _, err := fmt.Sscanf(s, "step_%d", &step); err == nil && step >= 1 && step <= 5 {
		return Swing(step), nil
	}
	return 0, fmt.Errorf("unknown swing position %q", s)
}

// Preset names follow the comfort-feature flags on the shadow state.
type Preset string

const (
	PresetNone    Preset = "none"
	PresetComfort Preset = "comfort"
	PresetEco     Preset = "eco"
	PresetBoost   Preset = "boost"
	PresetSleep   Preset = "sleep"
)

func ParsePreset(s string) (Preset, error) {
	switch Preset(s) {
	case PresetNone, PresetComfort, PresetEco, PresetBoost, PresetSleep:
		return Preset(s), nil
	default:
		return "", fmt.Errorf("unknown preset %q", s)
	}
}

func (s ShadowState) On() bool {
	return s.OnOff != 0
}

// HVACMode is the operating mode folded with the power flag, matching the
// mode vocabulary the bridge publishes.
func (s ShadowState) HVACMode() string {
	if !s.On() {
		return "off"
	}
	return Mode(s.Mode).String()
}

func (s ShadowState) FanMode() string {
	return FanSpeed(s.Fan).String()
}

func (s ShadowState) SwingMode() string {
	return Swing(s.SwingUD).String()
}

func (s ShadowState) HorizontalSwingMode() string {
	return Swing(s.SwingLR).String()
}

// Preset reports the active comfort preset. At most one of the feature flags
// is set at a time on real devices; turbo wins if the service ever reports
// several.
func (s ShadowState) Preset() Preset {
	switch {
	case s.Turbo != 0:
		return PresetBoost
	case s.Ecoplus != 0:
		return PresetEco
	case s.Breeze != 0:
		return PresetComfort
	case s.Sleep != 0:
		return PresetSleep
	default:
		return PresetNone
	}
}

func (s ShadowState) LEDOn() bool {
	return s.LEDOff == 0
}
