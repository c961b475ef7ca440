package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TokenProvider supplies the authorization value for API requests.
type TokenProvider interface {
	Authorization(ctx context.Context) (string, error)
}

// Patch is a partial Set_* desired-state update. The service merges it into
// the device shadow asynchronously.
type Patch map[string]any

// APIError is a non-2xx response from the device service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("device service returned %d: %s", e.StatusCode, e.Body)
}

// CommandError reports a failed device command.
type CommandError struct {
	ID  DeviceID
	Op  string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Client is a stateless wrapper around the device service. It fetches the
// account's device snapshot and publishes partial desired-state patches.
type Client struct {
	baseURL    string
	username   string
	tokens     TokenProvider
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL, username string, tokens TokenProvider, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("component", "cloud").Logger(),
	}
}

type requestEnvelope struct {
	RequestData any `json:"requestData"`
}

type homepageRequest struct {
	Type  int    `json:"type"`
	Value string `json:"value"`
}

type homepageResponse struct {
	Data []Device `json:"data"`
}

type publishRequest struct {
	Type      int    `json:"type"`
	Username  string `json:"username"`
	ThingName string `json:"thingName"`
	Key       string `json:"key"`
	Payload   struct {
		State struct {
			Desired Patch `json:"desired"`
		} `json:"state"`
	} `json:"payload"`
}

// Devices fetches the full device list with nested shadow state.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var resp homepageResponse
	req := requestEnvelope{RequestData: homepageRequest{Type: 1, Value: c.username}}
	if err := c.post(ctx, "/gethomepageinfowithsubscription", req, &resp); err != nil {
		return nil, fmt.Errorf("fetch devices: %w", err)
	}
	return resp.Data, nil
}

// Publish applies a partial desired-state patch to one device.
func (c *Client) Publish(ctx context.Context, target Target, patch Patch) error {
	if target.ThingName == "" || target.Key == "" {
		return fmt.Errorf("device %s has no routing key yet", target.ID)
	}
	req := publishRequest{
		Type:      3,
		Username:  c.username,
		ThingName: target.ThingName,
		Key:       target.Key,
	}
	req.Payload.State.Desired = patch
	c.log.Debug().Str("device", string(target.ID)).Interface("patch", patch).Msg("publishing desired state")
	return c.post(ctx, "/publishdevicestate", requestEnvelope{RequestData: req}, nil)
}

func (c *Client) SetMode(ctx context.Context, target Target, mode Mode) error {
	return c.command(ctx, target, "set_mode", Patch{"Set_Mode": int(mode), "Set_OnOff": 1})
}

func (c *Client) SetFanSpeed(ctx context.Context, target Target, fan FanSpeed) error {
	return c.command(ctx, target, "set_fan_speed", Patch{"Set_Fan": int(fan)})
}

func (c *Client) SetTemperature(ctx context.Context, target Target, celsius float64) error {
	return c.command(ctx, target, "set_temperature", Patch{"Set_Temp": celsius})
}

func (c *Client) SetSwing(ctx context.Context, target Target, swing Swing) error {
	auto := 0
	if swing == SwingFull {
		auto = 1
	}
	return c.command(ctx, target, "set_swing", Patch{"Set_Swing": auto, "Set_UDLvr": int(swing)})
}

func (c *Client) SetHorizontalSwing(ctx context.Context, target Target, swing Swing) error {
	return c.command(ctx, target, "set_horizontal_swing", Patch{"Set_LRLvr": int(swing)})
}

func (c *Client) SetPreset(ctx context.Context, target Target, preset Preset) error {
	patch := Patch{"Set_Turbo": 0, "Set_Ecoplus": 0, "Set_Breeze": 0, "Set_Sleep": 0}
	switch preset {
	case PresetBoost:
		patch["Set_Turbo"] = 1
	case PresetEco:
		patch["Set_Ecoplus"] = 1
	case PresetComfort:
		patch["Set_Breeze"] = 1
	case PresetSleep:
		patch["Set_Sleep"] = 1
	case PresetNone:
	default:
		return &CommandError{ID: target.ID, Op: "set_preset", Err: fmt.Errorf("unknown preset %q", preset)}
	}
	return c.command(ctx, target, "set_preset", patch)
}

func (c *Client) TurnOn(ctx context.Context, target Target) error {
	return c.command(ctx, target, "turn_on", Patch{"Set_OnOff": 1})
}

func (c *Client) TurnOff(ctx context.Context, target Target) error {
	return c.command(ctx, target, "turn_off", Patch{"Set_OnOff": 0})
}

// SetDisplayLED toggles the indoor unit's status LED. The shadow flag is
// inverted: Set_LEDOff=1 switches the LED off.
func (c *Client) SetDisplayLED(ctx context.Context, target Target, on bool) error {
	ledOff := 1
	if on {
		ledOff = 0
	}
	return c.command(ctx, target, "set_display_led", Patch{"Set_LEDOff": ledOff})
}

func (c *Client) command(ctx context.Context, target Target, op string, patch Patch) error {
	if err := c.Publish(ctx, target, patch); err != nil {
		return &CommandError{ID: target.ID, Op: op, Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	token, err := c.tokens.Authorization(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
