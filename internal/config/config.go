// Package config loads daemon configuration from GODAIKIN_-prefixed
// environment variables and validates it in one place.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL  = "https://c7zkf7l933.execute-api.ap-southeast-1.amazonaws.com/prod"
	DefaultRegion   = "ap-southeast-1"
	DefaultClientID = "36f6piu770fotfscvhi3jb1vb7"

	DefaultHTTPAddr         = "0.0.0.0:8080"
	DefaultStateDir         = "/var/lib/godaikin"
	DefaultRefreshInterval  = 7 * time.Second
	DefaultMoldProofMinutes = 60
	DefaultMQTTPrefix       = "godaikin"
	DefaultDiscoveryPrefix  = "homeassistant"
)

// Config defines runtime configuration for the daemon.
type Config struct {
	// Cloud account. Password may be empty when a saved session exists;
	// the auth manager enforces that.
	Username string `json:"username"`
	Password string `json:"password,omitempty"`

	BaseURL  string `json:"base_url"`
	Region   string `json:"region"`
	ClientID string `json:"client_id"`

	StateDir         string        `json:"state_dir"`
	HTTPAddr         string        `json:"http_addr"`
	RefreshInterval  time.Duration `json:"refresh_interval"`
	MoldProofMinutes int           `json:"mold_proof_minutes"`

	// MQTT bridge; disabled when MQTTURL is empty.
	MQTTURL         string `json:"mqtt_url,omitempty"`
	MQTTUsername    string `json:"mqtt_username,omitempty"`
	MQTTPassword    string `json:"mqtt_password,omitempty"`
	MQTTPrefix      string `json:"mqtt_prefix"`
	DiscoveryPrefix string `json:"discovery_prefix"`

	// Optional S3 mirror for the state files.
	BlobEndpoint      string `json:"blob_endpoint,omitempty"`
	BlobBucket        string `json:"blob_bucket,omitempty"`
	BlobAccessKeyFile string `json:"blob_access_key_file,omitempty"`
	BlobSecretKeyFile string `json:"blob_secret_key_file,omitempty"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// LoadFromEnv builds a config from environment variables and validates it.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Username: os.Getenv("GODAIKIN_USERNAME"),
		Password: os.Getenv("GODAIKIN_PASSWORD"),

		BaseURL:  envOrDefault("GODAIKIN_BASE_URL", DefaultBaseURL),
		Region:   envOrDefault("GODAIKIN_REGION", DefaultRegion),
		ClientID: envOrDefault("GODAIKIN_CLIENT_ID", DefaultClientID),

		StateDir: envOrDefault("GODAIKIN_STATE_DIR", DefaultStateDir),
		HTTPAddr: envOrDefault("GODAIKIN_HTTP_ADDR", DefaultHTTPAddr),

		MQTTURL:         os.Getenv("GODAIKIN_MQTT_URL"),
		MQTTUsername:    os.Getenv("GODAIKIN_MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("GODAIKIN_MQTT_PASSWORD"),
		MQTTPrefix:      envOrDefault("GODAIKIN_MQTT_PREFIX", DefaultMQTTPrefix),
		DiscoveryPrefix: envOrDefault("GODAIKIN_DISCOVERY_PREFIX", DefaultDiscoveryPrefix),

		BlobEndpoint:      os.Getenv("GODAIKIN_BLOB_ENDPOINT"),
		BlobBucket:        os.Getenv("GODAIKIN_BLOB_BUCKET"),
		BlobAccessKeyFile: os.Getenv("GODAIKIN_BLOB_ACCESS_KEY_FILE"),
		BlobSecretKeyFile: os.Getenv("GODAIKIN_BLOB_SECRET_KEY_FILE"),

		LogLevel:  envOrDefault("GODAIKIN_LOG_LEVEL", "info"),
		LogFormat: envOrDefault("GODAIKIN_LOG_FORMAT", "auto"),
	}

	var err error
	if cfg.RefreshInterval, err = envDuration("GODAIKIN_REFRESH_INTERVAL", DefaultRefreshInterval); err != nil {
		return Config{}, err
	}
	if cfg.MoldProofMinutes, err = envInt("GODAIKIN_MOLD_PROOF_MINUTES", DefaultMoldProofMinutes); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and ranges.
func (c Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("GODAIKIN_USERNAME is required")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("GODAIKIN_REFRESH_INTERVAL must be positive")
	}
	if c.MoldProofMinutes < 1 || c.MoldProofMinutes > 180 {
		return fmt.Errorf("GODAIKIN_MOLD_PROOF_MINUTES must be between 1 and 180")
	}
	switch c.LogFormat {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("GODAIKIN_LOG_FORMAT must be auto, console, or json")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("GODAIKIN_LOG_LEVEL: %w", err)
	}

	// The blob mirror is optional, but partial settings are a misconfiguration.
	if c.BlobConfigured() {
		if c.BlobEndpoint == "" {
			return fmt.Errorf("GODAIKIN_BLOB_ENDPOINT is required")
		}
		if c.BlobBucket == "" {
			return fmt.Errorf("GODAIKIN_BLOB_BUCKET is required")
		}
		if c.BlobAccessKeyFile == "" {
			return fmt.Errorf("GODAIKIN_BLOB_ACCESS_KEY_FILE is required")
		}
		if c.BlobSecretKeyFile == "" {
			return fmt.Errorf("GODAIKIN_BLOB_SECRET_KEY_FILE is required")
		}
	}
	return nil
}

// BlobConfigured reports whether any S3 mirror setting is present.
func (c Config) BlobConfigured() bool {
	return c.BlobEndpoint != "" || c.BlobBucket != "" || c.BlobAccessKeyFile != "" || c.BlobSecretKeyFile != ""
}

// MoldProofDuration returns the configured override duration.
func (c Config) MoldProofDuration() time.Duration {
	return time.Duration(c.MoldProofMinutes) * time.Minute
}

// AuthStatePath is the credential session file inside StateDir.
func (c Config) AuthStatePath() string {
	return filepath.Join(c.StateDir, "auth_state.json")
}

// MoldProofSettingsPath is the scheduler's enabled-set file inside StateDir.
func (c Config) MoldProofSettingsPath() string {
	return filepath.Join(c.StateDir, "mold_proof.json")
}

// Redacted returns a copy safe to expose on the diagnostics endpoint.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "REDACTED"
	}
	if c.MQTTPassword != "" {
		c.MQTTPassword = "REDACTED"
	}
	return c
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
