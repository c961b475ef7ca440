package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable LoadFromEnv reads so ambient values from the
// host cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"GODAIKIN_USERNAME", "GODAIKIN_PASSWORD",
		"GODAIKIN_BASE_URL", "GODAIKIN_REGION", "GODAIKIN_CLIENT_ID",
		"GODAIKIN_STATE_DIR", "GODAIKIN_HTTP_ADDR",
		"GODAIKIN_REFRESH_INTERVAL", "GODAIKIN_MOLD_PROOF_MINUTES",
		"GODAIKIN_MQTT_URL", "GODAIKIN_MQTT_USERNAME", "GODAIKIN_MQTT_PASSWORD",
		"GODAIKIN_MQTT_PREFIX", "GODAIKIN_DISCOVERY_PREFIX",
		"GODAIKIN_BLOB_ENDPOINT", "GODAIKIN_BLOB_BUCKET",
		"GODAIKIN_BLOB_ACCESS_KEY_FILE", "GODAIKIN_BLOB_SECRET_KEY_FILE",
		"GODAIKIN_LOG_LEVEL", "GODAIKIN_LOG_FORMAT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GODAIKIN_USERNAME", "alice@example.com")
	t.Setenv("GODAIKIN_PASSWORD", "hunter2")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.BaseURL)
	}
	if cfg.Region != DefaultRegion {
		t.Errorf("Region = %q, want %q", cfg.Region, DefaultRegion)
	}
	if cfg.ClientID != DefaultClientID {
		t.Errorf("ClientID = %q, want %q", cfg.ClientID, DefaultClientID)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.RefreshInterval != 7*time.Second {
		t.Errorf("RefreshInterval = %v, want 7s", cfg.RefreshInterval)
	}
	if cfg.MoldProofMinutes != 60 {
		t.Errorf("MoldProofMinutes = %d, want 60", cfg.MoldProofMinutes)
	}
	if cfg.MoldProofDuration() != time.Hour {
		t.Errorf("MoldProofDuration = %v, want 1h", cfg.MoldProofDuration())
	}
	if cfg.MQTTPrefix != "godaikin" || cfg.DiscoveryPrefix != "homeassistant" {
		t.Errorf("prefixes = %q/%q, want godaikin/homeassistant", cfg.MQTTPrefix, cfg.DiscoveryPrefix)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "auto" {
		t.Errorf("logging = %q/%q, want info/auto", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.BlobConfigured() {
		t.Error("BlobConfigured = true with no blob settings")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GODAIKIN_USERNAME", "alice@example.com")
	t.Setenv("GODAIKIN_REFRESH_INTERVAL", "15s")
	t.Setenv("GODAIKIN_MOLD_PROOF_MINUTES", "90")
	t.Setenv("GODAIKIN_STATE_DIR", "/tmp/godaikin")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.RefreshInterval != 15*time.Second {
		t.Errorf("RefreshInterval = %v, want 15s", cfg.RefreshInterval)
	}
	if cfg.MoldProofMinutes != 90 {
		t.Errorf("MoldProofMinutes = %d, want 90", cfg.MoldProofMinutes)
	}
	if got := cfg.AuthStatePath(); got != "/tmp/godaikin/auth_state.json" {
		t.Errorf("AuthStatePath = %q", got)
	}
	if got := cfg.MoldProofSettingsPath(); got != "/tmp/godaikin/mold_proof.json" {
		t.Errorf("MoldProofSettingsPath = %q", got)
	}
}

func TestLoadFromEnvRequiresUsername(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "GODAIKIN_USERNAME") {
		t.Fatalf("err = %v, want GODAIKIN_USERNAME required", err)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad duration", "GODAIKIN_REFRESH_INTERVAL", "soon", "GODAIKIN_REFRESH_INTERVAL"},
		{"bad int", "GODAIKIN_MOLD_PROOF_MINUTES", "an hour", "GODAIKIN_MOLD_PROOF_MINUTES"},
		{"minutes too low", "GODAIKIN_MOLD_PROOF_MINUTES", "0", "between 1 and 180"},
		{"minutes too high", "GODAIKIN_MOLD_PROOF_MINUTES", "181", "between 1 and 180"},
		{"bad log format", "GODAIKIN_LOG_FORMAT", "xml", "GODAIKIN_LOG_FORMAT"},
		{"bad log level", "GODAIKIN_LOG_LEVEL", "loud", "GODAIKIN_LOG_LEVEL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("GODAIKIN_USERNAME", "alice@example.com")
			t.Setenv(tc.key, tc.value)

			_, err := LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadFromEnvRejectsPartialBlobSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("GODAIKIN_USERNAME", "alice@example.com")
	t.Setenv("GODAIKIN_BLOB_ENDPOINT", "minio.local:9000")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "GODAIKIN_BLOB_BUCKET") {
		t.Fatalf("err = %v, want GODAIKIN_BLOB_BUCKET required", err)
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := Config{
		Username:     "alice@example.com",
		Password:     "hunter2",
		MQTTPassword: "broker-secret",
	}

	red := cfg.Redacted()
	if red.Password != "REDACTED" {
		t.Errorf("Password = %q, want REDACTED", red.Password)
	}
	if red.MQTTPassword != "REDACTED" {
		t.Errorf("MQTTPassword = %q, want REDACTED", red.MQTTPassword)
	}
	if red.Username != cfg.Username {
		t.Errorf("Username changed: %q", red.Username)
	}
	if cfg.Password != "hunter2" {
		t.Error("Redacted mutated the original")
	}

	empty := Config{}.Redacted()
	if empty.Password != "" || empty.MQTTPassword != "" {
		t.Error("empty secrets should stay empty, not read as set")
	}
}
