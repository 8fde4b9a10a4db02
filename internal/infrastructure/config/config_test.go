package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// Missing file falls back to defaults.
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 3001 {
		t.Errorf("API.Port = %d, want 3001", cfg.API.Port)
	}
	if !cfg.Database.WALMode {
		t.Error("Database.WALMode should default to true")
	}
	if cfg.Security.JWT.TokenTTLHours != 24 {
		t.Errorf("TokenTTLHours = %d, want 24", cfg.Security.JWT.TokenTTLHours)
	}
	if cfg.Encryption.RotationIntervalMinutes != 5 {
		t.Errorf("RotationIntervalMinutes = %d, want 5", cfg.Encryption.RotationIntervalMinutes)
	}
	if cfg.Encryption.KeyRetention != 10 {
		t.Errorf("KeyRetention = %d, want 10", cfg.Encryption.KeyRetention)
	}
	if cfg.InfluxDB.Enabled {
		t.Error("InfluxDB.Enabled should default to false")
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
api:
  port: 8443
database:
  path: /var/lib/biocard/biocard.db
security:
  jwt:
    secret: file-secret
    token_ttl_hours: 12
encryption:
  rotation_interval_minutes: 60
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 8443 {
		t.Errorf("API.Port = %d, want 8443", cfg.API.Port)
	}
	if cfg.Database.Path != "/var/lib/biocard/biocard.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Security.JWT.Secret != "file-secret" {
		t.Errorf("JWT.Secret = %q, want file-secret", cfg.Security.JWT.Secret)
	}
	if cfg.TokenTTL() != 12*time.Hour {
		t.Errorf("TokenTTL() = %v, want 12h", cfg.TokenTTL())
	}
	if cfg.RotationInterval() != time.Hour {
		t.Errorf("RotationInterval() = %v, want 1h", cfg.RotationInterval())
	}
	// Untouched sections keep their defaults.
	if cfg.Encryption.FreshnessWindowSeconds != 30 {
		t.Errorf("FreshnessWindowSeconds = %d, want 30", cfg.Encryption.FreshnessWindowSeconds)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
security:
  jwt:
    secret: file-secret
`)

	t.Setenv("BIOCARD_JWT_SECRET", "env-secret")
	t.Setenv("BIOCARD_CLIENT_SECRET", "env-client-secret")
	t.Setenv("BIOCARD_API_PORT", "9000")
	t.Setenv("BIOCARD_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Security.JWT.Secret != "env-secret" {
		t.Errorf("JWT.Secret = %q, want env-secret", cfg.Security.JWT.Secret)
	}
	if cfg.Security.ClientToken.Secret != "env-client-secret" {
		t.Errorf("ClientToken.Secret = %q", cfg.Security.ClientToken.Secret)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "api: [not a mapping")

	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"port too low", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"port too high", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"empty jwt secret", func(c *Config) { c.Security.JWT.Secret = "" }, "security.jwt.secret"},
		{"empty client secret", func(c *Config) { c.Security.ClientToken.Secret = "" }, "security.client_token.secret"},
		{"zero token ttl", func(c *Config) { c.Security.JWT.TokenTTLHours = 0 }, "token_ttl_hours"},
		{"zero rotation interval", func(c *Config) { c.Encryption.RotationIntervalMinutes = 0 }, "rotation_interval_minutes"},
		{"zero key retention", func(c *Config) { c.Encryption.KeyRetention = 0 }, "key_retention"},
		{"zero freshness window", func(c *Config) { c.Encryption.FreshnessWindowSeconds = 0 }, "freshness_window_seconds"},
		{"influxdb enabled without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestInsecureDefaults(t *testing.T) {
	cfg := defaultConfig()
	names := cfg.InsecureDefaults()
	if len(names) != 2 {
		t.Fatalf("InsecureDefaults() = %v, want both secrets flagged", names)
	}

	cfg.Security.JWT.Secret = "rotated"
	names = cfg.InsecureDefaults()
	if len(names) != 1 || names[0] != "security.client_token.secret" {
		t.Errorf("InsecureDefaults() = %v, want only client token flagged", names)
	}

	cfg.Security.ClientToken.Secret = "rotated-too"
	if names := cfg.InsecureDefaults(); len(names) != 0 {
		t.Errorf("InsecureDefaults() = %v, want none", names)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaultConfig()

	if cfg.ClientTokenTTL() != 5*time.Minute {
		t.Errorf("ClientTokenTTL() = %v, want 5m", cfg.ClientTokenTTL())
	}
	if cfg.FreshnessWindow() != 30*time.Second {
		t.Errorf("FreshnessWindow() = %v, want 30s", cfg.FreshnessWindow())
	}
	if cfg.ReadTimeout() != 30*time.Second || cfg.WriteTimeout() != 30*time.Second {
		t.Error("read/write timeouts should default to 30s")
	}
	if cfg.IdleTimeout() != 60*time.Second {
		t.Errorf("IdleTimeout() = %v, want 60s", cfg.IdleTimeout())
	}
}
