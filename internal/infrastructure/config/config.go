package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Development-only fallback secrets. Either of these in production is a
// misconfiguration; Load reports their use via InsecureDefaults so the
// caller can log a warning at startup.
const (
	// DevJWTSecret signs bearer tokens when no secret is configured.
	DevJWTSecret = "biocard-dev-secret-key-change-in-production"

	// DevClientSecret signs anti-replay client tokens when no secret is configured.
	DevClientSecret = "biocard-dev-client-secret-change-in-production"
)

// Config is the root configuration structure for BioCard Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Encryption EncryptionConfig `yaml:"encryption"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT         JWTConfig         `yaml:"jwt"`
	ClientToken ClientTokenConfig `yaml:"client_token"`
}

// JWTConfig contains bearer token settings.
type JWTConfig struct {
	// Secret signs and verifies bearer tokens. Override via BIOCARD_JWT_SECRET.
	Secret string `yaml:"secret"`

	// TokenTTLHours is the bearer token lifetime in hours.
	TokenTTLHours int `yaml:"token_ttl_hours"`
}

// ClientTokenConfig contains anti-replay client token settings.
type ClientTokenConfig struct {
	// Secret signs client tokens. Override via BIOCARD_CLIENT_SECRET.
	Secret string `yaml:"secret"`

	// TTLMinutes is the client token validity window in minutes.
	TTLMinutes int `yaml:"ttl_minutes"`
}

// EncryptionConfig contains end-to-end encryption settings.
type EncryptionConfig struct {
	// RotationIntervalMinutes is how often a fresh keypair is generated.
	RotationIntervalMinutes int `yaml:"rotation_interval_minutes"`

	// KeyRetention is the number of historical keypairs kept after rotation.
	KeyRetention int `yaml:"key_retention"`

	// FreshnessWindowSeconds is the maximum allowed age of an encrypted
	// payload's timestamp before it is rejected as a replay.
	FreshnessWindowSeconds int `yaml:"freshness_window_seconds"`
}

// InfluxDBConfig contains optional telemetry export settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// InsecureDefaults reports which development fallback secrets are in use.
// A production deployment should have none.
func (c *Config) InsecureDefaults() []string {
	var names []string
	if c.Security.JWT.Secret == DevJWTSecret {
		names = append(names, "security.jwt.secret")
	}
	if c.Security.ClientToken.Secret == DevClientSecret {
		names = append(names, "security.client_token.secret")
	}
	return names
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BIOCARD_SECTION_KEY
// For example: BIOCARD_DATABASE_PATH, BIOCARD_JWT_SECRET
//
// If the file does not exist, defaults plus environment overrides are used.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parsing config file: %w", unmarshalErr)
		}
	case os.IsNotExist(err):
		// Run on defaults; env overrides may still supply everything needed.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3001,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/biocard.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Secret:        DevJWTSecret,
				TokenTTLHours: 24,
			},
			ClientToken: ClientTokenConfig{
				Secret:     DevClientSecret,
				TTLMinutes: 5,
			},
		},
		Encryption: EncryptionConfig{
			RotationIntervalMinutes: 5,
			KeyRetention:            10,
			FreshnessWindowSeconds:  30,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BIOCARD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("BIOCARD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("BIOCARD_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Database
	if v := os.Getenv("BIOCARD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Logging
	if v := os.Getenv("BIOCARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security - secrets (IMPORTANT: always override in production)
	if v := os.Getenv("BIOCARD_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("BIOCARD_CLIENT_SECRET"); v != "" {
		cfg.Security.ClientToken.Secret = v
	}

	// InfluxDB
	if v := os.Getenv("BIOCARD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret must not be empty")
	}
	if c.Security.ClientToken.Secret == "" {
		errs = append(errs, "security.client_token.secret must not be empty")
	}
	if c.Security.JWT.TokenTTLHours <= 0 {
		errs = append(errs, "security.jwt.token_ttl_hours must be positive")
	}

	if c.Encryption.RotationIntervalMinutes <= 0 {
		errs = append(errs, "encryption.rotation_interval_minutes must be positive")
	}
	if c.Encryption.KeyRetention < 1 {
		errs = append(errs, "encryption.key_retention must be at least 1")
	}
	if c.Encryption.FreshnessWindowSeconds <= 0 {
		errs = append(errs, "encryption.freshness_window_seconds must be positive")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TokenTTL returns the bearer token lifetime as a Duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTLHours) * time.Hour
}

// ClientTokenTTL returns the client token validity window as a Duration.
func (c *Config) ClientTokenTTL() time.Duration {
	return time.Duration(c.Security.ClientToken.TTLMinutes) * time.Minute
}

// RotationInterval returns the keypair rotation interval as a Duration.
func (c *Config) RotationInterval() time.Duration {
	return time.Duration(c.Encryption.RotationIntervalMinutes) * time.Minute
}

// FreshnessWindow returns the encrypted payload freshness window as a Duration.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Encryption.FreshnessWindowSeconds) * time.Second
}

// ReadTimeout returns the API read timeout as a Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
