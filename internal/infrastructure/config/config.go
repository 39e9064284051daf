package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the EOT cloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud    CloudConfig    `yaml:"cloud"`
	Auth     AuthConfig     `yaml:"auth"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Sync     SyncConfig     `yaml:"sync"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CloudConfig contains the vendor REST API endpoints.
type CloudConfig struct {
	// APIURL is the single HTTPS endpoint serving SYNC/QUERY/EXECUTE intents.
	APIURL string `yaml:"api_url"`

	// TokenURL is the OAuth2 token endpoint for password and refresh_token grants.
	TokenURL string `yaml:"token_url"`

	// ClientID is the public OAuth2 client identifier.
	ClientID string `yaml:"client_id"`

	// Timeout is the per-request HTTP timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// AuthConfig contains the vendor account credentials.
// Both fields should normally be supplied via environment variables.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTConfig contains AWS IoT push endpoint settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains AWS IoT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// AuthorizerName is the AWS IoT custom authorizer named in the
	// connect username.
	AuthorizerName string `yaml:"authorizer_name"`

	// CAFile is the path to the root CA bundle used for server certificate
	// pinning. When empty the system trust store is used.
	CAFile string `yaml:"ca_file"`

	// ClientIDPrefix is prepended to the per-user MQTT client identifier.
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTReconnectConfig contains reconnection backoff settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// SyncConfig contains polling and push processing settings.
type SyncConfig struct {
	// Interval is the poll cycle period. Default: 1h.
	Interval time.Duration `yaml:"interval"`

	// EventBuffer is the capacity of the push event hand-off channel.
	EventBuffer int `yaml:"event_buffer"`
}

// DatabaseConfig contains SQLite database settings for state history.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EOTBRIDGE_SECTION_KEY
// For example: EOTBRIDGE_AUTH_USERNAME, EOTBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
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
		Cloud: CloudConfig{
			Timeout: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port:           443,
				ClientIDPrefix: "eotBridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Sync: SyncConfig{
			Interval:    time.Hour,
			EventBuffer: 256,
		},
		Database: DatabaseConfig{
			Path:        "./data/eotbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EOTBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Credentials - always prefer the environment over the config file
	if v := os.Getenv("EOTBRIDGE_AUTH_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("EOTBRIDGE_AUTH_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	// Cloud
	if v := os.Getenv("EOTBRIDGE_CLOUD_API_URL"); v != "" {
		cfg.Cloud.APIURL = v
	}
	if v := os.Getenv("EOTBRIDGE_CLOUD_TOKEN_URL"); v != "" {
		cfg.Cloud.TokenURL = v
	}
	if v := os.Getenv("EOTBRIDGE_CLOUD_CLIENT_ID"); v != "" {
		cfg.Cloud.ClientID = v
	}

	// MQTT
	if v := os.Getenv("EOTBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EOTBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}

	// Database
	if v := os.Getenv("EOTBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("EOTBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Cloud.APIURL == "" {
		errs = append(errs, "cloud.api_url is required")
	}
	if c.Cloud.TokenURL == "" {
		errs = append(errs, "cloud.token_url is required")
	}
	if c.Cloud.ClientID == "" {
		errs = append(errs, "cloud.client_id is required")
	}
	if c.Cloud.Timeout <= 0 {
		errs = append(errs, "cloud.timeout must be positive")
	}

	if c.Auth.Username == "" {
		errs = append(errs, "auth.username is required (set EOTBRIDGE_AUTH_USERNAME)")
	}
	if c.Auth.Password == "" {
		errs = append(errs, "auth.password is required (set EOTBRIDGE_AUTH_PASSWORD)")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.AuthorizerName == "" {
		errs = append(errs, "mqtt.broker.authorizer_name is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be positive")
	}
	if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must be >= initial_delay")
	}

	if c.Sync.Interval < time.Minute {
		errs = append(errs, "sync.interval must be at least 1m")
	}
	if c.Sync.EventBuffer <= 0 {
		errs = append(errs, "sync.event_buffer must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
