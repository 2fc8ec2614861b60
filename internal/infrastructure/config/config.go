package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the LED controller service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Controller ControllerConfig `yaml:"controller"`

	// Entries are config entries seeded into the database on first start.
	// Entries already present (same domain and data) are not duplicated.
	Entries []EntryConfig `yaml:"entries"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long light state history is kept.
	// Zero disables pruning.
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of all light topics (e.g. "ledcontroller").
	TopicPrefix string `yaml:"topic_prefix"`

	// DiscoveryPrefix is the Home Assistant discovery root (e.g. "homeassistant").
	// Empty disables discovery publishing.
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// HealthInterval is how often the bridge publishes its health status.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
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
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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

// ControllerConfig holds timing for talking to LED controllers.
//
// The hardware is slow to settle after a write and easily overwhelmed when
// several modules share one TCP connection, so none of these are contracts:
// tune them per installation.
type ControllerConfig struct {
	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// CommandTimeout bounds a single brightness write.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// UpdateTimeout bounds a single state read.
	UpdateTimeout time.Duration `yaml:"update_timeout"`

	// RefreshDelay is the pause between a write and the forced read-back.
	RefreshDelay time.Duration `yaml:"refresh_delay"`

	// RegistrationDelay is the pause between registering successive
	// Multivision modules on one connection.
	RegistrationDelay time.Duration `yaml:"registration_delay"`

	// PollInterval is how often every light is refreshed.
	PollInterval time.Duration `yaml:"poll_interval"`

	// SetupRetry controls host-side retries of entries that were not ready.
	SetupRetry SetupRetryConfig `yaml:"setup_retry"`
}

// SetupRetryConfig is the exponential backoff applied to not-ready entries.
type SetupRetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`

	// MaxElapsed stops retrying after this long. Zero retries forever.
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

// EntryConfig is a config entry declared in the YAML file.
type EntryConfig struct {
	Domain string `yaml:"domain"`

	// Title labels the seed in logs. The stored title comes from the
	// integration's config flow.
	Title string         `yaml:"title"`
	Data  map[string]any `yaml:"data"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LEDCONTROLLER_SECTION_KEY
// For example: LEDCONTROLLER_DATABASE_PATH, LEDCONTROLLER_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:             "./data/ledcontroller.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30 * 24 * time.Hour,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ledcontroller",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix:     "ledcontroller",
			DiscoveryPrefix: "homeassistant",
			HealthInterval:  30 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8123,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Controller: ControllerConfig{
			ConnectTimeout:    10 * time.Second,
			CommandTimeout:    5 * time.Second,
			UpdateTimeout:     5 * time.Second,
			RefreshDelay:      500 * time.Millisecond,
			RegistrationDelay: 500 * time.Millisecond,
			PollInterval:      30 * time.Second,
			SetupRetry: SetupRetryConfig{
				InitialInterval: 5 * time.Second,
				MaxInterval:     5 * time.Minute,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LEDCONTROLLER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LEDCONTROLLER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LEDCONTROLLER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LEDCONTROLLER_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("LEDCONTROLLER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LEDCONTROLLER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LEDCONTROLLER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LEDCONTROLLER_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("LEDCONTROLLER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("LEDCONTROLLER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Controller.validate()...)

	for i, e := range c.Entries {
		if e.Domain == "" {
			errs = append(errs, fmt.Sprintf("entries[%d].domain is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c ControllerConfig) validate() []string {
	var errs []string
	if c.ConnectTimeout <= 0 {
		errs = append(errs, "controller.connect_timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, "controller.command_timeout must be positive")
	}
	if c.UpdateTimeout <= 0 {
		errs = append(errs, "controller.update_timeout must be positive")
	}
	if c.RefreshDelay < 0 {
		errs = append(errs, "controller.refresh_delay must not be negative")
	}
	if c.RegistrationDelay < 0 {
		errs = append(errs, "controller.registration_delay must not be negative")
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "controller.poll_interval must be positive")
	}
	if c.SetupRetry.InitialInterval <= 0 {
		errs = append(errs, "controller.setup_retry.initial_interval must be positive")
	}
	if c.SetupRetry.MaxInterval < c.SetupRetry.InitialInterval {
		errs = append(errs, "controller.setup_retry.max_interval must not be below initial_interval")
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
