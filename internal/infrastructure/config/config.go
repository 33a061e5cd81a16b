package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Poll interval bounds, in minutes.
const (
	MinPollMinutes = 1
	MaxPollMinutes = 60
)

// Config is the root configuration structure for Fritz!Presence.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Router    RouterConfig    `yaml:"router"`
	Domoticz  DomoticzConfig  `yaml:"domoticz"`
	Presence  PresenceConfig  `yaml:"presence"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// RouterConfig contains the Fritz!Box connection settings.
type RouterConfig struct {
	// Host is the router host name or IP address (e.g. "fritz.box").
	Host string `yaml:"host"`

	// Username and Password authenticate against the TR-064 interface.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TR064Port is the TR-064 SOAP port. Default: 49000
	TR064Port int `yaml:"tr064_port"`

	// Timeout is the per-request timeout in seconds. Default: 10
	Timeout int `yaml:"timeout"`
}

// DomoticzConfig contains the home-automation host settings.
type DomoticzConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// HardwareIdx is the idx of the Dummy hardware that owns the switches.
	HardwareIdx int `yaml:"hardware_idx"`

	// Username and Password enable HTTP basic auth when set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Timeout is the per-request timeout in seconds. Default: 10
	Timeout int `yaml:"timeout"`

	// AdminName is the name of the admin selector switch.
	AdminName string `yaml:"admin_name"`
}

// PresenceConfig contains the polling and device list settings.
type PresenceConfig struct {
	// PollMinutes is the poll interval in minutes, kept as text so that an
	// invalid value is reported rather than silently defaulted.
	PollMinutes string `yaml:"poll_minutes"`

	// MACs is a ';' separated list of hardware addresses to mirror.
	MACs string `yaml:"macs"`

	// Debug raises the log level to debug.
	Debug bool `yaml:"debug"`

	// Filters are named host filter expressions, e.g.
	// guests: 'Active && HostName startsWith "guest"'
	Filters map[string]string `yaml:"filters"`

	// LocalWOL sends a UDP magic packet when the router cannot wake a host.
	LocalWOL LocalWOLConfig `yaml:"local_wol"`
}

// LocalWOLConfig configures the local wake-on-LAN fallback.
type LocalWOLConfig struct {
	Enabled          bool   `yaml:"enabled"`
	BroadcastAddress string `yaml:"broadcast_address"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays bounds the presence history. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
	Embedded  MQTTEmbeddedConfig  `yaml:"embedded"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// MQTTTopicsConfig names the topics exchanged with Domoticz.
type MQTTTopicsConfig struct {
	// DomoticzIn receives device updates (Domoticz MQTT "in" topic).
	DomoticzIn string `yaml:"domoticz_in"`

	// DomoticzOut carries device changes made inside Domoticz.
	DomoticzOut string `yaml:"domoticz_out"`

	// Prefix is the base for this service's own state and health topics.
	Prefix string `yaml:"prefix"`
}

// MQTTEmbeddedConfig configures the optional in-process broker.
type MQTTEmbeddedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT   JWTConfig   `yaml:"jwt"`
	Admin AdminConfig `yaml:"admin"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// AdminConfig holds the single API operator account.
type AdminConfig struct {
	Username string `yaml:"username"`

	// PasswordHash is an Argon2id PHC string ($argon2id$v=19$...).
	PasswordHash string `yaml:"password_hash"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file next to the config file (never overrides the real environment)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: FRITZPRESENCE_SECTION_KEY
// For example: FRITZPRESENCE_ROUTER_PASSWORD, FRITZPRESENCE_PRESENCE_MACS
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

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Router: RouterConfig{
			Host:      "fritz.box",
			TR064Port: 49000,
			Timeout:   10,
		},
		Domoticz: DomoticzConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			Timeout:   10,
			AdminName: "FP - Admin",
		},
		Presence: PresenceConfig{
			PollMinutes: "5",
			LocalWOL: LocalWOLConfig{
				BroadcastAddress: "255.255.255.255:9",
			},
		},
		Database: DatabaseConfig{
			Path:                 "./data/fritzpresence.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fritzpresence",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				DomoticzIn:  "domoticz/in",
				DomoticzOut: "domoticz/out",
				Prefix:      "fritzpresence",
			},
			Embedded: MQTTEmbeddedConfig{
				Listen: ":1883",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
			Admin: AdminConfig{
				Username: "admin",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FRITZPRESENCE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Router
	if v := os.Getenv("FRITZPRESENCE_ROUTER_HOST"); v != "" {
		cfg.Router.Host = v
	}
	if v := os.Getenv("FRITZPRESENCE_ROUTER_USERNAME"); v != "" {
		cfg.Router.Username = v
	}
	if v := os.Getenv("FRITZPRESENCE_ROUTER_PASSWORD"); v != "" {
		cfg.Router.Password = v
	}

	// Domoticz
	if v := os.Getenv("FRITZPRESENCE_DOMOTICZ_HOST"); v != "" {
		cfg.Domoticz.Host = v
	}
	if v := os.Getenv("FRITZPRESENCE_DOMOTICZ_USERNAME"); v != "" {
		cfg.Domoticz.Username = v
	}
	if v := os.Getenv("FRITZPRESENCE_DOMOTICZ_PASSWORD"); v != "" {
		cfg.Domoticz.Password = v
	}

	// Presence
	if v := os.Getenv("FRITZPRESENCE_PRESENCE_MACS"); v != "" {
		cfg.Presence.MACs = v
	}
	if v := os.Getenv("FRITZPRESENCE_PRESENCE_POLL_MINUTES"); v != "" {
		cfg.Presence.PollMinutes = v
	}

	// Database
	if v := os.Getenv("FRITZPRESENCE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FRITZPRESENCE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FRITZPRESENCE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FRITZPRESENCE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FRITZPRESENCE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("FRITZPRESENCE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("FRITZPRESENCE_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Security.Admin.PasswordHash = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Router credentials are mandatory; the router refuses anonymous TR-064 calls.
	if strings.TrimSpace(c.Router.Host) == "" {
		errs = append(errs, "router.host is required")
	}
	if strings.TrimSpace(c.Router.Username) == "" || strings.TrimSpace(c.Router.Password) == "" {
		errs = append(errs, "router.username / router.password missing")
	}

	if _, err := c.PollInterval(); err != nil {
		errs = append(errs, err.Error())
	}

	// Domoticz validation
	if c.Domoticz.Port < 1 || c.Domoticz.Port > 65535 {
		errs = append(errs, "domoticz.port must be between 1 and 65535")
	}
	if c.Domoticz.HardwareIdx <= 0 {
		errs = append(errs, "domoticz.hardware_idx is required (idx of a Dummy hardware)")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.DomoticzIn == "" || c.MQTT.Topics.DomoticzOut == "" {
		errs = append(errs, "mqtt.topics.domoticz_in and mqtt.topics.domoticz_out are required")
	}

	// API validation (only when the API is served)
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set FRITZPRESENCE_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
		if c.Security.Admin.PasswordHash == "" {
			errs = append(errs, "security.admin.password_hash is required when the API is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval parses presence.poll_minutes and clamps it to 1..60 minutes.
//
// Returns:
//   - time.Duration: The clamped poll interval
//   - error: If the value is not an integer
func (c *Config) PollInterval() (time.Duration, error) {
	minutes, err := strconv.Atoi(strings.TrimSpace(c.Presence.PollMinutes))
	if err != nil {
		return 0, fmt.Errorf("presence.poll_minutes: invalid polling interval %q", c.Presence.PollMinutes)
	}
	minutes = max(MinPollMinutes, min(MaxPollMinutes, minutes))
	return time.Duration(minutes) * time.Minute, nil
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
