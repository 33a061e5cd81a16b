package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
router:
  host: "192.168.178.1"
  username: "presence"
  password: "router-secret"
domoticz:
  host: "127.0.0.1"
  port: 8080
  hardware_idx: 7
presence:
  poll_minutes: "3"
  macs: "aa:bb:cc:dd:ee:ff; 11-22-33-44-55-66"
database:
  path: "/tmp/test.db"
mqtt:
  qos: 1
api:
  port: 8090
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
  admin:
    password_hash: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Router.Host != "192.168.178.1" {
		t.Errorf("Router.Host = %q, want %q", cfg.Router.Host, "192.168.178.1")
	}
	if cfg.Router.TR064Port != 49000 {
		t.Errorf("Router.TR064Port = %d, want default 49000", cfg.Router.TR064Port)
	}
	if cfg.Domoticz.HardwareIdx != 7 {
		t.Errorf("Domoticz.HardwareIdx = %d, want 7", cfg.Domoticz.HardwareIdx)
	}
	if cfg.Domoticz.AdminName != "FP - Admin" {
		t.Errorf("Domoticz.AdminName = %q, want default", cfg.Domoticz.AdminName)
	}
	if cfg.MQTT.Topics.DomoticzIn != "domoticz/in" {
		t.Errorf("MQTT.Topics.DomoticzIn = %q, want domoticz/in", cfg.MQTT.Topics.DomoticzIn)
	}

	interval, err := cfg.PollInterval()
	if err != nil {
		t.Fatalf("PollInterval() error = %v", err)
	}
	if interval != 3*time.Minute {
		t.Errorf("PollInterval() = %v, want 3m", interval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := strings.Replace(validYAML, `password: "router-secret"`, `password: "   "`, 1)
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for blank password, got nil")
	}
	if !strings.Contains(err.Error(), "router.username / router.password missing") {
		t.Errorf("Load() error = %v, want credentials message", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	content := strings.Replace(validYAML, `password: "router-secret"`, `password: ""`, 1)
	configPath := writeConfig(t, content)
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := os.WriteFile(envPath, []byte("FRITZPRESENCE_ROUTER_PASSWORD=from-dotenv\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	// Register cleanup, then make sure the variable is absent so .env applies.
	t.Setenv("FRITZPRESENCE_ROUTER_PASSWORD", "")
	os.Unsetenv("FRITZPRESENCE_ROUTER_PASSWORD")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Router.Password != "from-dotenv" {
		t.Errorf("Router.Password = %q, want %q", cfg.Router.Password, "from-dotenv")
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	configPath := writeConfig(t, validYAML)
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := os.WriteFile(envPath, []byte("FRITZPRESENCE_ROUTER_HOST=dotenv.box\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("FRITZPRESENCE_ROUTER_HOST", "env.box")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Router.Host != "env.box" {
		t.Errorf("Router.Host = %q, want %q", cfg.Router.Host, "env.box")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Router.Username = "presence"
	cfg.Router.Password = "secret"
	cfg.Domoticz.HardwareIdx = 3
	cfg.Security.JWT.Secret = "this-is-a-very-long-secret-key-for-testing"
	cfg.Security.Admin.PasswordHash = "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(*Config) {},
		},
		{
			name:    "empty username",
			modify:  func(c *Config) { c.Router.Username = "" },
			wantErr: "router.username",
		},
		{
			name:    "whitespace password",
			modify:  func(c *Config) { c.Router.Password = " \t" },
			wantErr: "router.password",
		},
		{
			name:    "empty router host",
			modify:  func(c *Config) { c.Router.Host = "" },
			wantErr: "router.host",
		},
		{
			name:    "non-numeric poll interval",
			modify:  func(c *Config) { c.Presence.PollMinutes = "five" },
			wantErr: "invalid polling interval",
		},
		{
			name:    "missing hardware idx",
			modify:  func(c *Config) { c.Domoticz.HardwareIdx = 0 },
			wantErr: "domoticz.hardware_idx",
		},
		{
			name:    "invalid domoticz port",
			modify:  func(c *Config) { c.Domoticz.Port = 70000 },
			wantErr: "domoticz.port",
		},
		{
			name:    "empty database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "negative history retention",
			modify:  func(c *Config) { c.Database.HistoryRetentionDays = -1 },
			wantErr: "database.history_retention_days",
		},
		{
			name:    "invalid QoS",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "missing domoticz topics",
			modify:  func(c *Config) { c.MQTT.Topics.DomoticzOut = "" },
			wantErr: "mqtt.topics",
		},
		{
			name:    "short JWT secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "missing admin password hash",
			modify:  func(c *Config) { c.Security.Admin.PasswordHash = "" },
			wantErr: "password_hash",
		},
		{
			name: "API disabled skips security checks",
			modify: func(c *Config) {
				c.API.Enabled = false
				c.Security.JWT.Secret = ""
				c.Security.Admin.PasswordHash = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_PollInterval(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{value: "5", want: 5 * time.Minute},
		{value: " 10 ", want: 10 * time.Minute},
		{value: "0", want: time.Minute},
		{value: "-4", want: time.Minute},
		{value: "61", want: 60 * time.Minute},
		{value: "600", want: 60 * time.Minute},
		{value: "", wantErr: true},
		{value: "1.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := validConfig()
			cfg.Presence.PollMinutes = tt.value

			got, err := cfg.PollInterval()
			if (err != nil) != tt.wantErr {
				t.Fatalf("PollInterval() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("PollInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 10, Write: 20, Idle: 30},
		},
	}

	if got := cfg.GetReadTimeout(); got != 10*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 20*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 20s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 30*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 30s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FRITZPRESENCE_ROUTER_USERNAME", "env-user")
	t.Setenv("FRITZPRESENCE_ROUTER_PASSWORD", "env-pass")
	t.Setenv("FRITZPRESENCE_PRESENCE_MACS", "AA:BB:CC:DD:EE:FF")
	t.Setenv("FRITZPRESENCE_PRESENCE_POLL_MINUTES", "15")
	t.Setenv("FRITZPRESENCE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FRITZPRESENCE_DATABASE_PATH", "/env/test.db")
	t.Setenv("FRITZPRESENCE_JWT_SECRET", "env-secret-key-at-least-32-characters")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Router.Username != "env-user" {
		t.Errorf("Router.Username = %q, want %q", cfg.Router.Username, "env-user")
	}
	if cfg.Router.Password != "env-pass" {
		t.Errorf("Router.Password = %q, want %q", cfg.Router.Password, "env-pass")
	}
	if cfg.Presence.MACs != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Presence.MACs = %q, want override", cfg.Presence.MACs)
	}
	if cfg.Presence.PollMinutes != "15" {
		t.Errorf("Presence.PollMinutes = %q, want 15", cfg.Presence.PollMinutes)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.Database.Path != "/env/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/env/test.db")
	}
	if cfg.Security.JWT.Secret != "env-secret-key-at-least-32-characters" {
		t.Errorf("Security.JWT.Secret = %q, want override", cfg.Security.JWT.Secret)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Router.Host != "fritz.box" {
		t.Errorf("default Router.Host = %q, want fritz.box", cfg.Router.Host)
	}
	if cfg.Presence.PollMinutes != "5" {
		t.Errorf("default Presence.PollMinutes = %q, want 5", cfg.Presence.PollMinutes)
	}
	if cfg.Presence.LocalWOL.Enabled {
		t.Error("default Presence.LocalWOL.Enabled = true, want false")
	}
	if cfg.MQTT.Embedded.Enabled {
		t.Error("default MQTT.Embedded.Enabled = true, want false")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q, want info", cfg.Logging.Level)
	}
}
