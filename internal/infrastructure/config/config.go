package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for upswatch.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	StatePath string          `yaml:"state_path"`
	UPSD      UPSDConfig      `yaml:"upsd"`
	Driver    DriverConfig    `yaml:"driver"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Users     []UserConfig    `yaml:"users"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// UPSDConfig contains aggregation daemon settings. Durations are in seconds.
type UPSDConfig struct {
	// MaxAge marks a device stale when its driver has been silent this long.
	MaxAge int `yaml:"max_age"`

	// PingInterval is how long a driver may be silent before it is pinged.
	PingInterval int `yaml:"ping_interval"`

	// ReconnectInterval spaces connection attempts to a down driver.
	ReconnectInterval int `yaml:"reconnect_interval"`

	// ConnFailLogInterval throttles "can't connect" log lines per device.
	ConnFailLogInterval int `yaml:"connfail_log_interval"`

	// Discover monitors driver sockets found in state_path that no device declares.
	Discover bool `yaml:"discover"`

	// WatchConfig reloads the device list when the config file changes.
	WatchConfig bool `yaml:"watch_config"`

	// EventQueueSize bounds events waiting for the sinks.
	EventQueueSize int `yaml:"event_queue_size"`

	// HistoryRetentionDays prunes event history older than this. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// DriverConfig contains settings shared by every driver process.
type DriverConfig struct {
	// Path is the directory holding driver executables.
	Path string `yaml:"path"`

	// PollInterval is the default seconds between hardware polls.
	PollInterval int `yaml:"poll_interval"`

	// MaxStartDelay is how long upsdrvctl waits for a driver's socket, in seconds.
	MaxStartDelay int `yaml:"max_start_delay"`

	// RestartOnFailure restarts drivers that exit unexpectedly.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelay is the initial delay before a restart, in seconds.
	RestartDelay int `yaml:"restart_delay"`

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// DeviceConfig declares one UPS.
type DeviceConfig struct {
	Name          string            `yaml:"name"`
	Driver        string            `yaml:"driver"`
	Port          string            `yaml:"port"`
	Desc          string            `yaml:"desc"`
	PollInterval  int               `yaml:"poll_interval"`
	MaxStartDelay int               `yaml:"max_start_delay"`
	Options       map[string]string `yaml:"options"`
}

// UserConfig declares an API user and what it may change.
type UserConfig struct {
	Name string `yaml:"name"`

	// Password is an argon2id PHC hash, as printed by "upsd hash-password".
	Password string `yaml:"password"`

	// Actions lists the permitted actions: SET, FSD.
	Actions []string `yaml:"actions"`

	// InstCmds lists the permitted instant commands, or "all".
	InstCmds []string `yaml:"instcmds"`
}

// DatabaseConfig contains SQLite event history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Commands    bool                `yaml:"commands_enabled"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// Panel serves the browser status page at "/".
	Panel bool `yaml:"panel"`

	// PanelDir serves the status page from disk instead of the built-in copy.
	PanelDir string `yaml:"panel_dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// RateLimitConfig limits control requests (SET, INSTCMD, FSD).
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: UPSWATCH_SECTION_KEY
// For example: UPSWATCH_STATE_PATH, UPSWATCH_API_PORT
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

// Default returns the built-in configuration with environment overrides
// applied, for tools run without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "upswatch",
		},
		StatePath: "/var/run/nut",
		UPSD: UPSDConfig{
			MaxAge:              15,
			PingInterval:        5,
			ReconnectInterval:   5,
			ConnFailLogInterval: 300,
			EventQueueSize:      1024,
		},
		Driver: DriverConfig{
			Path:               "/usr/local/bin",
			PollInterval:       2,
			MaxStartDelay:      45,
			RestartOnFailure:   true,
			RestartDelay:       5,
			MaxRestartAttempts: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/upswatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "upswatch",
			},
			QoS:         1,
			TopicPrefix: "upswatch",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:           "upswatch",
			Bucket:        "ups",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    3493,
			Panel:   true,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 4096,
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
				AccessTokenTTL: 60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UPSWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UPSWATCH_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}

	if v := os.Getenv("UPSWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("UPSWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UPSWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UPSWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("UPSWATCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("UPSWATCH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("UPSWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("UPSWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("UPSWATCH_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.StatePath == "" {
		errs = append(errs, "state_path is required")
	}

	if c.UPSD.MaxAge <= 0 {
		errs = append(errs, "upsd.max_age must be positive")
	}
	if c.UPSD.PingInterval <= 0 || c.UPSD.PingInterval >= c.UPSD.MaxAge {
		errs = append(errs, "upsd.ping_interval must be positive and less than upsd.max_age")
	}

	errs = append(errs, c.validateDevices()...)
	errs = append(errs, c.validateUsers()...)

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// Users can change UPS settings and force shutdowns, so a weak
		// secret would let anyone mint a token that powers off the site.
		const minJWTSecretLength = 32
		if len(c.Users) > 0 {
			if c.Security.JWT.Secret == "" {
				errs = append(errs, "security.jwt.secret is required when users are defined (set UPSWATCH_JWT_SECRET)")
			} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
				errs = append(errs, "security.jwt.secret must be at least 32 characters")
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateDevices() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Devices))

	for i, d := range c.Devices {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Sprintf("devices[%d].name is required", i))
			continue
		case strings.ContainsAny(d.Name, " \t/"):
			errs = append(errs, fmt.Sprintf("devices[%d].name %q must not contain spaces or slashes", i, d.Name))
		}

		key := strings.ToLower(d.Name)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("devices[%d].name %q is defined more than once", i, d.Name))
		}
		seen[key] = true

		if d.Driver == "" {
			errs = append(errs, fmt.Sprintf("devices[%d] (%s): driver is required", i, d.Name))
		}
		if d.Port == "" {
			errs = append(errs, fmt.Sprintf("devices[%d] (%s): port is required", i, d.Name))
		}
	}

	return errs
}

func (c *Config) validateUsers() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Users))

	for i, u := range c.Users {
		if u.Name == "" {
			errs = append(errs, fmt.Sprintf("users[%d].name is required", i))
			continue
		}
		if seen[u.Name] {
			errs = append(errs, fmt.Sprintf("users[%d].name %q is defined more than once", i, u.Name))
		}
		seen[u.Name] = true

		if !strings.HasPrefix(u.Password, "$argon2id$") {
			errs = append(errs, fmt.Sprintf("users[%d] (%s): password must be an argon2id hash (see upsd hash-password)", i, u.Name))
		}
		for _, a := range u.Actions {
			switch strings.ToUpper(a) {
			case "SET", "FSD":
			default:
				errs = append(errs, fmt.Sprintf("users[%d] (%s): unknown action %q", i, u.Name, a))
			}
		}
	}

	return errs
}

// Device returns the device with the given name, case-insensitively.
func (c *Config) Device(name string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// GetPollInterval returns the device's poll interval, falling back to the
// driver section default.
func (c *Config) GetPollInterval(dev DeviceConfig) time.Duration {
	if dev.PollInterval > 0 {
		return Seconds(dev.PollInterval)
	}
	return Seconds(c.Driver.PollInterval)
}

// GetMaxStartDelay returns how long upsdrvctl waits for the device's
// driver to create its socket.
func (c *Config) GetMaxStartDelay(dev DeviceConfig) time.Duration {
	if dev.MaxStartDelay > 0 {
		return Seconds(dev.MaxStartDelay)
	}
	return Seconds(c.Driver.MaxStartDelay)
}

// ResolvePort makes a relative device port relative to the directory of
// the config file at configPath. Absolute ports, and ports that are not
// file names ("auto"), are returned unchanged.
func ResolvePort(configPath, port string) string {
	if port == "" || port == "auto" || filepath.IsAbs(port) {
		return port
	}
	return filepath.Join(filepath.Dir(configPath), port)
}

// Seconds converts a config value in seconds to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Read)
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Write)
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Idle)
}
