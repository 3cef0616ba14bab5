package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scan interval bounds. Homeservers run a small embedded HTTP server that
// struggles when polled more often than every ten seconds.
const (
	DefaultScanInterval = 20 * time.Second
	MinScanInterval     = 10 * time.Second
)

// MinJWTSecretLength is the shortest accepted api.auth.jwt_secret.
const MinJWTSecretLength = 16

// Config is the root configuration structure for the CLAGE homeserver service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Homeserver HomeserverConfig `yaml:"homeserver"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Discovery MQTTDiscoveryConfig `yaml:"discovery"`
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

// MQTTDiscoveryConfig controls Home Assistant MQTT discovery announcements.
type MQTTDiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig enables bearer-token authorisation. An empty secret leaves
// the API open, which suits a trusted LAN.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
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

// HomeserverConfig contains polling and device-access settings shared by all
// configured homeservers, plus the statically configured devices.
type HomeserverConfig struct {
	// ScanInterval is the poll period. Values below MinScanInterval are raised
	// to the floor; zero selects DefaultScanInterval.
	ScanInterval time.Duration `yaml:"scan_interval"`

	// RequestTimeout bounds every individual device request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxParallel bounds concurrent status requests within one refresh.
	MaxParallel int `yaml:"max_parallel"`

	// Username and Password are the homeserver's HTTP basic-auth credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// InsecureTLS accepts the self-signed certificate the homeserver ships with.
	InsecureTLS bool `yaml:"insecure_tls"`

	// HistoryRetention is how long snapshot history is kept. Zero disables pruning.
	HistoryRetention time.Duration `yaml:"history_retention"`

	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one homeserver/heater pair.
type DeviceConfig struct {
	Name         string `yaml:"name"`
	IPAddress    string `yaml:"ip_address"`
	HomeserverID string `yaml:"homeserver_id"`
	HeaterID     string `yaml:"heater_id"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CLAGEHS_SECTION_KEY
// For example: CLAGEHS_DATABASE_PATH, CLAGEHS_SCAN_INTERVAL
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

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration. Useful for one-shot CLI
// commands that run without a config file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/clagehs.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "clagehs",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Discovery: MQTTDiscoveryConfig{
				Enabled: true,
				Prefix:  "homeassistant",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
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
		Homeserver: HomeserverConfig{
			ScanInterval:     DefaultScanInterval,
			RequestTimeout:   5 * time.Second,
			MaxParallel:      4,
			Username:         "appuser",
			Password:         "smart",
			InsecureTLS:      true,
			HistoryRetention: 7 * 24 * time.Hour,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CLAGEHS_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Database
	if v := os.Getenv("CLAGEHS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CLAGEHS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CLAGEHS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CLAGEHS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CLAGEHS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CLAGEHS_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CLAGEHS_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("CLAGEHS_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv("CLAGEHS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Homeserver
	if v := os.Getenv("CLAGEHS_SCAN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CLAGEHS_SCAN_INTERVAL: %w", err)
		}
		cfg.Homeserver.ScanInterval = d
	}
	if v := os.Getenv("CLAGEHS_HOMESERVER_USERNAME"); v != "" {
		cfg.Homeserver.Username = v
	}
	if v := os.Getenv("CLAGEHS_HOMESERVER_PASSWORD"); v != "" {
		cfg.Homeserver.Password = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// The scan interval is not rejected when it is below the floor; it is
// clamped by EffectiveScanInterval instead.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if s := c.API.Auth.JWTSecret; s != "" && len(s) < MinJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", MinJWTSecretLength))
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Homeserver.ScanInterval < 0 {
		errs = append(errs, "homeserver.scan_interval must not be negative")
	}
	if c.Homeserver.RequestTimeout <= 0 {
		errs = append(errs, "homeserver.request_timeout must be positive")
	}
	if c.Homeserver.MaxParallel < 1 {
		errs = append(errs, "homeserver.max_parallel must be at least 1")
	}

	seen := make(map[string]bool, len(c.Homeserver.Devices))
	for i, d := range c.Homeserver.Devices {
		prefix := fmt.Sprintf("homeserver.devices[%d]", i)
		if d.Name == "" {
			errs = append(errs, prefix+".name is required")
		} else if seen[d.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", prefix, d.Name))
		}
		seen[d.Name] = true

		if _, err := netip.ParseAddr(d.IPAddress); err != nil {
			errs = append(errs, fmt.Sprintf("%s.ip_address %q is not an IP address", prefix, d.IPAddress))
		}
		if d.HomeserverID == "" {
			errs = append(errs, prefix+".homeserver_id is required")
		}
		if d.HeaterID == "" {
			errs = append(errs, prefix+".heater_id is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// EffectiveScanInterval returns the poll period after applying the default
// and the minimum floor.
func (c *Config) EffectiveScanInterval() time.Duration {
	return ClampScanInterval(c.Homeserver.ScanInterval)
}

// ClampScanInterval applies the default and the minimum floor to d.
//
// Examples:
//
//	ClampScanInterval(0)               // 20s
//	ClampScanInterval(3 * time.Second) // 10s
//	ClampScanInterval(time.Minute)     // 1m
func ClampScanInterval(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultScanInterval
	}
	if d < MinScanInterval {
		return MinScanInterval
	}
	return d
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
