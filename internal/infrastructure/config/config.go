package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the device service.
// Values come from defaults, then the YAML file, then environment variables.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Controller ControllerConfig `yaml:"controller"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// ServiceConfig identifies this supervisor instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains event bus connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive time.Duration       `yaml:"keepalive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Dispatch  MQTTDispatchConfig  `yaml:"dispatch"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// An empty ClientID is replaced by device_service_{unixMillis}_{pid}.
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

// MQTTReconnectConfig controls connection retries.
// Every retry waits the same Delay; MaxAttempts bounds the initial
// connection only (0 means keep trying until the context ends).
type MQTTReconnectConfig struct {
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// MQTTDispatchConfig sizes the worker pool that runs inbound message handlers.
type MQTTDispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// MonitorConfig controls the health monitor loop.
type MonitorConfig struct {
	// PollInterval is the sleep between the end of one cycle and the start of the next.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ErrorBackoff is the sleep after a cycle that failed as a whole.
	ErrorBackoff time.Duration `yaml:"error_backoff"`

	// LogChanges logs prior and new status values on every cache update.
	LogChanges bool `yaml:"log_changes"`
}

// ControllerConfig contains settings for calls to remote proxy endpoints.
type ControllerConfig struct {
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	StartTimeout     time.Duration `yaml:"start_timeout"`
	PortCheckTimeout time.Duration `yaml:"port_check_timeout"`
	HealthPath       string        `yaml:"health_path"`
	StartPath        string        `yaml:"start_path"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the status stream.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains settings for monitor telemetry.
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
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings. An empty Secret disables auth.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values (a missing file is not an error)
//  3. Environment variables
//
// Environment variables use the DEVICE_SERVICE_ prefix, for example
// DEVICE_SERVICE_MQTT_HOST. SHOULD_LOG_CHANGES is also honoured.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// env-only deployment
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "device-service",
			Name: "MCS Device Service",
		},
		Database: DatabaseConfig{
			Path:        "./data/device_service.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "127.0.0.1",
				Port: 2834,
			},
			QoS:       1,
			KeepAlive: 60 * time.Second,
			Reconnect: MQTTReconnectConfig{
				Delay:       5 * time.Second,
				MaxAttempts: 3,
			},
			Dispatch: MQTTDispatchConfig{
				Workers:   4,
				QueueSize: 256,
			},
		},
		Monitor: MonitorConfig{
			PollInterval: 200 * time.Millisecond,
			ErrorBackoff: time.Second,
		},
		Controller: ControllerConfig{
			ProbeTimeout:     5 * time.Second,
			StartTimeout:     2 * time.Second,
			PortCheckTimeout: 200 * time.Millisecond,
			HealthPath:       "/health",
			StartPath:        "/start",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5200,
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

// applyEnvOverrides applies DEVICE_SERVICE_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	setSeconds := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := parseSeconds(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	setString("DEVICE_SERVICE_DATABASE_PATH", &cfg.Database.Path)

	setString("DEVICE_SERVICE_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("DEVICE_SERVICE_MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("DEVICE_SERVICE_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("DEVICE_SERVICE_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)
	setSeconds("DEVICE_SERVICE_MQTT_RECONNECT_DELAY", &cfg.MQTT.Reconnect.Delay)

	setSeconds("DEVICE_SERVICE_POLL_INTERVAL", &cfg.Monitor.PollInterval)
	setSeconds("DEVICE_SERVICE_CONTROLLER_API_TIMEOUT", &cfg.Controller.StartTimeout)

	setString("DEVICE_SERVICE_LOG_LEVEL", &cfg.Logging.Level)
	setInt("DEVICE_SERVICE_API_PORT", &cfg.API.Port)
	setString("DEVICE_SERVICE_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	setString("DEVICE_SERVICE_JWT_SECRET", &cfg.Security.JWT.Secret)

	if v := os.Getenv("SHOULD_LOG_CHANGES"); v != "" {
		cfg.Monitor.LogChanges = parseFlag(v)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// parseSeconds accepts either a Go duration ("1.5s") or a plain number of seconds ("0.2").
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.Delay <= 0 {
		errs = append(errs, "mqtt.reconnect.delay must be positive")
	}
	if c.MQTT.Dispatch.Workers < 1 {
		errs = append(errs, "mqtt.dispatch.workers must be at least 1")
	}
	if c.MQTT.Dispatch.QueueSize < 1 {
		errs = append(errs, "mqtt.dispatch.queue_size must be at least 1")
	}

	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, "monitor.poll_interval must be positive")
	}
	if c.Monitor.ErrorBackoff < 0 {
		errs = append(errs, "monitor.error_backoff must not be negative")
	}

	if c.Controller.ProbeTimeout <= 0 {
		errs = append(errs, "controller.probe_timeout must be positive")
	}
	if c.Controller.StartTimeout <= 0 {
		errs = append(errs, "controller.start_timeout must be positive")
	}
	if c.Controller.PortCheckTimeout <= 0 {
		errs = append(errs, "controller.port_check_timeout must be positive")
	}
	if !strings.HasPrefix(c.Controller.HealthPath, "/") {
		errs = append(errs, "controller.health_path must start with /")
	}
	if !strings.HasPrefix(c.Controller.StartPath, "/") {
		errs = append(errs, "controller.start_path must start with /")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Short HMAC secrets are brute-forceable.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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
