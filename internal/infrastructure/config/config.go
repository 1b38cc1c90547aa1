package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-knxlink/internal/dpt"
)

// Config holds all knxlink configuration.
// It is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Link     LinkConfig     `yaml:"link"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Transport names accepted in link.transport.
const (
	TransportUDP = "udp"
	TransportTCP = "tcp"
)

// Protocol names accepted in link.protocol.
const (
	ProtocolTunneling    = "tunneling"
	ProtocolObjectServer = "objectserver"
)

// LinkConfig describes the KNXnet/IP gateway and the channel opened to it.
type LinkConfig struct {
	// ID names this link in MQTT topics and the session journal.
	ID string `yaml:"id"`

	// Transport is "udp" (connectionless, sequenced) or "tcp" (stream).
	Transport string `yaml:"transport"`

	// Protocol is "tunneling" (cEMI) or "objectserver" (BAOS).
	Protocol string `yaml:"protocol"`

	// Gateway is the gateway control endpoint as host:port.
	Gateway string `yaml:"gateway"`

	// LocalAddr optionally binds the UDP socket (host:port).
	LocalAddr string `yaml:"local_addr"`

	// NAT sends route-back HPAIs so the gateway replies to the observed source.
	NAT bool `yaml:"nat"`

	ConnectTimeout int `yaml:"connect_timeout"` // seconds

	// Reconnect controls redialling after the channel closes for any
	// reason other than a user request.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	HealthInterval int `yaml:"health_interval"` // seconds

	// Datapoints maps a group address ("1/2/3") or object server item id
	// ("12") to its datapoint type ("9.001"). Published values for mapped
	// targets carry the decoded value next to the raw data.
	Datapoints map[string]string `yaml:"datapoints"`
}

// ReconnectConfig contains reconnection settings.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"` // seconds
	MaxDelay     int `yaml:"max_delay"`     // seconds
	MaxAttempts  int `yaml:"max_attempts"`  // 0 = unlimited
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Reconnect ReconnectConfig  `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker address settings.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication settings.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// DatabaseConfig contains SQLite settings for the session journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
}

// APIConfig contains the HTTP server settings (health, channel state, event
// stream and Prometheus metrics).
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	Events   EventsConfig     `yaml:"events"`
}

// EventsConfig contains the WebSocket event stream settings.
type EventsConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxMessageSize int  `yaml:"max_message_size"` // bytes, client to server
	PingInterval   int  `yaml:"ping_interval"`    // seconds
	PongTimeout    int  `yaml:"pong_timeout"`     // seconds
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`  // seconds
	Write int `yaml:"write"` // seconds
	Idle  int `yaml:"idle"`  // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values (overrides defaults)
//  3. Environment variables (overrides YAML)
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line, not user input
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
// applied. It is used when no config file is given.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible default values.
func defaultConfig() *Config {
	return &Config{
		Link: LinkConfig{
			ID:             "knxlink",
			Transport:      TransportUDP,
			Protocol:       ProtocolTunneling,
			Gateway:        "127.0.0.1:3671",
			ConnectTimeout: 10,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			HealthInterval: 30,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "knxlink",
			},
			QoS: 1,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Org:           "knxlink",
			Bucket:        "knxlink",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Enabled:     false,
			Path:        "./data/knxlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    9102,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			Events: EventsConfig{
				Enabled:        true,
				MaxMessageSize: 4096,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
//
// Environment variables follow the pattern: KNXLINK_SECTION_KEY
// For example: KNXLINK_LINK_GATEWAY, KNXLINK_MQTT_BROKER_HOST
func applyEnvOverrides(cfg *Config) {
	// Link overrides
	if v := os.Getenv("KNXLINK_LINK_ID"); v != "" {
		cfg.Link.ID = v
	}
	if v := os.Getenv("KNXLINK_LINK_TRANSPORT"); v != "" {
		cfg.Link.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("KNXLINK_LINK_PROTOCOL"); v != "" {
		cfg.Link.Protocol = strings.ToLower(v)
	}
	if v := os.Getenv("KNXLINK_LINK_GATEWAY"); v != "" {
		cfg.Link.Gateway = v
	}
	if v := os.Getenv("KNXLINK_LINK_LOCAL_ADDR"); v != "" {
		cfg.Link.LocalAddr = v
	}
	if v := os.Getenv("KNXLINK_LINK_NAT"); v != "" {
		cfg.Link.NAT = parseBool(v)
	}

	// MQTT overrides
	if v := os.Getenv("KNXLINK_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("KNXLINK_MQTT_BROKER_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KNXLINK_MQTT_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("KNXLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KNXLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB overrides
	if v := os.Getenv("KNXLINK_INFLUXDB_ENABLED"); v != "" {
		cfg.InfluxDB.Enabled = parseBool(v)
	}
	if v := os.Getenv("KNXLINK_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("KNXLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database overrides
	if v := os.Getenv("KNXLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API overrides
	if v := os.Getenv("KNXLINK_API_ENABLED"); v != "" {
		cfg.API.Enabled = parseBool(v)
	}
	if v := os.Getenv("KNXLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("KNXLINK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("KNXLINK_API_EVENTS_ENABLED"); v != "" {
		cfg.API.Events.Enabled = parseBool(v)
	}

	// Logging overrides
	if v := os.Getenv("KNXLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Validate checks that all required configuration values are present and valid.
//
// Returns:
//   - error: Describes all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.Link.validate()...)

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && c.API.Events.Enabled {
		if c.API.Events.PingInterval < 1 {
			errs = append(errs, "api.events.ping_interval must be at least 1 second")
		}
		if c.API.Events.PongTimeout < 1 {
			errs = append(errs, "api.events.pong_timeout must be at least 1 second")
		}
		if c.API.Events.MaxMessageSize < 64 {
			errs = append(errs, "api.events.max_message_size must be at least 64 bytes")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (l LinkConfig) validate() []string {
	var errs []string

	if l.ID == "" {
		errs = append(errs, "link.id is required")
	} else if strings.ContainsAny(l.ID, "/+#") {
		errs = append(errs, "link.id must not contain MQTT topic characters (/, +, #)")
	}

	switch l.Transport {
	case TransportUDP, TransportTCP:
	default:
		errs = append(errs, fmt.Sprintf("link.transport %q must be udp or tcp", l.Transport))
	}

	switch l.Protocol {
	case ProtocolTunneling, ProtocolObjectServer:
	default:
		errs = append(errs, fmt.Sprintf("link.protocol %q must be tunneling or objectserver", l.Protocol))
	}

	if l.Transport == TransportTCP && l.Protocol == ProtocolTunneling {
		errs = append(errs, "link.protocol tunneling requires udp transport")
	}

	if l.Gateway == "" {
		errs = append(errs, "link.gateway is required")
	} else if _, _, err := net.SplitHostPort(l.Gateway); err != nil {
		errs = append(errs, fmt.Sprintf("link.gateway %q must be host:port", l.Gateway))
	}

	if l.LocalAddr != "" {
		if _, _, err := net.SplitHostPort(l.LocalAddr); err != nil {
			errs = append(errs, fmt.Sprintf("link.local_addr %q must be host:port", l.LocalAddr))
		}
	}

	if l.ConnectTimeout < 0 {
		errs = append(errs, "link.connect_timeout must not be negative")
	}
	if l.HealthInterval < 0 {
		errs = append(errs, "link.health_interval must not be negative")
	}
	if l.Reconnect.InitialDelay < 1 || l.Reconnect.MaxDelay < l.Reconnect.InitialDelay {
		errs = append(errs, "link.reconnect delays must satisfy 1 <= initial_delay <= max_delay")
	}

	for target, id := range l.Datapoints {
		if !dpt.ID(id).Known() {
			errs = append(errs, fmt.Sprintf("link.datapoints[%s]: unsupported datapoint type %q", target, id))
		}
	}

	return errs
}

// GetConnectTimeout returns the gateway connect timeout as a time.Duration.
// Zero means the channel package default.
func (l LinkConfig) GetConnectTimeout() time.Duration {
	return time.Duration(l.ConnectTimeout) * time.Second
}

// GetHealthInterval returns the health reporting interval as a time.Duration.
func (l LinkConfig) GetHealthInterval() time.Duration {
	return time.Duration(l.HealthInterval) * time.Second
}

// GetInitialDelay returns the first reconnect delay as a time.Duration.
func (r ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(r.InitialDelay) * time.Second
}

// GetMaxDelay returns the reconnect delay ceiling as a time.Duration.
func (r ReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(r.MaxDelay) * time.Second
}

// GetFlushInterval returns the InfluxDB flush interval as a time.Duration.
func (i InfluxDBConfig) GetFlushInterval() time.Duration {
	return time.Duration(i.FlushInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a time.Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a time.Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a time.Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetBusyTimeout returns the SQLite busy timeout as a time.Duration.
func (d DatabaseConfig) GetBusyTimeout() time.Duration {
	return time.Duration(d.BusyTimeout) * time.Second
}
