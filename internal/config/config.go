package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the main configuration structure for sensord
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	AdminAPI  AdminAPIConfig  `yaml:"admin_api"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Stream    StreamConfig    `yaml:"stream"`
}

// ServerConfig holds the sensor responder listener configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// MaxConnections caps concurrently served connections. 1 serves clients
	// strictly one at a time in accept order; 0 removes the cap.
	MaxConnections int `yaml:"max_connections"`

	// TrustProxyHeaders rewrites the client address from X-Forwarded-For /
	// X-Real-IP before rate limiting and logging.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	Timeouts        TimeoutConfig `yaml:"timeouts"`
	ShutdownTimeout int           `yaml:"shutdown_timeout"` // seconds
}

// TimeoutConfig holds HTTP server timeouts in seconds
type TimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig controls the global logger and request scoped logging
type LoggingConfig struct {
	Level         string          `yaml:"level"`
	Format        string          `yaml:"format"`
	IncludeCaller bool            `yaml:"include_caller"`
	AccessLog     bool            `yaml:"access_log"`
	RequestID     RequestIDConfig `yaml:"request_id"`
}

// RequestIDConfig controls request identifier propagation
type RequestIDConfig struct {
	Enabled bool   `yaml:"enabled"`
	Header  string `yaml:"header"`
}

// AdminAPIConfig holds the admin listener configuration
type AdminAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`

	// AllowList and DenyList hold IPs or CIDRs; deny wins, an empty allow
	// list admits everyone not denied.
	AllowList []string `yaml:"allow_list"`
	DenyList  []string `yaml:"deny_list"`
}

// RateLimitConfig configures the per-client token bucket
type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled"`
	MaxTokens        int  `yaml:"max_tokens"`
	RefillIntervalMs int  `yaml:"refill_interval_ms"`
}

// StreamConfig configures the websocket reading stream
type StreamConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds between pushed readings
}

// Default returns the configuration used when no file is given. It binds
// localhost:8080 and serves one connection at a time.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			MaxConnections: 1,
			Timeouts: TimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
			ShutdownTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			AccessLog: true,
			RequestID: RequestIDConfig{Enabled: true},
		},
		AdminAPI: AdminAPIConfig{
			Host: "localhost",
			Port: 9091,
		},
		RateLimit: RateLimitConfig{
			MaxTokens:        100,
			RefillIntervalMs: 100,
		},
		Stream: StreamConfig{
			Interval: 10,
		},
	}
}

// LoadConfig loads configuration from the specified YAML file on top of
// Default. An empty path yields the defaults.
func LoadConfig(filePath string) (*Config, error) {
	config := Default()
	if filePath == "" {
		return config, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks value ranges and cross-section constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("%w: server.max_connections must not be negative", ErrInvalid)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must not be negative", ErrInvalid)
	}
	t := c.Server.Timeouts
	if t.Read < 0 || t.Write < 0 || t.Idle < 0 {
		return fmt.Errorf("%w: server.timeouts must not be negative", ErrInvalid)
	}

	if c.AdminAPI.Enabled {
		if c.AdminAPI.Port < 0 || c.AdminAPI.Port > 65535 {
			return fmt.Errorf("%w: admin_api.port %d out of range", ErrInvalid, c.AdminAPI.Port)
		}
		if c.AdminAPI.Port != 0 && c.AdminAPI.Port == c.Server.Port && c.AdminAPI.Host == c.Server.Host {
			return fmt.Errorf("%w: admin_api and server share %s", ErrInvalid, c.Server.Addr())
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxTokens <= 0 {
			return fmt.Errorf("%w: rate_limit.max_tokens must be positive", ErrInvalid)
		}
		if c.RateLimit.RefillIntervalMs <= 0 {
			return fmt.Errorf("%w: rate_limit.refill_interval_ms must be positive", ErrInvalid)
		}
	}

	if c.Stream.Enabled {
		if c.Stream.Interval <= 0 {
			return fmt.Errorf("%w: stream.interval must be positive", ErrInvalid)
		}
		// A stream pins its connection, so a single slot would starve /sensors.
		if c.Server.MaxConnections == 1 {
			return fmt.Errorf("%w: stream requires server.max_connections of 0 or at least 2", ErrInvalid)
		}
	}
	return nil
}

// Addr returns the host:port the sensor responder binds.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Addr returns the host:port the admin API binds.
func (a AdminAPIConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
