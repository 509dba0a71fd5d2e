// Package config loads the gateway configuration from a YAML file with
// environment-variable expansion.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/havensocial/haven/internal/observability"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig              `yaml:"server"`
	Auth    AuthConfig                `yaml:"auth"`
	Storage StorageConfig             `yaml:"storage"`
	Gateway GatewayConfig             `yaml:"gateway"`
	Log     observability.LogConfig   `yaml:"log"`
	Tracing observability.TraceConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host to bind, defaults to all interfaces.
	Host string `yaml:"host"`
	// Port for the gateway endpoint, defaults to 8080.
	Port int `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig configures token verification.
type AuthConfig struct {
	// JWTSecret signs and verifies connection tokens. Required.
	JWTSecret string `yaml:"jwt_secret"`
	// TokenExpiry bounds tokens minted by `haven token`. Zero means no
	// expiry.
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// StorageConfig selects the durable backend.
type StorageConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `yaml:"backend"`
	// Path is the SQLite database file (sqlite backend).
	Path string `yaml:"path"`
	// DSN is the Postgres connection string (postgres backend).
	DSN string `yaml:"dsn"`
}

// GatewayConfig tunes connection handling and call signaling.
type GatewayConfig struct {
	// SendQueueSize bounds each connection's outbound queue.
	SendQueueSize int `yaml:"send_queue_size"`
	// SendTimeout bounds how long a durable event may wait for queue space
	// before being dropped.
	SendTimeout time.Duration `yaml:"send_timeout"`
	// RingTimeout transitions an unanswered call to missed. Zero disables
	// the timer and leaves the missed transition to clients.
	RingTimeout time.Duration `yaml:"ring_timeout"`
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PongTimeout closes connections that stop answering pings.
	PongTimeout time.Duration `yaml:"pong_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Auth:   AuthConfig{TokenExpiry: 24 * time.Hour},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "haven.db",
		},
		Gateway: GatewayConfig{
			SendQueueSize: 256,
			SendTimeout:   5 * time.Second,
			RingTimeout:   45 * time.Second,
			WriteTimeout:  10 * time.Second,
			PongTimeout:   60 * time.Second,
		},
		Log: observability.LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment, and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("postgres backend requires storage.dsn")
	}
	if c.Gateway.SendQueueSize <= 0 {
		return fmt.Errorf("gateway.send_queue_size must be positive")
	}
	if c.Gateway.SendTimeout <= 0 {
		return fmt.Errorf("gateway.send_timeout must be positive")
	}
	if c.Gateway.WriteTimeout <= 0 {
		return fmt.Errorf("gateway.write_timeout must be positive")
	}
	// The write loop's ping ticker is derived from this; zero would panic it.
	if c.Gateway.PongTimeout <= 0 {
		return fmt.Errorf("gateway.pong_timeout must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
