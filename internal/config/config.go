// ABOUTME: Configuration loading and parsing for mirror-gateway
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mirror-gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	WebRTC  WebRTCConfig  `yaml:"webrtc"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the listener and connection-handling settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	MaxClients int    `yaml:"max_clients"`

	// ReadBufferBytes bounds the initial request read and the per-client
	// frame accumulation buffer.
	ReadBufferBytes int `yaml:"read_buffer_bytes"`

	// HandshakeWorkers is the size of the pool that classifies accepted
	// connections, so one stalled peer cannot block acceptance.
	HandshakeWorkers int `yaml:"handshake_workers"`
}

// WebRTCConfig holds the connectivity-assist servers passed opaquely to the
// media engine.
type WebRTCConfig struct {
	STUNServer   string `yaml:"stun_server"`
	TURNServer   string `yaml:"turn_server"`
	TURNUsername string `yaml:"turn_username"`
	TURNPassword string `yaml:"turn_password"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:       ":8080",
			MaxClients:       10,
			ReadBufferBytes:  65536,
			HandshakeWorkers: 4,
		},
		WebRTC: WebRTCConfig{
			STUNServer: "stun:stun.l.google.com:19302",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path, layered over Default.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are usable. Returns an error
// describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.MaxClients <= 0 {
		return fmt.Errorf("server.max_clients must be positive, got %d", c.Server.MaxClients)
	}
	if c.Server.ReadBufferBytes < 1024 {
		return fmt.Errorf("server.read_buffer_bytes must be at least 1024, got %d", c.Server.ReadBufferBytes)
	}
	if c.Server.HandshakeWorkers <= 0 {
		return fmt.Errorf("server.handshake_workers must be positive, got %d", c.Server.HandshakeWorkers)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}
