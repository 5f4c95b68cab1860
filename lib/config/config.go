// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the configuration of a coset server.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Server configures the HTTP endpoints.
	Server ServerConfig `yaml:"server"`

	// Signaling configures the WebSocket leg of every connection.
	Signaling SignalingConfig `yaml:"signaling"`

	// Data configures the data-channel leg of every connection.
	Data DataConfig `yaml:"data"`

	// ICE configures peer connection candidate gathering.
	ICE ICEConfig `yaml:"ice"`

	// Schemas locates the message schema catalog.
	Schemas SchemasConfig `yaml:"schemas"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server  *ServerConfig  `yaml:"server,omitempty"`
	ICE     *ICEConfig     `yaml:"ice,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig configures the HTTP endpoints.
type ServerConfig struct {
	// ListenAddress is the host:port the server binds.
	// Default: :8080
	ListenAddress string `yaml:"listen_address"`

	// SignalingPath is the URL path upgraded to WebSocket signaling.
	// Default: /signal
	SignalingPath string `yaml:"signaling_path"`

	// MetricsPath serves Prometheus metrics. Empty disables it.
	// Default: /metrics
	MetricsPath string `yaml:"metrics_path"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins lists the Origin headers accepted on upgrade. An
	// empty list accepts only same-origin requests; "*" accepts any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HeartbeatConfig is one leg's liveness timing.
type HeartbeatConfig struct {
	// PingInterval is the delay between a pong and the next ping.
	// Default: 3s
	PingInterval time.Duration `yaml:"ping_interval"`

	// PingTimeout is how long a ping may go unanswered before the leg
	// is considered dead.
	// Default: 10s
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

// SignalingConfig configures the WebSocket leg.
type SignalingConfig struct {
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// MaxMessageBytes caps one incoming signaling frame. A larger
	// frame closes the socket with 1009. Zero uses the transport's
	// 64 KiB default.
	// Default: 65536
	MaxMessageBytes int64 `yaml:"max_message_bytes"`
}

// DataConfig configures the data-channel leg.
type DataConfig struct {
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// HandshakeTimeout bounds the time from connection start to an
	// open data channel.
	// Default: 30s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// BufferedAmountLowThreshold is the channel buffer level at or
	// below which queued messages are transmitted.
	// Default: 0
	BufferedAmountLowThreshold uint64 `yaml:"buffered_amount_low_threshold"`

	// EchoCandidates sends every remote ICE candidate back to the
	// peer after applying it. Some older clients expect this.
	// Default: false
	EchoCandidates bool `yaml:"echo_candidates"`
}

// ICEServer is one STUN or TURN server.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// ICEConfig configures candidate gathering.
type ICEConfig struct {
	// Servers lists STUN/TURN servers. Empty means host candidates
	// only.
	Servers []ICEServer `yaml:"servers"`

	// IncludeLoopback gathers 127.0.0.1 candidates. Needed when both
	// peers share a host.
	// Default: true (development)
	IncludeLoopback bool `yaml:"include_loopback"`

	// PortMin and PortMax restrict local UDP ports. Zero leaves the
	// range to the operating system.
	PortMin uint16 `yaml:"port_min"`
	PortMax uint16 `yaml:"port_max"`
}

// SchemasConfig locates the schema catalog.
type SchemasConfig struct {
	// Catalog is a .yaml or .jsonc file of message schemas. Empty
	// means no schemas are preloaded.
	Catalog string `yaml:"catalog"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text (development), json (production)
	Format string `yaml:"format"`
}

// Default returns the configuration a config file is merged over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			ListenAddress:   ":8080",
			SignalingPath:   "/signal",
			MetricsPath:     "/metrics",
			ShutdownTimeout: 10 * time.Second,
		},
		Signaling: SignalingConfig{
			Heartbeat:       DefaultHeartbeat(),
			MaxMessageBytes: 64 << 10,
		},
		Data: DataConfig{
			Heartbeat:        DefaultHeartbeat(),
			HandshakeTimeout: 30 * time.Second,
		},
		ICE: ICEConfig{
			IncludeLoopback: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultHeartbeat returns the heartbeat timing used by both legs
// unless configured otherwise.
func DefaultHeartbeat() HeartbeatConfig {
	return HeartbeatConfig{
		PingInterval: 3 * time.Second,
		PingTimeout:  10 * time.Second,
	}
}

// Load loads configuration from the COSET_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("COSET_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("COSET_CONFIG environment variable not set; " +
			"set it to the path of your coset.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over Default(), applies the
// section for the configured environment and expands ${VAR} patterns
// in path and credential fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production logs are machine-read and never gather loopback
		// candidates unless the file says so.
		if overrides == nil {
			overrides = &ConfigOverrides{
				ICE:     &ICEConfig{IncludeLoopback: false, Servers: c.ICE.Servers, PortMin: c.ICE.PortMin, PortMax: c.ICE.PortMax},
				Logging: &LoggingConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.ListenAddress != "" {
			c.Server.ListenAddress = overrides.Server.ListenAddress
		}
		if overrides.Server.SignalingPath != "" {
			c.Server.SignalingPath = overrides.Server.SignalingPath
		}
		if overrides.Server.MetricsPath != "" {
			c.Server.MetricsPath = overrides.Server.MetricsPath
		}
		if overrides.Server.ShutdownTimeout != 0 {
			c.Server.ShutdownTimeout = overrides.Server.ShutdownTimeout
		}
		if len(overrides.Server.AllowedOrigins) > 0 {
			c.Server.AllowedOrigins = overrides.Server.AllowedOrigins
		}
	}

	if overrides.ICE != nil {
		if len(overrides.ICE.Servers) > 0 {
			c.ICE.Servers = overrides.ICE.Servers
		}
		// IncludeLoopback is a bool, so we always apply it from overrides.
		c.ICE.IncludeLoopback = overrides.ICE.IncludeLoopback
		if overrides.ICE.PortMin != 0 || overrides.ICE.PortMax != 0 {
			c.ICE.PortMin = overrides.ICE.PortMin
			c.ICE.PortMax = overrides.ICE.PortMax
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Schemas.Catalog = expandVars(c.Schemas.Catalog, vars)
	for index := range c.ICE.Servers {
		server := &c.ICE.Servers[index]
		server.Username = expandVars(server.Username, vars)
		server.Credential = expandVars(server.Credential, vars)
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.ListenAddress == "" {
		errs = append(errs, errors.New("server.listen_address is required"))
	}
	if !strings.HasPrefix(c.Server.SignalingPath, "/") {
		errs = append(errs, fmt.Errorf("server.signaling_path must start with /: %q", c.Server.SignalingPath))
	}
	if c.Server.MetricsPath != "" {
		if !strings.HasPrefix(c.Server.MetricsPath, "/") {
			errs = append(errs, fmt.Errorf("server.metrics_path must start with /: %q", c.Server.MetricsPath))
		}
		if c.Server.MetricsPath == c.Server.SignalingPath {
			errs = append(errs, errors.New("server.metrics_path and server.signaling_path must differ"))
		}
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	errs = append(errs, c.Signaling.Heartbeat.validate("signaling.heartbeat")...)
	if c.Signaling.MaxMessageBytes < 0 {
		errs = append(errs, fmt.Errorf("signaling.max_message_bytes must not be negative: %d", c.Signaling.MaxMessageBytes))
	}
	errs = append(errs, c.Data.Heartbeat.validate("data.heartbeat")...)
	if c.Data.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("data.handshake_timeout must be positive"))
	}

	for index, server := range c.ICE.Servers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice.servers[%d].urls is required", index))
		}
	}
	if c.ICE.PortMin > c.ICE.PortMax {
		errs = append(errs, fmt.Errorf("ice.port_min (%d) exceeds ice.port_max (%d)", c.ICE.PortMin, c.ICE.PortMax))
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format must be text or json: %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (h HeartbeatConfig) validate(prefix string) []error {
	var errs []error
	if h.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s.ping_interval must be positive", prefix))
	}
	if h.PingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.ping_timeout must be positive", prefix))
	}
	return errs
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.level must be debug, info, warn or error: %q", l.Level)
	}
}
