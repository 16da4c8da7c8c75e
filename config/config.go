// Package config defines the application configuration model and loaders.
// Configuration files may be JSON or YAML; both decode into the same
// structures, and component configs stay raw until their factory parses them.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/c360/streamkit/errors"
)

// ComponentType represents the category of a component
type ComponentType string

// Component type constants
const (
	ComponentTypeInput  ComponentType = "input"
	ComponentTypeOutput ComponentType = "output"
)

// ComponentConfig provides configuration for creating a component instance.
// The instance name comes from the map key in the components configuration.
type ComponentConfig struct {
	Type    ComponentType   `json:"type"`    // Component type (input/output)
	Name    string          `json:"name"`    // Factory name (e.g., "udp-output", "file-output")
	Enabled bool            `json:"enabled"` // Whether component is enabled
	Config  json.RawMessage `json:"config"`  // Component-specific configuration
}

// Validate ensures the component configuration is valid
func (c ComponentConfig) Validate() error {
	if c.Type == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"ComponentConfig", "Validate", "component type cannot be empty")
	}
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"ComponentConfig", "Validate", "component factory name cannot be empty")
	}

	switch c.Type {
	case ComponentTypeInput, ComponentTypeOutput:
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ComponentConfig", "Validate",
			fmt.Sprintf("invalid component type: %s", c.Type))
	}
}

// ComponentConfigs holds component instance configurations keyed by
// instance name (e.g., "udp-egress-main"). Components are only created when
// their factory is registered and their entry has enabled=true.
type ComponentConfigs map[string]ComponentConfig

// ServiceConfig identifies the running service instance
type ServiceConfig struct {
	Name        string `json:"name"`                  // Service name (e.g., "streamkit")
	InstanceID  string `json:"instance_id,omitempty"` // e.g., "edge-1", "dev-local"
	Environment string `json:"environment,omitempty"` // "prod", "dev", "test"
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URL           string        `json:"url,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	ClientName    string        `json:"client_name,omitempty"`
}

// MetricsConfig defines the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LoggingConfig defines structured logging behavior
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text, json
}

// Config represents the complete application configuration
type Config struct {
	Version    string           `json:"version"` // Semantic version of the config schema
	Service    ServiceConfig    `json:"service"`
	NATS       NATSConfig       `json:"nats"`
	Metrics    MetricsConfig    `json:"metrics,omitempty"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
	Components ComponentConfigs `json:"components"`
}

// Default returns a configuration with working local defaults
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Service: ServiceConfig{Name: "streamkit", Environment: "dev"},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
			ClientName:    "streamkit",
		},
		Metrics:    MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
		Components: ComponentConfigs{},
	}
}

// Validate checks if the config is valid and normalizes defaults
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "service.name is required")
	}
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "nats.url is required")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
			return errors.WrapInvalid(errors.ErrInvalidConfig,
				"Config", "Validate", fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = "/metrics"
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", fmt.Sprintf("unknown logging.level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", fmt.Sprintf("unknown logging.format %q", c.Logging.Format))
	}

	for instanceName, componentCfg := range c.Components {
		if instanceName == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig,
				"Config", "Validate", "component instance name cannot be empty")
		}
		if err := componentCfg.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate",
				fmt.Sprintf("component %q validation", instanceName))
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"SafeConfig", "Update", "config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "SafeConfig", "Update", "config validation")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
