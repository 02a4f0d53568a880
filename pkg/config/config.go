// Package config loads and validates the manager's YAML configuration and
// watches it for changes so the log level can be adjusted without a
// restart.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// Config is the manager's full configuration.
type Config struct {
	// Telemetry configures logging, metrics and tracing.
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Database configures the sqlite store.
	Database DatabaseConfig `yaml:"database"`

	// Engine configures the job scheduling engine.
	Engine EngineConfig `yaml:"engine"`

	// SSH holds the defaults applied to every host connection.
	SSH SSHDefaults `yaml:"ssh"`

	// Hosts lists the managed hosts and their connection overrides.
	Hosts []HostConfig `yaml:"hosts" validate:"dive"`
}

// DatabaseConfig configures the sqlite store.
type DatabaseConfig struct {
	// Path is the sqlite database file.
	Path string `yaml:"path" validate:"required"`
}

// EngineConfig configures the scheduler.
type EngineConfig struct {
	// StepTimeout bounds each step attempt.
	StepTimeout time.Duration `yaml:"step_timeout"`

	// MaxStepRetries is the retry budget for idempotent steps after
	// transient communication failures.
	MaxStepRetries int `yaml:"max_step_retries" validate:"gte=0,lte=10"`

	// AgentTimeout bounds each agent RPC.
	AgentTimeout time.Duration `yaml:"agent_timeout"`
}

// SSHDefaults are connection settings shared by all hosts unless a host
// overrides them.
type SSHDefaults struct {
	User                  string        `yaml:"user"`
	Port                  int           `yaml:"port" validate:"gte=0,lte=65535"`
	PrivateKeyPath        string        `yaml:"private_key_path"`
	KnownHostsPath        string        `yaml:"known_hosts_path"`
	StrictHostKeyChecking bool          `yaml:"strict_host_key_checking"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout"`
	AgentBinaryPath       string        `yaml:"agent_binary_path"`
}

// HostConfig is one managed host entry.
type HostConfig struct {
	// ID is the stable identifier used in object references.
	ID string `yaml:"id" validate:"required"`

	// FQDN addresses the host's agent.
	FQDN string `yaml:"fqdn" validate:"required,fqdn"`

	// Address is the ssh endpoint; defaults to the FQDN.
	Address string `yaml:"address"`

	// User and Port override the ssh defaults when set.
	User string `yaml:"user"`
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Telemetry: *telemetry.DefaultConfig(),
		Database: DatabaseConfig{
			Path: "/var/lib/iml/manager.db",
		},
		Engine: EngineConfig{
			StepTimeout:    10 * time.Minute,
			MaxStepRetries: 3,
			AgentTimeout:   60 * time.Second,
		},
		SSH: SSHDefaults{
			User:                  "root",
			Port:                  22,
			StrictHostKeyChecking: true,
			ConnectionTimeout:     30 * time.Second,
			AgentBinaryPath:       "/usr/sbin/iml-agent",
		},
	}
}

// Load reads and validates a configuration file, layered over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints and the embedded telemetry config.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("invalid configuration: %s", errs[0])
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Hosts))
	for _, h := range c.Hosts {
		if seen[h.ID] {
			return fmt.Errorf("duplicate host id: %s", h.ID)
		}
		seen[h.ID] = true
	}
	return nil
}
