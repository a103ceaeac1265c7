// Package config loads and validates the extension host configuration.
//
// DESIGN: All configuration MUST come from YAML files. No defaults for policy.
// The failure policy of the pipeline and the storage backend must be chosen
// explicitly; nothing is guessed on the operator's behalf.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - monitoring.go: Logging settings
//   - extensions.go: Extension discovery, environments, IPC bridge
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/compresr/extension-sdk/pkg/pipeline"
	"github.com/compresr/extension-sdk/pkg/storage"
)

// Config is the root configuration of an extension host.
type Config struct {
	Pipeline    PipelineConfig    `yaml:"pipeline"`    // Request pipeline driver
	Storage     StorageConfig     `yaml:"storage"`     // Extension storage backend
	Monitoring  MonitoringConfig  `yaml:"monitoring"`  // Logging
	Extensions  ExtensionsConfig  `yaml:"extensions"`  // Discovery and allow-listing
	Environment EnvironmentConfig `yaml:"environment"` // Dotenv files per environment
	Bridge      BridgeConfig      `yaml:"bridge"`      // IPC WebSocket bridge
}

// PipelineConfig configures the request pipeline driver.
type PipelineConfig struct {
	FailurePolicy string `yaml:"failure_policy"` // abort-pipeline, skip-stage, continue
}

// Policy returns the parsed failure policy. Only valid after Validate.
func (p PipelineConfig) Policy() pipeline.FailurePolicy {
	return pipeline.FailurePolicy(p.FailurePolicy)
}

// StorageConfig selects the extension storage backend.
type StorageConfig struct {
	Type string        `yaml:"type"` // memory, sqlite
	Path string        `yaml:"path"` // sqlite database file
	TTL  time.Duration `yaml:"ttl"`  // memory entry lifetime, 0 = forever
}

// Options converts the section to storage.Options.
func (s StorageConfig) Options() storage.Options {
	return storage.Options{Type: s.Type, Path: s.Path, TTL: s.TTL}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets operators change log level and database location
// without editing the file.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("EXTSDK_LOG_LEVEL"); level != "" {
		c.Monitoring.LogLevel = level
	}
	if path := os.Getenv("EXTSDK_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Pipeline validation
	if c.Pipeline.FailurePolicy == "" {
		return fmt.Errorf("pipeline.failure_policy is required")
	}
	if _, err := pipeline.ParseFailurePolicy(c.Pipeline.FailurePolicy); err != nil {
		return fmt.Errorf("pipeline.failure_policy: %w", err)
	}

	// Storage validation
	switch c.Storage.Type {
	case "":
		return fmt.Errorf("storage.type is required")
	case storage.TypeMemory:
		if c.Storage.TTL < 0 {
			return fmt.Errorf("storage.ttl must not be negative")
		}
	case storage.TypeSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	default:
		return fmt.Errorf("invalid storage.type: %q (must be memory or sqlite)", c.Storage.Type)
	}

	// Monitoring validation
	if c.Monitoring.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.Monitoring.LogLevel); err != nil {
			return fmt.Errorf("invalid monitoring.log_level: %q", c.Monitoring.LogLevel)
		}
	}
	switch c.Monitoring.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid monitoring.log_format: %q (must be json or console)", c.Monitoring.LogFormat)
	}

	if err := c.Environment.Validate(); err != nil {
		return err
	}
	return nil
}
