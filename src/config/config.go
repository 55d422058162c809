package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"price-relay/src/models"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides validation and persistence.
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML file
func NewConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Pricing.DebounceMs <= 0 {
		c.Pricing.DebounceMs = 500
	}
	if c.Archive.GridMinutes <= 0 {
		c.Archive.GridMinutes = 30
	}
	if c.Archive.HistoryRetentionDays <= 0 {
		c.Archive.HistoryRetentionDays = 90
	}
	if c.Archive.LogRetentionDays <= 0 {
		c.Archive.LogRetentionDays = 30
	}
	if c.Network.ConcurrentRequests <= 0 {
		c.Network.ConcurrentRequests = 4
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	switch c.Storage.DBType {
	case "":
		return fmt.Errorf("database type cannot be empty")
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	case "memory":
		// No settings required
	default:
		return fmt.Errorf("unknown database type %q", c.Storage.DBType)
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.Policy.AbsoluteThreshold < 0 || c.Policy.PercentThreshold < 0 {
		return fmt.Errorf("significance thresholds cannot be negative")
	}
	if c.Archive.CleanupHour < 0 || c.Archive.CleanupHour > 23 {
		return fmt.Errorf("cleanup hour must be between 0 and 23")
	}
	if c.Archive.GridMinutes > 60 {
		return fmt.Errorf("archive grid must fit inside an hour")
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d must have a name", i)
		}
		switch p.Kind {
		case "push-socket":
			if p.Address == "" {
				return fmt.Errorf("provider '%s' needs an address", p.Name)
			}
		case "poll-json", "poll-xml":
			if len(p.URLs) == 0 {
				return fmt.Errorf("provider '%s' needs at least one url", p.Name)
			}
			if p.IntervalSeconds <= 0 {
				return fmt.Errorf("provider '%s' needs a positive poll interval", p.Name)
			}
		default:
			return fmt.Errorf("provider '%s' has unknown kind %q", p.Name, p.Kind)
		}
		if p.DisruptionSeconds <= 0 {
			return fmt.Errorf("provider '%s' needs a positive disruption threshold", p.Name)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
