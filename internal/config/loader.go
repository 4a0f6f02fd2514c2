// Package config loads and validates shardgate node configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ferrodb/shardgate/pkg/log"
)

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Admin: AdminConfig{
			Address:      ":9190",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Pool: PoolConfig{
			FailoverToPrimary: false,
			BanTimeSeconds:    60,
		},
		HealthCheck: HealthCheckConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
			Mode:     "tcp",
		},
		Maintenance: MaintenanceConfig{
			Interval: 3 * time.Second,
		},
		Logging: log.Config{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "shardgate",
		},
		ConfigSource: ConfigSourceConfig{
			Driver: "file",
			Etcd: EtcdConfig{
				Timeout: 5 * time.Second,
			},
		},
	}
}

// Load reads configuration from a yaml file on top of the defaults and
// applies environment variable overrides for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration bytes (from a file or an etcd source) on top
// of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Secrets should
// not live in config files.
func applyEnvOverrides(cfg *Config) {
	if secret := os.Getenv("SHARDGATE_ADMIN_JWT_SECRET"); secret != "" {
		cfg.Admin.JWTSecret = secret
	}
	if password := os.Getenv("SHARDGATE_ETCD_PASSWORD"); password != "" {
		cfg.ConfigSource.Etcd.Password = password
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.Shards) == 0 {
		return fmt.Errorf("at least one shard must be configured")
	}
	for i, shard := range c.Shards {
		if len(shard.Endpoints) == 0 {
			return fmt.Errorf("shard %d has no endpoints", i)
		}
		for _, endpoint := range shard.Endpoints {
			if endpoint.Host == "" {
				return fmt.Errorf("shard %d has an endpoint without a host", i)
			}
			if endpoint.Port <= 0 || endpoint.Port > 65535 {
				return fmt.Errorf("shard %d endpoint %s has invalid port %d", i, endpoint.Host, endpoint.Port)
			}
			if endpoint.Role != "primary" && endpoint.Role != "replica" {
				return fmt.Errorf("shard %d endpoint %s has unknown role %q", i, endpoint.Host, endpoint.Role)
			}
		}
	}

	if c.Pool.BanTimeSeconds <= 0 {
		return fmt.Errorf("pool.ban_time_seconds must be positive, got %d", c.Pool.BanTimeSeconds)
	}

	if c.HealthCheck.Enabled {
		if c.HealthCheck.Interval <= 0 {
			return fmt.Errorf("health_check.interval must be positive")
		}
		switch c.HealthCheck.Mode {
		case "tcp":
		case "postgres":
			if c.HealthCheck.DSNTemplate == "" {
				return fmt.Errorf("health_check.dsn_template is required in postgres mode")
			}
		default:
			return fmt.Errorf("unknown health check mode %q", c.HealthCheck.Mode)
		}
	}

	if c.Maintenance.Interval <= 0 {
		return fmt.Errorf("maintenance.interval must be positive")
	}

	switch c.ConfigSource.Driver {
	case "", "file":
	case "etcd":
		if len(c.ConfigSource.Etcd.Endpoints) == 0 {
			return fmt.Errorf("config_source.etcd.endpoints cannot be empty")
		}
		if c.ConfigSource.Etcd.Key == "" {
			return fmt.Errorf("config_source.etcd.key cannot be empty")
		}
	default:
		return fmt.Errorf("unknown config source driver %q", c.ConfigSource.Driver)
	}

	return nil
}
