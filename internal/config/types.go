package config

import (
	"time"

	"github.com/ferrodb/shardgate/pkg/log"
)

// Config represents the complete node configuration.
type Config struct {
	Admin        AdminConfig        `yaml:"admin"`
	Pool         PoolConfig         `yaml:"pool"`
	Shards       []ShardConfig      `yaml:"shards"`
	HealthCheck  HealthCheckConfig  `yaml:"health_check"`
	Maintenance  MaintenanceConfig  `yaml:"maintenance"`
	Logging      log.Config         `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	ConfigSource ConfigSourceConfig `yaml:"config_source"`
}

// AdminConfig represents the admin/observability HTTP server configuration.
type AdminConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// JWTSecret guards mutating admin routes when non-empty. Overridable via
	// the SHARDGATE_ADMIN_JWT_SECRET environment variable.
	JWTSecret string `yaml:"jwt_secret"`
}

// PoolConfig represents the checkout and recovery policy of the pool.
type PoolConfig struct {
	// FailoverToPrimary routes read traffic to the primary when no replica
	// is available.
	FailoverToPrimary bool `yaml:"failover_to_primary"`

	// BanTimeSeconds is how long a non-admin ban lasts.
	BanTimeSeconds int64 `yaml:"ban_time_seconds"`
}

// ShardConfig represents one shard's endpoint list.
type ShardConfig struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig represents a single backend server instance.
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Role string `yaml:"role"`
}

// HealthCheckConfig represents active health check configuration.
type HealthCheckConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`

	// Mode selects the probe: "tcp" dials the endpoint, "postgres" opens a
	// connection with lib/pq and pings it.
	Mode string `yaml:"mode"`

	// DSNTemplate is the postgres-mode connection string template, expanded
	// with the endpoint's host and port.
	DSNTemplate string `yaml:"dsn_template"`
}

// MaintenanceConfig represents the recovery scheduler configuration.
type MaintenanceConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig represents Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// ConfigSourceConfig selects where configuration is loaded from.
type ConfigSourceConfig struct {
	// Driver is "file" or "etcd".
	Driver string     `yaml:"driver"`
	Etcd   EtcdConfig `yaml:"etcd"`
}

// EtcdConfig represents the etcd configuration source settings.
type EtcdConfig struct {
	Endpoints []string      `yaml:"endpoints"`
	Key       string        `yaml:"key"`
	Timeout   time.Duration `yaml:"timeout"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
}
