package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Cache backends
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// RedisConfig holds the aggregate cache connection settings
type RedisConfig struct {
	Host         string `env:"REDIS_HOST" envDefault:"localhost"`
	Port         string `env:"REDIS_PORT" envDefault:"6379"`
	Password     string `env:"REDIS_PASSWORD" envDefault:""`
	Database     int    `env:"REDIS_DB" envDefault:"0"`
	MaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	PoolSize     int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	EnableTLS    bool   `env:"REDIS_TLS" envDefault:"false"`

	ConnMaxIdleTime time.Duration `env:"REDIS_CONN_MAX_IDLE_TIME" envDefault:"30m"`
	ConnMaxLifetime time.Duration `env:"REDIS_CONN_MAX_LIFETIME" envDefault:"1h"`
}

// GetAddr returns host:port
func (c *RedisConfig) GetAddr() string {
	return c.Host + ":" + c.Port
}

// AggregateConfig holds all configuration for the aggregate layer.
type AggregateConfig struct {
	Enabled   bool   `env:"USE_AGG_MDS" envDefault:"false"`
	Backend   string `env:"AGG_MDS_BACKEND" envDefault:"redis"`
	Namespace string `env:"AGG_MDS_NAMESPACE" envDefault:"default_namespace"`

	// ConfigPath is the populate config file (JSON or YAML)
	ConfigPath string `env:"AGG_MDS_CONFIG" envDefault:""`

	// RefreshSchedule is a cron spec with a seconds field; empty disables
	// in-process refresh.
	RefreshSchedule string `env:"AGG_MDS_REFRESH_SCHEDULE" envDefault:""`

	// GraceTTL keeps a replaced cache generation readable
	GraceTTL time.Duration `env:"AGG_MDS_GRACE_TTL" envDefault:"60s"`

	// Outbound pull settings
	PullTimeout     time.Duration `env:"AGG_MDS_PULL_TIMEOUT" envDefault:"20s"`
	PullConcurrency int           `env:"AGG_MDS_PULL_CONCURRENCY" envDefault:"4"`
	PageSize        int           `env:"AGG_MDS_PAGE_SIZE" envDefault:"1000"`

	Redis RedisConfig
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*AggregateConfig, error) {
	cfg := &AggregateConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load aggregate configuration from environment: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cache backend and pull settings
func (c *AggregateConfig) Validate() error {
	switch c.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown AGG_MDS_BACKEND %q", c.Backend)
	}
	if c.PullTimeout <= 0 {
		return errors.New("AGG_MDS_PULL_TIMEOUT must be positive")
	}
	if c.PullConcurrency <= 0 {
		return errors.New("AGG_MDS_PULL_CONCURRENCY must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("AGG_MDS_PAGE_SIZE must be positive")
	}
	return nil
}

// DefaultAggregateConfig returns an enabled in-memory configuration
func DefaultAggregateConfig() *AggregateConfig {
	return &AggregateConfig{
		Enabled:         true,
		Backend:         BackendMemory,
		Namespace:       "default_namespace",
		GraceTTL:        time.Minute,
		PullTimeout:     20 * time.Second,
		PullConcurrency: 4,
		PageSize:        1000,
		Redis: RedisConfig{
			Host:            "localhost",
			Port:            "6379",
			MaxRetries:      3,
			PoolSize:        10,
			MinIdleConns:    2,
			ConnMaxIdleTime: 30 * time.Minute,
			ConnMaxLifetime: time.Hour,
		},
	}
}
