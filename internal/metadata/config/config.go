package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"

	"github.com/caarlos0/env/v6"
)

// Store backends
const (
	BackendMongoDB  = "mongodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// MongoConfig holds the MongoDB store settings
type MongoConfig struct {
	URI             string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	Database        string `env:"MONGODB_DATABASE" envDefault:"metadata"`
	UseTransactions bool   `env:"MONGODB_TRANSACTIONS" envDefault:"true"`
}

// PostgresConfig holds the PostgreSQL store settings
type PostgresConfig struct {
	DSN          string `env:"DB_DSN" envDefault:"host=localhost user=mds password=mds dbname=metadata port=5432 sslmode=disable"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
}

// MetadataConfig holds all configuration for the metadata module.
type MetadataConfig struct {
	StoreBackend string `env:"STORE_BACKEND" envDefault:"mongodb"`

	// DefaultAuthzStr is the authz object given to records created without one
	DefaultAuthzStr string `env:"DEFAULT_AUTHZ_STR" envDefault:"{\"version\":0,\"_resource_paths\":[\"/open\"]}"`

	// StoreTimeout bounds each store call made on behalf of a request
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"30s"`

	Debug bool `env:"DEBUG" envDefault:"false"`

	MongoDB  MongoConfig
	Postgres PostgresConfig
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*MetadataConfig, error) {
	cfg := &MetadataConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load metadata configuration from environment: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the backend name and the default authz object
func (c *MetadataConfig) Validate() error {
	switch c.StoreBackend {
	case BackendMongoDB, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if _, err := model.ParseAuthz(c.DefaultAuthzStr); err != nil {
		return fmt.Errorf("invalid DEFAULT_AUTHZ_STR: %w", err)
	}
	return nil
}

// DefaultAuthz decodes DefaultAuthzStr, falling back to the built-in default
func (c *MetadataConfig) DefaultAuthz() map[string]interface{} {
	authz, err := model.ParseAuthz(c.DefaultAuthzStr)
	if err != nil {
		authz, _ = model.ParseAuthz(model.DefaultAuthzJSON)
	}
	return authz
}

// DefaultMetadataConfig returns a MetadataConfig with default values.
func DefaultMetadataConfig() *MetadataConfig {
	return &MetadataConfig{
		StoreBackend:    BackendMemory,
		DefaultAuthzStr: model.DefaultAuthzJSON,
		StoreTimeout:    30 * time.Second,
		MongoDB: MongoConfig{
			URI:             "mongodb://localhost:27017",
			Database:        "metadata",
			UseTransactions: true,
		},
	}
}
