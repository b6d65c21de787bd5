package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate"
	aggconfig "github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth"
	authconfig "github.com/uc-cdis/metadata-service-sub001/internal/auth/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata"
	metadatahttp "github.com/uc-cdis/metadata-service-sub001/internal/metadata/adapter/http"
	mdconfig "github.com/uc-cdis/metadata-service-sub001/internal/metadata/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/metrics"
	"github.com/uc-cdis/metadata-service-sub001/internal/openapi"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// Container owns the service modules and their lifecycle
type Container struct {
	mu sync.RWMutex

	// Module instances
	AuthModule      *auth.AuthModule
	MetadataModule  *metadata.MetadataModule
	AggregateModule *aggregate.AggregateModule

	// Shared components
	Bus     *eventbus.EventBus
	Metrics *metrics.Metrics
	System  *metadatahttp.SystemHandler
	Logger  logger.Logger
}

// NewContainer creates an empty container with a shared event bus and metrics
func NewContainer(log logger.Logger) *Container {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Container{
		Bus:     eventbus.NewEventBus(log),
		Metrics: metrics.NewMetrics(),
		Logger:  log,
	}
}

// InitializeAuth builds the admin authentication module
func (c *Container) InitializeAuth(cfg *authconfig.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	authModule, err := auth.NewAuthModule(cfg, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create auth module: %w", err)
	}
	c.AuthModule = authModule
	return nil
}

// InitializeMetadata opens the configured store and builds the metadata module
func (c *Container) InitializeMetadata(ctx context.Context, cfg *mdconfig.MetadataConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AuthModule == nil {
		return fmt.Errorf("auth module must be initialized before metadata module")
	}

	store, err := metadata.OpenStore(ctx, cfg, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	c.MetadataModule = metadata.NewMetadataModule(cfg, store, c.Bus, c.AuthModule.RequireAdmin(), c.Logger)
	return nil
}

// InitializeAggregate opens the aggregate cache and builds the module. It is
// a no-op when the aggregate layer is disabled. populate overrides the file
// named by cfg.ConfigPath.
func (c *Container) InitializeAggregate(ctx context.Context, cfg *aggconfig.AggregateConfig, populate *aggconfig.PopulateConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !cfg.Enabled {
		c.Logger.Info("Aggregate layer disabled")
		return nil
	}

	if populate == nil && cfg.ConfigPath != "" {
		loaded, err := aggconfig.LoadPopulateConfig(cfg.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load aggregate config: %w", err)
		}
		populate = loaded
	}

	cache, err := aggregate.OpenCache(ctx, cfg, c.Logger)
	if err != nil {
		return err
	}
	c.AggregateModule = aggregate.NewAggregateModule(cfg, cache, aggregate.Options{
		Bus:      c.Bus,
		Recorder: c.Metrics,
		Populate: populate,
	}, c.Logger)
	return nil
}

// RegisterRoutes mounts every initialized module on app
func (c *Container) RegisterRoutes(app fiber.Router) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MetadataModule == nil {
		return fmt.Errorf("metadata module must be initialized before registering routes")
	}

	var aggPinger metadatahttp.Pinger
	if c.AggregateModule != nil {
		aggPinger = c.AggregateModule
	}
	c.System = metadatahttp.NewSystemHandler(c.MetadataModule.Store, aggPinger, c.Logger)

	c.System.RegisterRoutes(app)
	c.Metrics.RegisterRoutes(app)
	openapi.RegisterRoutes(app)
	if c.AuthModule != nil {
		c.AuthModule.RegisterRoutes(app)
	}
	c.MetadataModule.RegisterRoutes(app)
	if c.AggregateModule != nil {
		c.AggregateModule.RegisterRoutes(app)
	}
	return nil
}

// Start launches background services
func (c *Container) Start(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.AggregateModule != nil {
		return c.AggregateModule.Start(ctx)
	}
	return nil
}

// HealthCheck pings the store and, when enabled, the aggregate cache
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.MetadataModule != nil {
		if err := c.MetadataModule.Store.Ping(ctx); err != nil {
			return fmt.Errorf("metadata store health check failed: %w", err)
		}
	}
	if c.AggregateModule != nil {
		if err := c.AggregateModule.Ping(ctx); err != nil {
			return fmt.Errorf("aggregate cache health check failed: %w", err)
		}
	}
	return nil
}

// Cleanup shuts modules down in reverse order of initialization
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.AggregateModule != nil {
		if err := c.AggregateModule.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close aggregate module: %w", err))
		}
		c.AggregateModule = nil
	}
	if c.MetadataModule != nil {
		if err := c.MetadataModule.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close metadata module: %w", err))
		}
		c.MetadataModule = nil
	}
	c.AuthModule = nil
	return errors.Join(errs...)
}

// Close releases every resource with a 30 second budget
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Logger.Info("Closing container resources")
	if err := c.Cleanup(ctx); err != nil {
		c.Logger.Warn("Cleanup errors occurred", "error", err)
		return err
	}
	return nil
}
