package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/adapters"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/cache/memory"
	rediscache "github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/cache/redis"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/client"
	httpadapter "github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/http"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/repository"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/search"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/usecase"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// AggregateModule wires the aggregate cache, populator and read API
type AggregateModule struct {
	Config    *config.AggregateConfig
	Cache     repository.AggregateCache
	Reader    *usecase.Reader
	Populator *usecase.Populator
	Scheduler *usecase.Scheduler
	Handler   *httpadapter.AggregateHandler
	Stream    *httpadapter.RefreshStreamHandler
	Logger    logger.Logger
}

// OpenCache connects and initializes the backend selected by cfg.Backend
func OpenCache(ctx context.Context, cfg *config.AggregateConfig, log logger.Logger) (repository.AggregateCache, error) {
	var cache repository.AggregateCache
	switch cfg.Backend {
	case config.BackendRedis:
		cache = rediscache.NewCache(config.NewRedisClient(&cfg.Redis), rediscache.Config{
			Namespace: cfg.Namespace,
			GraceTTL:  cfg.GraceTTL,
		}, log)
	case config.BackendMemory:
		cache = memory.NewCache()
	default:
		return nil, fmt.Errorf("unknown aggregate backend %q", cfg.Backend)
	}
	if err := cache.Init(ctx); err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to initialize aggregate cache: %w", err)
	}
	return cache, nil
}

// Options carries the optional collaborators of the module
type Options struct {
	Bus      eventbus.Bus
	Recorder usecase.RefreshRecorder
	// Populate is the parsed populate config; when nil it is read from
	// cfg.ConfigPath on demand.
	Populate *config.PopulateConfig
}

// NewAggregateModule builds the module on an opened cache
func NewAggregateModule(cfg *config.AggregateConfig, cache repository.AggregateCache, opts Options, log logger.Logger) *AggregateModule {
	log.Info("Initializing aggregate module", "backend", cfg.Backend, "namespace", cfg.Namespace)

	fetcher := client.NewClient(cfg.PullTimeout, log)
	popOpts := []usecase.PopulatorOption{
		usecase.WithConcurrency(cfg.PullConcurrency),
		usecase.WithPageSize(cfg.PageSize),
	}
	if opts.Bus != nil {
		popOpts = append(popOpts, usecase.WithEvents(opts.Bus))
	}
	if opts.Recorder != nil {
		popOpts = append(popOpts, usecase.WithRecorder(opts.Recorder))
	}
	populator := usecase.NewPopulator(cache, fetcher, adapters.DefaultRegistry(fetcher, log), log, popOpts...)

	registry := search.NewRegistry()
	if opts.Populate != nil {
		registry = search.NewRegistry(opts.Populate.Configuration.Settings.NestedPaths...)
	}
	reader := usecase.NewReader(cache, registry, log)

	m := &AggregateModule{
		Config:    cfg,
		Cache:     cache,
		Reader:    reader,
		Populator: populator,
		Handler:   httpadapter.NewAggregateHandler(reader, log),
		Logger:    log,
	}
	load := func() (*config.PopulateConfig, error) {
		if opts.Populate != nil {
			return opts.Populate, nil
		}
		return config.LoadPopulateConfig(cfg.ConfigPath)
	}
	m.Scheduler = usecase.NewScheduler(populator, load, log)
	if opts.Bus != nil {
		m.Stream = httpadapter.NewRefreshStreamHandler(opts.Bus, log)
	}
	return m
}

// RegisterRoutes mounts the aggregate API
func (m *AggregateModule) RegisterRoutes(router fiber.Router) {
	m.Handler.RegisterRoutes(router)
	if m.Stream != nil {
		m.Stream.RegisterRoutes(router)
	}
}

// Start launches the refresh scheduler when a schedule is configured
func (m *AggregateModule) Start(ctx context.Context) error {
	if m.Config.RefreshSchedule == "" {
		return nil
	}
	return m.Scheduler.Start(ctx, m.Config.RefreshSchedule)
}

// Populate runs one aggregation cycle with cfg
func (m *AggregateModule) Populate(ctx context.Context, cfg *config.PopulateConfig) (*usecase.Report, error) {
	start := time.Now()
	report, err := m.Populator.Run(ctx, cfg)
	m.Logger.WithContext(ctx).Info("Populate finished", "elapsed", time.Since(start).String())
	return report, err
}

// Ping checks the cache
func (m *AggregateModule) Ping(ctx context.Context) error {
	return m.Cache.Ping(ctx)
}

// Close stops the scheduler and releases the cache
func (m *AggregateModule) Close() error {
	m.Scheduler.Stop()
	return m.Cache.Close()
}
