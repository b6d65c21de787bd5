package metadata

import (
	"context"
	"fmt"

	httpadapter "github.com/uc-cdis/metadata-service-sub001/internal/metadata/adapter/http"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/adapter/persistence/memory"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/adapter/persistence/mongodb"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/adapter/persistence/postgres"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/usecase"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// MetadataModule wires the metadata store, usecase and HTTP handler
type MetadataModule struct {
	Config  *config.MetadataConfig
	Store   repository.MetadataStore
	Usecase usecase.MetadataUsecaseInterface
	Handler *httpadapter.MetadataHandler
	Logger  logger.Logger
}

// OpenStore connects the backend selected by cfg.StoreBackend
func OpenStore(ctx context.Context, cfg *config.MetadataConfig, log logger.Logger) (repository.MetadataStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMongoDB:
		store, err := mongodb.Connect(ctx, mongodb.Config{
			URI:             cfg.MongoDB.URI,
			Database:        cfg.MongoDB.Database,
			UseTransactions: cfg.MongoDB.UseTransactions,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendPostgres:
		store, err := postgres.Connect(ctx, postgres.Config{
			DSN:          cfg.Postgres.DSN,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// NewMetadataModule builds the module on an already opened store
func NewMetadataModule(cfg *config.MetadataConfig, store repository.MetadataStore, bus eventbus.Bus, requireAdmin fiber.Handler, log logger.Logger) *MetadataModule {
	log.Info("Initializing metadata module", "backend", cfg.StoreBackend)

	opts := []usecase.Option{
		usecase.WithDefaultAuthz(cfg.DefaultAuthz()),
		usecase.WithStoreTimeout(cfg.StoreTimeout),
	}
	if bus != nil {
		opts = append(opts, usecase.WithEventBus(bus))
	}
	uc := usecase.NewMetadataUsecase(store, log, opts...)

	return &MetadataModule{
		Config:  cfg,
		Store:   store,
		Usecase: uc,
		Handler: httpadapter.NewMetadataHandler(uc, log, requireAdmin),
		Logger:  log,
	}
}

// RegisterRoutes mounts the metadata API
func (m *MetadataModule) RegisterRoutes(router fiber.Router) {
	m.Handler.RegisterRoutes(router)
}

// Close releases the store connection
func (m *MetadataModule) Close(ctx context.Context) error {
	return m.Store.Close(ctx)
}
