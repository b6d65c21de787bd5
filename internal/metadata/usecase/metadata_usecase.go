package usecase

import (
	"context"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"
)

var _ MetadataUsecaseInterface = (*MetadataUsecase)(nil)

// MetadataUsecase implements MetadataUsecaseInterface on top of a store
type MetadataUsecase struct {
	store        repository.MetadataStore
	events       eventbus.Bus
	logger       logger.Logger
	defaultAuthz map[string]interface{}
	storeTimeout time.Duration
}

// Option configures a MetadataUsecase
type Option func(*MetadataUsecase)

// WithEventBus publishes record changes on bus
func WithEventBus(bus eventbus.Bus) Option {
	return func(uc *MetadataUsecase) { uc.events = bus }
}

// WithDefaultAuthz sets the authz given to records created without one
func WithDefaultAuthz(authz map[string]interface{}) Option {
	return func(uc *MetadataUsecase) {
		if authz != nil {
			uc.defaultAuthz = authz
		}
	}
}

// WithStoreTimeout bounds every store call
func WithStoreTimeout(d time.Duration) Option {
	return func(uc *MetadataUsecase) { uc.storeTimeout = d }
}

// NewMetadataUsecase creates a new instance of MetadataUsecase.
func NewMetadataUsecase(store repository.MetadataStore, log logger.Logger, opts ...Option) *MetadataUsecase {
	authz, _ := model.ParseAuthz(model.DefaultAuthzJSON)
	uc := &MetadataUsecase{
		store:        store,
		logger:       log.WithComponent("metadata-usecase"),
		defaultAuthz: authz,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// storeContext applies the configured store timeout
func (uc *MetadataUsecase) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, uc.storeTimeout)
}

func (uc *MetadataUsecase) publish(ctx context.Context, eventType string, change RecordChange) {
	if uc.events == nil {
		return
	}
	uc.events.PublishAndForget(ctx, eventbus.NewEvent(eventType, change, "metadata"))
}

func (uc *MetadataUsecase) Ping(ctx context.Context) error {
	ctx, cancel := uc.storeContext(ctx)
	defer cancel()
	return uc.store.Ping(ctx)
}
