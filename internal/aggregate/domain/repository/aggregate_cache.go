package repository

import (
	"context"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
)

// AggregateCache stores one snapshot per commons. Publish replaces a commons
// atomically; readers never observe a partially written snapshot.
type AggregateCache interface {
	// Reads
	GetCommons(ctx context.Context) ([]string, error)
	GetAllMetadata(ctx context.Context, limit, offset int) (map[string][]model.Record, error)
	GetCommonsMetadata(ctx context.Context, commons string, limit, offset int) ([]model.Record, error)
	GetAllNamedCommonsMetadata(ctx context.Context, commons string) ([]model.Record, error)
	GetCommonsMetadataGUID(ctx context.Context, commons, guid string) (model.Record, error)
	GetCommonsAttribute(ctx context.Context, commons, what string) (interface{}, error)
	GetStatus(ctx context.Context, commons string) (*model.Status, error)

	// Search runs a compiled DSL over one commons, or all of them when
	// commons is empty. It returns the requested page and the total hits.
	Search(ctx context.Context, commons string, dsl map[string]interface{}, limit, offset int) ([]model.Record, int, error)

	// Writes
	Publish(ctx context.Context, entry *model.CommonsEntry) error
	SetStatus(ctx context.Context, commons string, status model.Status) error

	// Lifecycle
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
