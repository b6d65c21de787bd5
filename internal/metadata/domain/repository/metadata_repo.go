package repository

import (
	"context"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/query"
)

// ListQuery selects a page of records
type ListQuery struct {
	Filter query.Filter
	Limit  int
	Offset int
}

// MetadataStore defines the persistence contract for metadata records, their
// aliases and the registered index paths. Errors carry NOT_FOUND, CONFLICT or
// STORE types from the shared errors package.
type MetadataStore interface {
	// Record methods
	Get(ctx context.Context, guid string) (*model.MetadataRecord, error)
	// List returns matching records ordered by guid
	List(ctx context.Context, q ListQuery) ([]*model.MetadataRecord, error)
	// Create writes every record or none of them. Without overwrite an
	// existing guid is a conflict.
	Create(ctx context.Context, records []*model.MetadataRecord, overwrite bool) error
	Update(ctx context.Context, guid string, data map[string]interface{}, merge bool) (*model.MetadataRecord, error)
	// Delete removes the record together with its aliases
	Delete(ctx context.Context, guid string) (*model.MetadataRecord, error)

	AliasStore
	IndexStore

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// AliasStore manages alternate names for guids
type AliasStore interface {
	GetAlias(ctx context.Context, alias string) (string, error)
	ListAliases(ctx context.Context, guid string) ([]string, error)
	CreateAliases(ctx context.Context, guid string, aliases []string) error
	ReplaceAliases(ctx context.Context, guid string, aliases []string) error
	DeleteAlias(ctx context.Context, guid, alias string) error
	DeleteAliases(ctx context.Context, guid string) error
}

// IndexStore manages the dotted data paths the store keeps indexes for
type IndexStore interface {
	ListIndexPaths(ctx context.Context) ([]string, error)
	CreateIndexPath(ctx context.Context, path string) error
	DeleteIndexPath(ctx context.Context, path string) error
}
