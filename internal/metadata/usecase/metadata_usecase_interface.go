package usecase

import (
	"context"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
)

// MetadataUsecaseInterface defines the operations behind the /metadata and
// /metadata_index endpoints.
type MetadataUsecaseInterface interface {
	// Record operations
	ListRecords(ctx context.Context, req ListRequest) ([]*model.MetadataRecord, error)
	GetRecord(ctx context.Context, guidOrAlias string) (*model.MetadataRecord, error)
	CreateRecord(ctx context.Context, guid string, data map[string]interface{}, overwrite bool) (*model.MetadataRecord, error)
	CreateRecords(ctx context.Context, req CreateBatchRequest) ([]*model.MetadataRecord, error)
	UpdateRecord(ctx context.Context, req UpdateRequest) (*model.MetadataRecord, error)
	DeleteRecord(ctx context.Context, guid string) (*model.MetadataRecord, error)

	// Alias operations
	ListAliases(ctx context.Context, guid string) ([]string, error)
	CreateAliases(ctx context.Context, guid string, aliases []string) ([]string, error)
	ReplaceAliases(ctx context.Context, guid string, aliases []string) ([]string, error)
	DeleteAlias(ctx context.Context, guid, alias string) error
	DeleteAliases(ctx context.Context, guid string) error

	// Index operations
	ListIndexPaths(ctx context.Context) ([]string, error)
	CreateIndexPath(ctx context.Context, path string) error
	DeleteIndexPath(ctx context.Context, path string) error

	// Health
	Ping(ctx context.Context) error
}
