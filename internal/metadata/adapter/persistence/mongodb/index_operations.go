package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IndexMarkers stores one document per registered index path
type IndexMarkers interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	Distinct(ctx context.Context, fieldName string, filter interface{}, opts ...*options.DistinctOptions) ([]interface{}, error)
}

// IndexManager builds and drops the functional indexes on the records collection
type IndexManager interface {
	CreateOne(ctx context.Context, model mongo.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
	DropOne(ctx context.Context, name string, opts ...*options.DropIndexesOptions) (bson.Raw, error)
}

// IndexOperations keeps the registered paths and the backing indexes in step
type IndexOperations struct {
	markers IndexMarkers
	indexes IndexManager
	logger  logger.Logger
	now     func() time.Time
}

// NewIndexOperations wires the marker collection and the records index view
func NewIndexOperations(markers IndexMarkers, indexes IndexManager, log logger.Logger) *IndexOperations {
	return &IndexOperations{
		markers: markers,
		indexes: indexes,
		logger:  log,
		now:     time.Now,
	}
}

// IndexName is the name of the index backing a registered path
func IndexName(path string) string {
	return "path_idx_" + path
}

// List returns registered paths in lexical order
func (i *IndexOperations) List(ctx context.Context) ([]string, error) {
	raw, err := i.markers.Distinct(ctx, "_id", bson.M{})
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to list index paths")
	}
	paths := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			paths = append(paths, s)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Create registers a path and builds an ascending index on data.<path>
func (i *IndexOperations) Create(ctx context.Context, path string) error {
	doc := indexPathDocument{Path: path, CreatedAt: i.now().UTC()}
	if _, err := i.markers.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.NewConflictError(fmt.Sprintf("index path %q already exists", path))
		}
		return apperrors.WrapStoreError(err, "failed to register index path")
	}

	_, err := i.indexes.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: fieldPath(dataField, path), Value: 1}},
		Options: options.Index().SetName(IndexName(path)),
	})
	if err != nil {
		if _, rbErr := i.markers.DeleteOne(ctx, bson.M{"_id": path}); rbErr != nil {
			i.logger.Error("failed to roll back index path marker", "path", path, "error", rbErr)
		}
		return apperrors.WrapStoreError(err, "failed to create index")
	}

	i.logger.Info("index path created", "path", path)
	return nil
}

// Delete unregisters a path and drops its index
func (i *IndexOperations) Delete(ctx context.Context, path string) error {
	res, err := i.markers.DeleteOne(ctx, bson.M{"_id": path})
	if err != nil {
		return apperrors.WrapStoreError(err, "failed to delete index path")
	}
	if res.DeletedCount == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("index path %q", path))
	}

	if _, err := i.indexes.DropOne(ctx, IndexName(path)); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Name == "IndexNotFound" {
			return nil
		}
		return apperrors.WrapStoreError(err, "failed to drop index")
	}

	i.logger.Info("index path deleted", "path", path)
	return nil
}
