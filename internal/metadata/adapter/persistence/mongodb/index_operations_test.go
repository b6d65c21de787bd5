package mongodb

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mockMarkers struct{ mock.Mock }

func (m *mockMarkers) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	args := m.Called(ctx, document)
	res, _ := args.Get(0).(*mongo.InsertOneResult)
	return res, args.Error(1)
}

func (m *mockMarkers) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).(*mongo.DeleteResult)
	return res, args.Error(1)
}

func (m *mockMarkers) Distinct(ctx context.Context, fieldName string, filter interface{}, opts ...*options.DistinctOptions) ([]interface{}, error) {
	args := m.Called(ctx, fieldName, filter)
	res, _ := args.Get(0).([]interface{})
	return res, args.Error(1)
}

type mockIndexManager struct{ mock.Mock }

func (m *mockIndexManager) CreateOne(ctx context.Context, model mongo.IndexModel, opts ...*options.CreateIndexesOptions) (string, error) {
	args := m.Called(ctx, model)
	return args.String(0), args.Error(1)
}

func (m *mockIndexManager) DropOne(ctx context.Context, name string, opts ...*options.DropIndexesOptions) (bson.Raw, error) {
	args := m.Called(ctx, name)
	return nil, args.Error(1)
}

func newIndexOps() (*IndexOperations, *mockMarkers, *mockIndexManager) {
	markers := &mockMarkers{}
	indexes := &mockIndexManager{}
	return NewIndexOperations(markers, indexes, logger.NewLoggerWithConfig("error", "text")), markers, indexes
}

func duplicateKeyError() error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
}

func TestIndexOperations_Create(t *testing.T) {
	ctx := context.Background()
	ops, markers, indexes := newIndexOps()

	markers.On("InsertOne", ctx, mock.AnythingOfType("mongodb.indexPathDocument")).Return(&mongo.InsertOneResult{}, nil)
	indexes.On("CreateOne", ctx, mock.MatchedBy(func(m mongo.IndexModel) bool {
		keys, ok := m.Keys.(bson.D)
		return ok && len(keys) == 1 && keys[0].Key == "data.a.b" && *m.Options.Name == "path_idx_a.b"
	})).Return("path_idx_a.b", nil)

	require.NoError(t, ops.Create(ctx, "a.b"))
	markers.AssertExpectations(t)
	indexes.AssertExpectations(t)
}

func TestIndexOperations_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	ops, markers, indexes := newIndexOps()
	markers.On("InsertOne", ctx, mock.Anything).Return(nil, duplicateKeyError())

	err := ops.Create(ctx, "a")
	assert.True(t, apperrors.IsConflict(err))
	indexes.AssertNotCalled(t, "CreateOne", mock.Anything, mock.Anything)
}

func TestIndexOperations_CreateRollsBackMarker(t *testing.T) {
	ctx := context.Background()
	ops, markers, indexes := newIndexOps()
	markers.On("InsertOne", ctx, mock.Anything).Return(&mongo.InsertOneResult{}, nil)
	indexes.On("CreateOne", ctx, mock.Anything).Return("", errors.New("index build failed"))
	markers.On("DeleteOne", ctx, bson.M{"_id": "a"}).Return(&mongo.DeleteResult{DeletedCount: 1}, nil)

	err := ops.Create(ctx, "a")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeStore, appErr.Type)
	markers.AssertExpectations(t)
}

func TestIndexOperations_Delete(t *testing.T) {
	ctx := context.Background()
	ops, markers, indexes := newIndexOps()
	markers.On("DeleteOne", ctx, bson.M{"_id": "a"}).Return(&mongo.DeleteResult{DeletedCount: 1}, nil)
	indexes.On("DropOne", ctx, "path_idx_a").Return(nil, nil)
	markers.On("DeleteOne", ctx, bson.M{"_id": "missing"}).Return(&mongo.DeleteResult{DeletedCount: 0}, nil)

	require.NoError(t, ops.Delete(ctx, "a"))
	assert.True(t, apperrors.IsNotFound(ops.Delete(ctx, "missing")))
}

func TestIndexOperations_DeleteToleratesMissingIndex(t *testing.T) {
	ctx := context.Background()
	ops, markers, indexes := newIndexOps()
	markers.On("DeleteOne", ctx, bson.M{"_id": "a"}).Return(&mongo.DeleteResult{DeletedCount: 1}, nil)
	indexes.On("DropOne", ctx, "path_idx_a").Return(nil, mongo.CommandError{Code: 27, Name: "IndexNotFound"})

	assert.NoError(t, ops.Delete(ctx, "a"))
}

func TestIndexOperations_List(t *testing.T) {
	ctx := context.Background()
	ops, markers, _ := newIndexOps()
	markers.On("Distinct", ctx, "_id", bson.M{}).Return([]interface{}{"b", "a.c", "a"}, nil)

	paths, err := ops.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.c", "b"}, paths)
}
