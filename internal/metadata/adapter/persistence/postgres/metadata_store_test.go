package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/query"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository/storetest"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupStore connects to POSTGRES_TEST_DSN and empties the tables afterwards.
func setupStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Connect(ctx, Config{DSN: dsn}, logger.NewLoggerWithConfig("error", "text"))
	require.NoError(t, err)

	t.Cleanup(func() {
		store.db.Exec("TRUNCATE metadata_alias, metadata, metadata_index_path")
		_ = store.Close(context.Background())
	})
	return store
}

func TestStore_Integration_CRUD(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	authz := map[string]interface{}{"version": 0.0}
	require.NoError(t, s.Create(ctx, []*model.MetadataRecord{
		{GUID: "pg_1", Data: map[string]interface{}{"tags": []interface{}{map[string]interface{}{"name": "b"}}, "n": 3.0}, Authz: authz},
		{GUID: "pg_2", Data: map[string]interface{}{"tags": []interface{}{}, "n": 30.0}, Authz: authz},
	}, false))
	assert.True(t, apperrors.IsConflict(s.Create(ctx, []*model.MetadataRecord{{GUID: "pg_1", Authz: authz}}, false)))

	f, err := query.Parse(`(tags,:any,(name,:eq,"b"))`)
	require.NoError(t, err)
	found, err := s.List(ctx, repository.ListQuery{Filter: f, Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "pg_1", found[0].GUID)

	f, err = query.Parse(`(n,:gte,10)`)
	require.NoError(t, err)
	found, err = s.List(ctx, repository.ListQuery{Filter: f, Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "pg_2", found[0].GUID)

	merged, err := s.Update(ctx, "pg_2", map[string]interface{}{"extra": true}, true)
	require.NoError(t, err)
	assert.Equal(t, 30.0, merged.Data["n"])
	assert.Equal(t, true, merged.Data["extra"])

	require.NoError(t, s.ReplaceAliases(ctx, "pg_1", []string{"one", "uno"}))
	aliases, err := s.ListAliases(ctx, "pg_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "uno"}, aliases)

	deleted, err := s.Delete(ctx, "pg_1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, deleted.Data["n"])
	_, err = s.GetAlias(ctx, "one")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_Integration_IndexPaths(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIndexPath(ctx, "a.b"))
	assert.True(t, apperrors.IsConflict(s.CreateIndexPath(ctx, "a.b")))
	paths, err := s.ListIndexPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b"}, paths)
	require.NoError(t, s.DeleteIndexPath(ctx, "a.b"))
	assert.True(t, apperrors.IsNotFound(s.DeleteIndexPath(ctx, "a.b")))
}

func TestStore_Integration_FilterConformance(t *testing.T) {
	storetest.RunFilterConformance(t, setupStore(t))
}
