package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/adapter/persistence/memory"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/usecase"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MetadataUsecaseTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	usecase *usecase.MetadataUsecase
}

func (suite *MetadataUsecaseTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = memory.NewStore()
	suite.usecase = usecase.NewMetadataUsecase(suite.store, logger.NewLoggerWithConfig("error", "text"),
		usecase.WithStoreTimeout(5*time.Second))
}

func (suite *MetadataUsecaseTestSuite) seed(guid string, data map[string]interface{}) {
	_, err := suite.usecase.CreateRecord(suite.ctx, guid, data, false)
	require.NoError(suite.T(), err)
}

func guids(records []*model.MetadataRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.GUID)
	}
	return out
}

func (suite *MetadataUsecaseTestSuite) TestCreateRecord_DefaultAuthz() {
	rec, err := suite.usecase.CreateRecord(suite.ctx, "g1", map[string]interface{}{"n": 1}, false)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), map[string]interface{}{"n": 1.0}, rec.Data)
	assert.Equal(suite.T(), map[string]interface{}{
		"version":         0.0,
		"_resource_paths": []interface{}{"/open"},
	}, rec.Authz)

	_, err = suite.usecase.CreateRecord(suite.ctx, "g1", nil, false)
	assert.True(suite.T(), apperrors.IsConflict(err))

	_, err = suite.usecase.CreateRecord(suite.ctx, "g1", map[string]interface{}{"n": 2}, true)
	require.NoError(suite.T(), err)
	got, err := suite.usecase.GetRecord(suite.ctx, "g1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2.0, got.Data["n"])
}

func (suite *MetadataUsecaseTestSuite) TestCreateRecords_AllOrNothing() {
	suite.seed("taken", nil)

	_, err := suite.usecase.CreateRecords(suite.ctx, usecase.CreateBatchRequest{Records: []usecase.CreateRecordRequest{
		{GUID: "new_1", Data: map[string]interface{}{}},
		{GUID: "taken", Data: map[string]interface{}{}},
	}})
	assert.True(suite.T(), apperrors.IsConflict(err))
	_, err = suite.usecase.GetRecord(suite.ctx, "new_1")
	assert.True(suite.T(), apperrors.IsNotFound(err))

	_, err = suite.usecase.CreateRecords(suite.ctx, usecase.CreateBatchRequest{Records: []usecase.CreateRecordRequest{
		{GUID: "dup"}, {GUID: "dup"},
	}})
	assert.True(suite.T(), apperrors.IsConflict(err))

	_, err = suite.usecase.CreateRecords(suite.ctx, usecase.CreateBatchRequest{Records: []usecase.CreateRecordRequest{{GUID: ""}}})
	assert.True(suite.T(), apperrors.IsValidation(err))

	baseID := "base-1"
	records, err := suite.usecase.CreateRecords(suite.ctx, usecase.CreateBatchRequest{Records: []usecase.CreateRecordRequest{
		{GUID: "b1", Data: map[string]interface{}{"x": 1}, Authz: map[string]interface{}{"version": 1}, BaseID: &baseID},
		{GUID: "b2"},
	}})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), records, 2)
	assert.Equal(suite.T(), 1.0, records[0].Authz["version"])
	assert.Equal(suite.T(), "base-1", *records[0].BaseID)
	assert.Equal(suite.T(), map[string]interface{}{}, records[1].Data)
}

func (suite *MetadataUsecaseTestSuite) TestListRecords_KeyValueQueries() {
	suite.seed("tq_1", map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{"c": 3}, "d": 4}, "e": 5})
	suite.seed("tq_2", map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{"c": 3}, "d": 40}, "e": 5})
	suite.seed("tq_3", map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{"c": 3, "d": 4}}, "e": 5})
	suite.seed("tq_4", map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{"c": 3, "d": 4, "e": 5}}})

	cases := []struct {
		params map[string][]string
		want   []string
	}{
		{map[string][]string{"e": {"5"}}, []string{"tq_1", "tq_2", "tq_3"}},
		{map[string][]string{"a.b.d": {"4"}}, []string{"tq_3", "tq_4"}},
		{map[string][]string{"a.b.c": {"3"}, "a.d": {"4", "40"}}, []string{"tq_1", "tq_2"}},
	}
	for _, tc := range cases {
		records, err := suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{KeyValues: tc.params, Limit: 20})
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), tc.want, guids(records))
	}
}

func (suite *MetadataUsecaseTestSuite) TestListRecords_FilterGrammar() {
	suite.seed("g1", map[string]interface{}{"tags": []interface{}{"x", "y"}, "n": 1})
	suite.seed("g2", map[string]interface{}{"tags": []interface{}{"z"}, "n": 5})

	records, err := suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Filter: `(tags,:any,(,:eq,"z"))`, Limit: 20})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"g2"}, guids(records))

	records, err = suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Filter: `(or,(n,:lt,2),(n,:gt,4))`, Limit: 20})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"g1", "g2"}, guids(records))

	_, err = suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Filter: `(n,:eq`, Limit: 20})
	assert.True(suite.T(), apperrors.IsValidation(err))

	_, err = suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{
		Filter:    `(n,:eq,1)`,
		KeyValues: map[string][]string{"n": {"1"}},
		Limit:     20,
	})
	appErr, ok := apperrors.AsAppError(err)
	require.True(suite.T(), ok)
	assert.Equal(suite.T(), "FILTER_CONFLICT", appErr.Code)
}

func (suite *MetadataUsecaseTestSuite) TestListRecords_Paging() {
	for _, g := range []string{"c", "a", "b"} {
		suite.seed(g, nil)
	}

	records, err := suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Limit: 2, Offset: 1})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"b", "c"}, guids(records))

	records, err = suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Limit: 5000})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), records, 3)

	records, err = suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Limit: 10, Offset: 10})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), records)

	records, err = suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Limit: 0})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), records)

	_, err = suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Limit: -1})
	assert.True(suite.T(), apperrors.IsValidation(err))
	_, err = suite.usecase.ListRecords(suite.ctx, usecase.ListRequest{Limit: 1, Offset: -1})
	assert.True(suite.T(), apperrors.IsValidation(err))
}

func (suite *MetadataUsecaseTestSuite) TestUpdateRecord() {
	suite.seed("g1", map[string]interface{}{"a": 1, "b": 2})

	rec, err := suite.usecase.UpdateRecord(suite.ctx, usecase.UpdateRequest{GUID: "g1", Data: map[string]interface{}{"b": 3, "c": 4}, Merge: true})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), map[string]interface{}{"a": 1.0, "b": 3.0, "c": 4.0}, rec.Data)

	rec, err = suite.usecase.UpdateRecord(suite.ctx, usecase.UpdateRequest{GUID: "g1", Data: map[string]interface{}{"z": true}})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), map[string]interface{}{"z": true}, rec.Data)

	_, err = suite.usecase.UpdateRecord(suite.ctx, usecase.UpdateRequest{GUID: "missing", Data: map[string]interface{}{}})
	assert.True(suite.T(), apperrors.IsNotFound(err))
}

func (suite *MetadataUsecaseTestSuite) TestAliases() {
	suite.seed("g1", map[string]interface{}{"k": "v"})

	created, err := suite.usecase.CreateAliases(suite.ctx, "g1", []string{"zeta", "alpha"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"alpha", "zeta"}, created)

	rec, err := suite.usecase.GetRecord(suite.ctx, "alpha")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "g1", rec.GUID)

	_, err = suite.usecase.CreateAliases(suite.ctx, "g1", []string{"alpha"})
	assert.True(suite.T(), apperrors.IsConflict(err))
	_, err = suite.usecase.CreateAliases(suite.ctx, "g1", []string{"x", "x"})
	assert.True(suite.T(), apperrors.IsValidation(err))
	_, err = suite.usecase.CreateAliases(suite.ctx, "missing", []string{"y"})
	assert.True(suite.T(), apperrors.IsNotFound(err))

	replaced, err := suite.usecase.ReplaceAliases(suite.ctx, "g1", []string{"beta"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"beta"}, replaced)
	_, err = suite.usecase.GetRecord(suite.ctx, "alpha")
	assert.True(suite.T(), apperrors.IsNotFound(err))

	_, err = suite.usecase.DeleteRecord(suite.ctx, "g1")
	require.NoError(suite.T(), err)
	_, err = suite.usecase.GetRecord(suite.ctx, "beta")
	assert.True(suite.T(), apperrors.IsNotFound(err))
}

func (suite *MetadataUsecaseTestSuite) TestIndexPaths() {
	require.NoError(suite.T(), suite.usecase.CreateIndexPath(suite.ctx, "a.b"))
	assert.True(suite.T(), apperrors.IsConflict(suite.usecase.CreateIndexPath(suite.ctx, "a.b")))
	assert.True(suite.T(), apperrors.IsValidation(suite.usecase.CreateIndexPath(suite.ctx, "a..b")))

	paths, err := suite.usecase.ListIndexPaths(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"a.b"}, paths)

	require.NoError(suite.T(), suite.usecase.DeleteIndexPath(suite.ctx, "a.b"))
	assert.True(suite.T(), apperrors.IsNotFound(suite.usecase.DeleteIndexPath(suite.ctx, "a.b")))
}

func TestMetadataUsecaseTestSuite(t *testing.T) {
	suite.Run(t, new(MetadataUsecaseTestSuite))
}

func TestMetadataUsecase_PublishesRecordEvents(t *testing.T) {
	log := logger.NewLoggerWithConfig("error", "text")
	bus := eventbus.NewEventBus(log)

	var mu sync.Mutex
	seen := make(map[string]string)
	done := make(chan struct{}, 2)
	record := func(_ context.Context, e eventbus.Event) error {
		change := e.Data().(usecase.RecordChange)
		mu.Lock()
		seen[change.Action] = change.GUID
		mu.Unlock()
		done <- struct{}{}
		return nil
	}
	bus.Subscribe(eventbus.EventTypeRecordWritten, record)
	bus.Subscribe(eventbus.EventTypeRecordDeleted, record)

	uc := usecase.NewMetadataUsecase(memory.NewStore(), log, usecase.WithEventBus(bus),
		usecase.WithDefaultAuthz(map[string]interface{}{"version": 0.0}))
	rec, err := uc.CreateRecord(context.Background(), "g1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"version": 0.0}, rec.Authz)
	_, err = uc.DeleteRecord(context.Background(), "g1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{usecase.ActionCreated: "g1", usecase.ActionDeleted: "g1"}, seen)
}
