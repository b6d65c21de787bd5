package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/adapters"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/cache/memory"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/client"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func study(name string, subjects int) string {
	return `{"_guid_type": "discovery_metadata", "gen3_discovery": {"name": "` + name + `", "_subjects_count": ` +
		strconv.Itoa(subjects) + `, "tags": [{"name": "heart", "category": "Disease"}, {"name": "` + name + `", "category": "Study"}]}}`
}

// fakePeer serves two-record pages of a peer metadata service and a JSON
// study list.
type fakePeer struct {
	forbidden atomic.Bool
	pages     atomic.Int32
}

func (p *fakePeer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.forbidden.Load() {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/mds/metadata":
		p.pages.Add(1)
		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = w.Write([]byte(`{"c2": ` + study("c2", 10) + `, "c1": ` + study("c1", 5) + `}`))
		case "2":
			_, _ = w.Write([]byte(`{"c3": ` + study("c3", 15) + `}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	case "/studies":
		_, _ = w.Write([]byte(`{"items": [{"id": "s2", "title": "Second"}, {"id": "s1", "title": "First"}]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type recorder struct {
	mu    sync.Mutex
	calls map[string][]bool
}

func (r *recorder) ObserveRefresh(commons string, success bool, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string][]bool{}
	}
	r.calls[commons] = append(r.calls[commons], success)
}

type PopulatorTestSuite struct {
	suite.Suite
	peer      *fakePeer
	server    *httptest.Server
	cache     *memory.Cache
	bus       *eventbus.EventBus
	recorder  *recorder
	populator *Populator
	cfg       *config.PopulateConfig
}

func (s *PopulatorTestSuite) SetupTest() {
	log := logger.NewLoggerWithConfig("error", "text")
	s.peer = &fakePeer{}
	s.server = httptest.NewServer(s.peer)
	s.cache = memory.NewCache()
	s.bus = eventbus.NewEventBus(log)
	s.recorder = &recorder{}

	fetcher := client.NewClient(time.Second, log)
	s.populator = NewPopulator(s.cache, fetcher, adapters.DefaultRegistry(fetcher, log), log,
		WithEvents(s.bus), WithRecorder(s.recorder), WithConcurrency(2))

	s.cfg = &config.PopulateConfig{
		GEN3Commons: map[string]config.MDSCommons{
			"peer": {
				MDSURL:          s.server.URL + "/",
				CommonsURL:      "peer.example.org",
				PageSize:        2,
				ColumnsToFields: map[string]interface{}{"short_name": "name"},
			},
		},
		AdapterCommons: map[string]config.AdapterCommons{
			"studies": {
				MDSURL:        s.server.URL + "/studies",
				CommonsURL:    "studies.example.org",
				Adapter:       adapters.JSONName,
				Filters:       map[string]interface{}{"results_path": "items"},
				FieldMappings: map[string]interface{}{"title": "path:title"},
			},
		},
		Aggregations: map[string]config.AggregationSpec{
			"_subjects_count": {Type: "sum"},
			"name":            {Type: "count"},
		},
	}
}

func (s *PopulatorTestSuite) TearDownTest() {
	s.server.Close()
}

func TestPopulatorTestSuite(t *testing.T) {
	suite.Run(t, new(PopulatorTestSuite))
}

func (s *PopulatorTestSuite) guids(commons string) []string {
	records, err := s.cache.GetAllNamedCommonsMetadata(context.Background(), commons)
	s.Require().NoError(err)
	var out []string
	for _, wrapped := range records {
		for guid := range wrapped {
			out = append(out, guid)
		}
	}
	return out
}

func (s *PopulatorTestSuite) TestPullUnionThenForbiddenKeepsSnapshot() {
	ctx := context.Background()
	refreshed := make(chan model.RefreshEvent, 4)
	s.bus.Subscribe(model.EventCommonsRefreshed, func(_ context.Context, ev eventbus.Event) error {
		refreshed <- ev.Data().(model.RefreshEvent)
		return nil
	})

	report, err := s.populator.Run(ctx, s.cfg)
	s.Require().NoError(err)
	s.Equal([]string{"peer", "studies"}, report.Refreshed)
	s.Empty(report.Failed)
	s.Equal(int32(2), s.peer.pages.Load())

	s.Equal([]string{"c2", "c1", "c3"}, s.guids("peer"))
	s.Equal([]string{"s1", "s2"}, s.guids("studies"))

	status, err := s.cache.GetStatus(ctx, "peer")
	s.Require().NoError(err)
	s.Equal(3, status.Count)
	s.Empty(status.Error)

	rec, err := s.cache.GetCommonsMetadataGUID(ctx, "peer", "c1")
	s.Require().NoError(err)
	s.Equal("c1", rec["gen3_discovery"].(map[string]interface{})["short_name"])

	tags, err := s.cache.GetCommonsAttribute(ctx, "peer", model.AttrTags)
	s.Require().NoError(err)
	s.Equal(map[string][]string{"Disease": {"heart"}, "Study": {"c1", "c2", "c3"}}, tags)

	aggs, err := s.cache.GetCommonsAttribute(ctx, "peer", model.AttrAggregations)
	s.Require().NoError(err)
	s.Equal(map[string]interface{}{"_subjects_count": 30.0, "name": 3}, aggs)

	info, err := s.cache.GetCommonsAttribute(ctx, "peer", model.AttrInfo)
	s.Require().NoError(err)
	s.Equal(map[string]interface{}{"commons_url": "peer.example.org"}, info)

	s.Eventually(func() bool { return len(refreshed) == 2 }, 2*time.Second, 10*time.Millisecond)

	s.peer.forbidden.Store(true)
	report, err = s.populator.Run(ctx, s.cfg)
	s.Require().NoError(err)
	s.Empty(report.Refreshed)
	s.Contains(report.Failed, "peer")
	s.Contains(report.Failed, "studies")

	s.Equal([]string{"c2", "c1", "c3"}, s.guids("peer"))
	status, err = s.cache.GetStatus(ctx, "peer")
	s.Require().NoError(err)
	s.NotEmpty(status.Error)
	s.Equal(3, status.Count)

	s.recorder.mu.Lock()
	s.Equal([]bool{true, false}, s.recorder.calls["peer"])
	s.recorder.mu.Unlock()
}

func (s *PopulatorTestSuite) TestFirstFailureHasNoSnapshot() {
	ctx := context.Background()
	s.peer.forbidden.Store(true)

	_, err := s.populator.Run(ctx, s.cfg)
	s.Require().NoError(err)

	_, err = s.cache.GetCommonsMetadata(ctx, "peer", -1, 0)
	s.True(apperrors.IsNotFound(err))
	status, err := s.cache.GetStatus(ctx, "peer")
	s.Require().NoError(err)
	s.Equal(0, status.Count)
	s.NotEmpty(status.Error)
}

func (s *PopulatorTestSuite) TestSelectExpression() {
	peer := s.cfg.GEN3Commons["peer"]
	peer.SelectExpression = `record.gen3_discovery.name != "c2"`
	s.cfg.GEN3Commons["peer"] = peer

	_, err := s.populator.Run(context.Background(), s.cfg)
	s.Require().NoError(err)
	s.Equal([]string{"c1", "c3"}, s.guids("peer"))
}

func (s *PopulatorTestSuite) TestInvalidSelectExpressionFailsCommons() {
	peer := s.cfg.GEN3Commons["peer"]
	peer.SelectExpression = `record.(`
	s.cfg.GEN3Commons["peer"] = peer

	report, err := s.populator.Run(context.Background(), s.cfg)
	s.Require().NoError(err)
	s.Contains(report.Failed, "peer")
	s.Equal([]string{"studies"}, report.Refreshed)
}

func (s *PopulatorTestSuite) TestCancelledRunPublishesNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.populator.Run(ctx, s.cfg)
	s.ErrorIs(err, context.Canceled)

	names, err := s.cache.GetCommons(context.Background())
	s.Require().NoError(err)
	s.Empty(names)
	_, err = s.cache.GetStatus(context.Background(), "peer")
	s.True(apperrors.IsNotFound(err))
}

func TestPageURL(t *testing.T) {
	assert.Equal(t,
		"http://peer/mds/metadata?_guid_type=discovery_metadata&data=True&limit=2&offset=4",
		PageURL("http://peer/", "discovery_metadata", 2, 4))
}

func TestPullMDS_StopsWhenNoNewGUIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"a": {"x": 1}, "b": {"x": 2}}`))
	}))
	defer srv.Close()

	res, err := PullMDS(context.Background(), client.NewClient(time.Second, logger.NewLoggerWithConfig("error", "text")),
		PullRequest{MDSURL: srv.URL, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Order)
}

func TestPullMDS_MalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["not", "an", "object"]`))
	}))
	defer srv.Close()

	_, err := PullMDS(context.Background(), client.NewClient(time.Second, logger.NewLoggerWithConfig("error", "text")),
		PullRequest{MDSURL: srv.URL})
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeUpstream, appErr.Type)
}

func TestSelector(t *testing.T) {
	sel, err := NewSelector(`record.size > 2.0`)
	require.NoError(t, err)
	ok, err := sel.Select(model.Record{"size": 3.0})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = sel.Select(model.Record{"other": 1.0})
	assert.Error(t, err)

	kept := sel.Filter([]string{"a", "b", "c"}, map[string]model.Record{
		"a": {"size": 1.0}, "b": {"size": 5.0}, "c": {},
	})
	assert.Equal(t, []string{"b"}, kept)

	all, err := NewSelector("")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, all.Filter([]string{"x"}, nil))

	notBool, err := NewSelector(`record.size`)
	require.NoError(t, err)
	_, err = notBool.Select(model.Record{"size": 3.0})
	assert.Error(t, err)
}
