package integration

import (
	"context"
	"encoding/json"
	"io"
	"net"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aggconfig "github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	aggregatehttp "github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/http"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	authconfig "github.com/uc-cdis/metadata-service-sub001/internal/auth/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/di"
	mdconfig "github.com/uc-cdis/metadata-service-sub001/internal/metadata/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/httpx"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"
)

func newService(t *testing.T, aggEnabled bool, mount func(app *fiber.App) fiber.Router) (*di.Container, *fiber.App) {
	t.Helper()
	ctx := context.Background()
	c := di.NewContainer(logger.NewLoggerWithConfig("error", "text"))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.InitializeAuth(&authconfig.Config{AdminLogins: "admin:secret"}))
	require.NoError(t, c.InitializeMetadata(ctx, mdconfig.DefaultMetadataConfig()))
	agg := aggconfig.DefaultAggregateConfig()
	agg.Enabled = aggEnabled
	require.NoError(t, c.InitializeAggregate(ctx, agg, &aggconfig.PopulateConfig{}))

	app := fiber.New(fiber.Config{Immutable: true, ErrorHandler: httpx.ErrorHandler})
	require.NoError(t, c.RegisterRoutes(mount(app)))
	return c, app
}

func call(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// Records round trip through the public API
func TestMetadataAPI_Integration(t *testing.T) {
	_, app := newService(t, false, func(app *fiber.App) fiber.Router { return app })

	code, _ := call(t, app, stdhttp.MethodPost, "/metadata", `[
		{"guid": "dg.1/a", "data": {"title": "Heart", "n": 1}},
		{"guid": "dg.1/b", "data": {"title": "Lung", "n": 5}}
	]`)
	require.Equal(t, stdhttp.StatusCreated, code)

	// guid containing a slash
	code, body := call(t, app, stdhttp.MethodGet, "/metadata/dg.1/a", "")
	require.Equal(t, stdhttp.StatusOK, code)
	assert.JSONEq(t, `{"title": "Heart", "n": 1}`, string(body))

	code, _ = call(t, app, stdhttp.MethodPost, "/metadata/dg.1/a/aliases", `{"aliases": ["heart-study"]}`)
	require.Equal(t, stdhttp.StatusCreated, code)
	code, body = call(t, app, stdhttp.MethodGet, "/metadata/heart-study", "")
	require.Equal(t, stdhttp.StatusOK, code)
	assert.JSONEq(t, `{"title": "Heart", "n": 1}`, string(body))

	filter := url.QueryEscape(`(n,:gte,2)`)
	code, body = call(t, app, stdhttp.MethodGet, "/metadata?filter="+filter, "")
	require.Equal(t, stdhttp.StatusOK, code)
	assert.JSONEq(t, `["dg.1/b"]`, string(body))

	code, body = call(t, app, stdhttp.MethodGet, "/metadata?title=Heart&data=true", "")
	require.Equal(t, stdhttp.StatusOK, code)
	assert.JSONEq(t, `{"dg.1/a": {"title": "Heart", "n": 1}}`, string(body))

	code, _ = call(t, app, stdhttp.MethodDelete, "/metadata/dg.1/a", "")
	require.Equal(t, stdhttp.StatusOK, code)
	code, _ = call(t, app, stdhttp.MethodGet, "/metadata/heart-study", "")
	assert.Equal(t, stdhttp.StatusNotFound, code)
}

// A second service aggregates the first one and streams the refresh
func TestAggregatePopulate_Integration(t *testing.T) {
	_, peer := newService(t, false, func(app *fiber.App) fiber.Router { return app.Group("/mds") })
	code, _ := call(t, peer, stdhttp.MethodPost, "/mds/metadata", `[
		{"guid": "s1", "data": {"_guid_type": "discovery_metadata", "gen3_discovery": {"title": "Heart study", "tags": [{"name": "heart", "category": "Disease"}]}}},
		{"guid": "s2", "data": {"_guid_type": "discovery_metadata", "gen3_discovery": {"title": "Lung study"}}},
		{"guid": "x1", "data": {"_guid_type": "other"}}
	]`)
	require.Equal(t, stdhttp.StatusCreated, code)
	peerServer := httptest.NewServer(adaptor.FiberApp(peer))
	t.Cleanup(peerServer.Close)

	agg, app := newService(t, true, func(app *fiber.App) fiber.Router { return app })
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/aggregate/ws?commons=peer", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool {
		return agg.Bus.SubscriberCount(model.EventCommonsRefreshed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cfg := &aggconfig.PopulateConfig{
		GEN3Commons: map[string]aggconfig.MDSCommons{
			"peer": {MDSURL: peerServer.URL, CommonsURL: "peer.example.org"},
		},
	}
	report, err := agg.AggregateModule.Populate(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"peer"}, report.Refreshed)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg aggregatehttp.RefreshMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, model.EventCommonsRefreshed, msg.Type)
	assert.Equal(t, "peer", msg.Data.Commons)
	assert.Equal(t, 2, msg.Data.Status.Count)

	code, body := call(t, app, stdhttp.MethodGet, "/aggregate/metadata/peer/guid/s1", "")
	require.Equal(t, stdhttp.StatusOK, code)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, "discovery_metadata", rec["_guid_type"])

	code, body = call(t, app, stdhttp.MethodGet, "/aggregate/metadata/peer/tags", "")
	require.Equal(t, stdhttp.StatusOK, code)
	assert.JSONEq(t, `{"Disease": ["heart"]}`, string(body))

	code, body = call(t, app, stdhttp.MethodPost, "/aggregate/search",
		`{"query": {"term": {"path": "gen3_discovery.title", "value": "lung"}}}`)
	require.Equal(t, stdhttp.StatusOK, code)
	var res struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 1, res.Total)
}
