package openapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDocument_CoversRoutes(t *testing.T) {
	doc := Document()
	assert.Equal(t, "3.0.3", doc["openapi"])

	paths, ok := doc["paths"].(map[string]interface{})
	require.True(t, ok)
	for _, p := range []string{
		"/_status", "/metadata", "/metadata/{guid}", "/metadata/{guid}/aliases",
		"/metadata_index", "/aggregate/search", "/aggregate/metadata/{name}/guid/{guid}",
	} {
		assert.Contains(t, paths, p)
	}
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "3.0.3", decoded["openapi"])
	assert.Contains(t, decoded["paths"], "/metadata")
}

func TestRegisterRoutes_ServesJSON(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/openapi.json", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "Metadata Service", decoded["info"].(map[string]interface{})["title"])
}
