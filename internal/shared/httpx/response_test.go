package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/", func(c *fiber.Ctx) error { return err })

	resp, testErr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, testErr)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestWriteError_AppError(t *testing.T) {
	status, body := respond(t, apperrors.NewParseError("expected ','", 4))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])
	assert.Equal(t, "expected ','", body["message"])
	assert.Equal(t, "FILTER_PARSE", body["code"])
	assert.Equal(t, 4.0, body["details"].(map[string]interface{})["position"])
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	status, body := respond(t, apperrors.WrapStoreError(errors.New("dial tcp: refused"), "failed to read record"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "STORE_ERROR", body["error"])
	assert.Equal(t, "internal server error", body["message"])
}

func TestWriteError_FiberError(t *testing.T) {
	status, body := respond(t, fiber.ErrMethodNotAllowed)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, "HTTP_ERROR", body["error"])
}

func TestWriteError_InternalWithRequestContext(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(requestid.New())
	app.Use(RequestContext())
	app.Get("/", func(c *fiber.Ctx) error {
		return apperrors.WrapStoreError(errors.New("connection reset"), "failed to list records")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-500")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "req-500", resp.Header.Get(fiber.HeaderXRequestID))
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal server error", body["message"])
}
