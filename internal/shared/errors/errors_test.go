package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Behavior(t *testing.T) {
	err := NewValidationError("invalid input").WithCode("VAL001").WithDetail("field", "name").WithComponent("test-component")
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Equal(t, "VAL001", err.Code)
	assert.Equal(t, "test-component", err.Component)
	assert.Equal(t, "name", err.Details["field"])
	assert.Equal(t, "invalid input", err.Error())
}

func TestAppError_WithCause_Unwrap(t *testing.T) {
	err := NewNotFoundError("record").WithCause(ErrNotFound)
	assert.Equal(t, ErrNotFound, err.Unwrap())
	assert.Equal(t, "record not found: resource not found", err.Error())
}

func TestNewParseError_CarriesPosition(t *testing.T) {
	err := NewParseError("unexpected token", 7)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 7, err.Details["position"])
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewNotFoundError("x"), http.StatusNotFound},
		{"conflict", NewConflictError("dup"), http.StatusConflict},
		{"forbidden", NewAuthorizationError("no"), http.StatusForbidden},
		{"unauthorized", NewAuthenticationError("no"), http.StatusUnauthorized},
		{"upstream timeout", NewUpstreamTimeoutError("slow"), http.StatusGatewayTimeout},
		{"upstream", NewUpstreamError("bad", 403), http.StatusBadGateway},
		{"store", NewStoreError("down"), http.StatusInternalServerError},
		{"wrapped sentinel", fmt.Errorf("ctx: %w", ErrConflict), http.StatusConflict},
		{"wrapped app error", fmt.Errorf("ctx: %w", NewNotFoundError("g")), http.StatusNotFound},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestWrapStoreError(t *testing.T) {
	assert.NoError(t, WrapStoreError(nil, "x"))

	typed := NewConflictError("dup")
	assert.Same(t, typed, WrapStoreError(typed, "x"))

	wrapped := WrapStoreError(fmt.Errorf("connection refused"), "failed to insert")
	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeStore, appErr.Type)
}

func TestTypePredicates(t *testing.T) {
	nf := NewNotFoundError("doc")
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsValidation(nf))
	assert.False(t, IsConflict(nf))

	assert.True(t, IsConflict(NewConflictError("dup")))
	assert.True(t, IsAuthentication(NewAuthenticationError("bad")))
	assert.True(t, IsAuthorization(NewAuthorizationError("bad")))
	assert.True(t, IsUpstreamTimeout(fmt.Errorf("wrap: %w", NewUpstreamTimeoutError("t"))))
}
