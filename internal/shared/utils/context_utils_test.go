package utils

import (
	"context"
	"testing"

	"github.com/uc-cdis/metadata-service-sub001/internal/shared/contextkeys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	_, err := GetRequestIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrRequestIDNotFound)
	assert.Equal(t, "none", GetRequestIDOrDefault(ctx, "none"))

	ctx = WithRequestID(ctx, "req-1")
	id, err := GetRequestIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)

	bad := context.WithValue(context.Background(), contextkeys.RequestIDKey, 42)
	_, err = GetRequestIDFromContext(bad)
	assert.ErrorIs(t, err, ErrRequestIDNotString)
}

func TestAdminUser(t *testing.T) {
	_, err := GetAdminUserFromContext(context.Background())
	assert.ErrorIs(t, err, ErrAdminUserNotFound)

	user, err := GetAdminUserFromContext(WithAdminUser(context.Background(), "abc"))
	require.NoError(t, err)
	assert.Equal(t, "abc", user)
}

func TestContextBuilders(t *testing.T) {
	ctx := WithOperation(WithComponent(WithCommons(context.Background(), "c1"), "puller"), "pull")
	assert.Equal(t, "c1", ctx.Value(contextkeys.CommonsKey))
	assert.Equal(t, "puller", ctx.Value(contextkeys.ComponentKey))
	assert.Equal(t, "pull", ctx.Value(contextkeys.OperationKey))
}
