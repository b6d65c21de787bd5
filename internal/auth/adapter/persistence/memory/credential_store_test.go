package memory

import (
	"context"
	"testing"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStore_Lookup(t *testing.T) {
	store := NewCredentialStore([]config.Login{
		{Username: "abc", Password: "123"},
		{Username: "ops", Password: "$2a$10$abcdefghijklmnopqrstuv"},
		{Username: "abc", Password: "456"},
	})
	assert.Equal(t, 2, store.Len())

	cred, ok := store.Lookup(context.Background(), "abc")
	require.True(t, ok)
	assert.Equal(t, "456", cred.Secret)
	assert.False(t, cred.Hashed)

	cred, ok = store.Lookup(context.Background(), "ops")
	require.True(t, ok)
	assert.True(t, cred.Hashed)

	_, ok = store.Lookup(context.Background(), "nobody")
	assert.False(t, ok)
}
