// Package memory keeps the admin credentials parsed from ADMIN_LOGINS.
package memory

import (
	"context"
	"strings"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/repository"
)

var _ repository.CredentialStore = (*CredentialStore)(nil)

// CredentialStore is an immutable username to credential map
type CredentialStore struct {
	creds map[string]model.Credential
}

// NewCredentialStore builds the store; a later entry for the same user wins
func NewCredentialStore(logins []config.Login) *CredentialStore {
	creds := make(map[string]model.Credential, len(logins))
	for _, l := range logins {
		creds[l.Username] = model.Credential{
			Username: l.Username,
			Secret:   l.Password,
			Hashed:   strings.HasPrefix(l.Password, "$2"),
		}
	}
	return &CredentialStore{creds: creds}
}

func (s *CredentialStore) Lookup(_ context.Context, username string) (model.Credential, bool) {
	c, ok := s.creds[username]
	return c, ok
}

// Len returns the number of configured admins
func (s *CredentialStore) Len() int {
	return len(s.creds)
}
