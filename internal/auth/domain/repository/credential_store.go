package repository

import (
	"context"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/model"
)

// CredentialStore resolves admin credentials by username
type CredentialStore interface {
	Lookup(ctx context.Context, username string) (model.Credential, bool)
}
