package usecase

import (
	"context"
	"fmt"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/adapter/security"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/repository"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"
)

// AdminUsecaseInterface defines the contract for admin authentication.
type AdminUsecaseInterface interface {
	AuthenticateBasic(ctx context.Context, username, password string) (*model.Admin, error)
	AuthenticateToken(ctx context.Context, tokenString string) (*model.Admin, error)
	IssueToken(ctx context.Context, admin *model.Admin) (*TokenResponse, error)
}

// TokenResponse is returned to an admin exchanging basic credentials for a token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AdminUsecase checks admin credentials. tokenSvc may be nil when bearer
// tokens are not configured.
type AdminUsecase struct {
	creds    repository.CredentialStore
	tokenSvc repository.TokenService
	ttl      int
	logger   logger.Logger
}

// NewAdminUsecase creates a new instance of AdminUsecase.
func NewAdminUsecase(creds repository.CredentialStore, tokenSvc repository.TokenService, ttlSeconds int, log logger.Logger) *AdminUsecase {
	return &AdminUsecase{
		creds:    creds,
		tokenSvc: tokenSvc,
		ttl:      ttlSeconds,
		logger:   log.WithComponent("admin-auth"),
	}
}

func (uc *AdminUsecase) AuthenticateBasic(ctx context.Context, username, password string) (*model.Admin, error) {
	cred, ok := uc.creds.Lookup(ctx, username)
	if !ok || !security.CheckPassword(cred, password) {
		uc.logger.Warn("admin authentication failed", "username", username)
		return nil, model.ErrInvalidCredentials
	}
	return &model.Admin{Username: username, Method: model.AuthMethodBasic}, nil
}

func (uc *AdminUsecase) AuthenticateToken(ctx context.Context, tokenString string) (*model.Admin, error) {
	if uc.tokenSvc == nil {
		return nil, model.ErrTokensDisabled
	}
	claims, err := uc.tokenSvc.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidCredentials, err)
	}
	// the admin must still be configured
	if _, ok := uc.creds.Lookup(ctx, claims.Username); !ok {
		return nil, model.ErrInvalidCredentials
	}
	return &model.Admin{Username: claims.Username, Method: model.AuthMethodBearer}, nil
}

func (uc *AdminUsecase) IssueToken(ctx context.Context, admin *model.Admin) (*TokenResponse, error) {
	if uc.tokenSvc == nil {
		return nil, model.ErrTokensDisabled
	}
	token, err := uc.tokenSvc.GenerateToken(ctx, admin.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresIn: uc.ttl}, nil
}
