package auth

import (
	"fmt"

	authhttp "github.com/uc-cdis/metadata-service-sub001/internal/auth/adapter/http"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/adapter/persistence/memory"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/adapter/security"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/repository"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/usecase"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// AuthModule represents the admin authentication module
type AuthModule struct {
	usecase    usecase.AdminUsecaseInterface
	middleware *authhttp.AuthMiddleware
	tokens     *authhttp.TokenHandler
	config     *config.Config
}

// NewAuthModule creates a new authentication module instance
func NewAuthModule(cfg *config.Config, log logger.Logger) (*AuthModule, error) {
	logins, err := cfg.Logins()
	if err != nil {
		return nil, err
	}
	creds := memory.NewCredentialStore(logins)
	if creds.Len() == 0 {
		log.Warn("ADMIN_LOGINS is empty; admin endpoints will reject every request")
	}

	var tokenSvc repository.TokenService
	if cfg.TokensEnabled() {
		svc, err := security.NewJWTokenService(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create token service: %w", err)
		}
		tokenSvc = svc
	}

	uc := usecase.NewAdminUsecase(creds, tokenSvc, int(cfg.AccessTokenTTL.Seconds()), log)
	mw := authhttp.NewAuthMiddleware(uc, authhttp.MiddlewareConfig{
		AllowOrigins: cfg.AllowOrigins,
		RateLimit:    cfg.AdminRateLimit,
		RateWindow:   cfg.AdminRateWindow,
	})

	return &AuthModule{
		usecase:    uc,
		middleware: mw,
		tokens:     authhttp.NewTokenHandler(uc),
		config:     cfg,
	}, nil
}

// RegisterRoutes registers the token endpoint when bearer tokens are enabled
func (am *AuthModule) RegisterRoutes(router fiber.Router) {
	if am.config.TokensEnabled() {
		am.tokens.RegisterRoutes(router, am.middleware)
	}
}

// GetUsecase returns the admin usecase for external access
func (am *AuthModule) GetUsecase() usecase.AdminUsecaseInterface {
	return am.usecase
}

// GetMiddleware returns the auth middleware
func (am *AuthModule) GetMiddleware() *authhttp.AuthMiddleware {
	return am.middleware
}

// RequireAdmin is the admin gate for routes owned by other modules
func (am *AuthModule) RequireAdmin() fiber.Handler {
	return am.middleware.RequireAdmin()
}
