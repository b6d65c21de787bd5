package http

import (
	"errors"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/usecase"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
)

// TokenHandler exchanges admin basic credentials for a bearer token
type TokenHandler struct {
	usecase usecase.AdminUsecaseInterface
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(uc usecase.AdminUsecaseInterface) *TokenHandler {
	return &TokenHandler{usecase: uc}
}

// RegisterRoutes mounts POST /admin/token behind the admin gate
func (h *TokenHandler) RegisterRoutes(router fiber.Router, middleware *AuthMiddleware) {
	router.Post("/admin/token", middleware.RateLimiter(), middleware.RequireAdmin(), h.IssueToken)
}

// IssueToken answers with a signed admin token
func (h *TokenHandler) IssueToken(c *fiber.Ctx) error {
	admin, ok := GetAdmin(c)
	if !ok {
		return httpx.WriteError(c, apperrors.NewAuthorizationError("admin credentials required"))
	}
	resp, err := h.usecase.IssueToken(c.UserContext(), admin)
	if errors.Is(err, model.ErrTokensDisabled) {
		return httpx.WriteError(c, apperrors.NewNotFoundError("token endpoint").WithCause(err))
	}
	if err != nil {
		return httpx.WriteError(c, apperrors.NewInternalError("failed to issue token").WithCause(err))
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}
