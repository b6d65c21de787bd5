package http

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/usecase"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/contextkeys"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/httpx"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const adminLocalsKey = "admin"

// MiddlewareConfig tunes the public middleware
type MiddlewareConfig struct {
	AllowOrigins string
	RateLimit    int
	RateWindow   time.Duration
}

// AuthMiddleware provides the admin gate and the request plumbing middleware
type AuthMiddleware struct {
	usecase usecase.AdminUsecaseInterface
	cfg     MiddlewareConfig
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(uc usecase.AdminUsecaseInterface, cfg MiddlewareConfig) *AuthMiddleware {
	if cfg.AllowOrigins == "" {
		cfg.AllowOrigins = "*"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 60
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &AuthMiddleware{usecase: uc, cfg: cfg}
}

// CORS middleware
func (m *AuthMiddleware) CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		MaxAge:       86400,
	})
}

// SecurityHeaders adds security headers
func (m *AuthMiddleware) SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		return c.Next()
	}
}

// RateLimiter throttles admin endpoints per client address
func (m *AuthMiddleware) RateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               m.cfg.RateLimit,
		Expiration:        m.cfg.RateWindow,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Get("X-Forwarded-For", c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "RATE_LIMITED",
				"message": "Rate limit exceeded. Please try again later.",
			})
		},
	})
}

// RequestID assigns X-Request-ID and copies it into the user context
func (m *AuthMiddleware) RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		ContextKey: string(contextkeys.RequestIDKey),
	})
}

// RequestContext moves the request id from locals into the user context
func (m *AuthMiddleware) RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals(string(contextkeys.RequestIDKey)).(string); ok && id != "" {
			c.SetUserContext(utils.WithRequestID(c.UserContext(), id))
		}
		return c.Next()
	}
}

// RequireAdmin accepts HTTP basic credentials from ADMIN_LOGINS or an admin
// bearer token. Anything else is answered with 403.
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		admin, err := m.authenticate(c)
		if err != nil {
			return httpx.WriteError(c, apperrors.NewAuthorizationError("admin credentials required").WithCause(err))
		}
		c.Locals(adminLocalsKey, admin)
		c.SetUserContext(utils.WithAdminUser(c.UserContext(), admin.Username))
		return c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*model.Admin, error) {
	header := c.Get(fiber.HeaderAuthorization)
	scheme, credentials, ok := strings.Cut(header, " ")
	if !ok {
		return nil, model.ErrNoCredentials
	}
	credentials = strings.TrimSpace(credentials)

	switch strings.ToLower(scheme) {
	case "basic":
		username, password, err := decodeBasic(credentials)
		if err != nil {
			return nil, err
		}
		return m.usecase.AuthenticateBasic(c.UserContext(), username, password)
	case "bearer":
		return m.usecase.AuthenticateToken(c.UserContext(), credentials)
	}
	return nil, model.ErrNoCredentials
}

func decodeBasic(encoded string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", errors.New("malformed basic credentials")
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", errors.New("malformed basic credentials")
	}
	return username, password, nil
}

// GetAdmin returns the admin authenticated by RequireAdmin
func GetAdmin(c *fiber.Ctx) (*model.Admin, bool) {
	admin, ok := c.Locals(adminLocalsKey).(*model.Admin)
	return admin, ok
}
