package httpx

import (
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
)

// RequestContext copies the id set by the requestid middleware into the
// request's user context so loggers pick it up.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			c.SetUserContext(utils.WithRequestID(c.UserContext(), id))
		}
		return c.Next()
	}
}
