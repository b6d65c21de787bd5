package http

import (
	"context"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/shared/buildinfo"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything with a health check
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves /_status and /version
type SystemHandler struct {
	store     Pinger
	aggregate Pinger
	log       logger.Logger
}

// NewSystemHandler creates the handler. aggregate may be nil when the
// aggregate layer is disabled.
func NewSystemHandler(store Pinger, aggregate Pinger, log logger.Logger) *SystemHandler {
	return &SystemHandler{store: store, aggregate: aggregate, log: log.WithComponent("system-http")}
}

// RegisterRoutes mounts the system endpoints on router
func (h *SystemHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/_status", h.Status)
	router.Get("/version", h.Version)
}

// Status reports store health. An unreachable aggregate cache degrades the
// response body but not the status code.
func (h *SystemHandler) Status(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if err := h.store.Ping(ctx); err != nil {
		h.log.WithContext(ctx).Error("Store health check failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "STORE_ERROR",
			"message": "metadata store unavailable",
		})
	}
	if h.aggregate != nil {
		if err := h.aggregate.Ping(ctx); err != nil {
			h.log.WithContext(ctx).Warn("Aggregate cache health check failed", "error", err)
			return c.JSON(fiber.Map{"error": "aggregate datastore offline"})
		}
	}
	return c.JSON(fiber.Map{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Version returns the build information
func (h *SystemHandler) Version(c *fiber.Ctx) error {
	return c.JSON(buildinfo.Get())
}
