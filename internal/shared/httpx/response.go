// Package httpx holds the fiber response helpers shared by the HTTP adapters.
package httpx

import (
	"errors"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// WriteError renders err as {"error", "message", "details"} with the status
// mapped from its type. Internal errors hide their cause from the client.
func WriteError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error":   "HTTP_ERROR",
			"message": fe.Message,
		})
	}

	status := apperrors.HTTPStatus(err)
	body := fiber.Map{"error": string(apperrors.ErrorTypeInternal), "message": "internal server error"}
	if appErr, ok := apperrors.AsAppError(err); ok {
		body["error"] = string(appErr.Type)
		if status < fiber.StatusInternalServerError {
			body["message"] = appErr.Message
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		if appErr.Code != "" {
			body["code"] = appErr.Code
		}
	}
	if status >= fiber.StatusInternalServerError {
		logger.Default().WithContext(c.UserContext()).Error("request failed", "path", c.Path(), "error", err.Error())
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler is installed as fiber.Config.ErrorHandler
func ErrorHandler(c *fiber.Ctx, err error) error {
	return WriteError(c, err)
}
