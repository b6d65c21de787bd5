package http

import (
	"net/url"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

func indexPathParam(c *fiber.Ctx) (string, error) {
	path, err := url.PathUnescape(fiberutils.CopyString(c.Params("path")))
	if err != nil {
		return "", apperrors.NewValidationError("invalid path escape").WithCause(err)
	}
	return path, nil
}

// ListIndexPaths handles GET /metadata_index
func (h *MetadataHandler) ListIndexPaths(c *fiber.Ctx) error {
	paths, err := h.uc.ListIndexPaths(c.UserContext())
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(paths)
}

// CreateIndexPath handles POST /metadata_index/{path}
func (h *MetadataHandler) CreateIndexPath(c *fiber.Ctx) error {
	path, err := indexPathParam(c)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	if err := h.uc.CreateIndexPath(c.UserContext(), path); err != nil {
		return httpx.WriteError(c, err)
	}
	h.log.WithContext(c.UserContext()).Info("Index path created", "path", path)
	return c.Status(fiber.StatusCreated).JSON(path)
}

// DeleteIndexPath handles DELETE /metadata_index/{path}
func (h *MetadataHandler) DeleteIndexPath(c *fiber.Ctx) error {
	path, err := indexPathParam(c)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	if err := h.uc.DeleteIndexPath(c.UserContext(), path); err != nil {
		return httpx.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
