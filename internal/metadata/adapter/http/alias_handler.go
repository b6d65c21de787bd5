package http

import (
	"encoding/json"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/httpx"

	"github.com/gofiber/fiber/v2"
)

// AliasesBody is the request and response shape of the alias endpoints
type AliasesBody struct {
	Aliases []string `json:"aliases"`
}

func aliasesBody(c *fiber.Ctx) ([]string, error) {
	var body AliasesBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return nil, apperrors.NewValidationError(`request body must be {"aliases": [...]}`).WithCause(err)
	}
	return body.Aliases, nil
}

// ListAliases handles GET /metadata/{guid}/aliases
func (h *MetadataHandler) ListAliases(c *fiber.Ctx, guid string) error {
	aliases, err := h.uc.ListAliases(c.UserContext(), guid)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(AliasesBody{Aliases: aliases})
}

// CreateAliases handles POST /metadata/{guid}/aliases
func (h *MetadataHandler) CreateAliases(c *fiber.Ctx, guid string) error {
	aliases, err := aliasesBody(c)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	created, err := h.uc.CreateAliases(c.UserContext(), guid, aliases)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(AliasesBody{Aliases: created})
}

// ReplaceAliases handles PUT /metadata/{guid}/aliases
func (h *MetadataHandler) ReplaceAliases(c *fiber.Ctx, guid string) error {
	aliases, err := aliasesBody(c)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	current, err := h.uc.ReplaceAliases(c.UserContext(), guid, aliases)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(AliasesBody{Aliases: current})
}

// DeleteAliases handles DELETE /metadata/{guid}/aliases
func (h *MetadataHandler) DeleteAliases(c *fiber.Ctx, guid string) error {
	if err := h.uc.DeleteAliases(c.UserContext(), guid); err != nil {
		return httpx.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteAlias handles DELETE /metadata/{guid}/aliases/{alias}
func (h *MetadataHandler) DeleteAlias(c *fiber.Ctx, guid, alias string) error {
	if err := h.uc.DeleteAlias(c.UserContext(), guid, alias); err != nil {
		return httpx.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
