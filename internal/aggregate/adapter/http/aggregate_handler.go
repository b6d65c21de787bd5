package http

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/usecase"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/httpx"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

// DefaultLimit is the page size of aggregate listings
const DefaultLimit = 20

// AggregateHandler serves the read-only /aggregate endpoints
type AggregateHandler struct {
	reader usecase.ReaderInterface
	log    logger.Logger
}

// NewAggregateHandler creates the handler
func NewAggregateHandler(reader usecase.ReaderInterface, log logger.Logger) *AggregateHandler {
	return &AggregateHandler{reader: reader, log: log.WithComponent("aggregate-http")}
}

// RegisterRoutes mounts the aggregate API on router
func (h *AggregateHandler) RegisterRoutes(router fiber.Router) {
	agg := router.Group("/aggregate")
	agg.Get("/commons", h.GetCommons)
	agg.Get("/metadata", h.GetAllMetadata)
	agg.Get("/metadata/:name", h.GetCommonsMetadata)
	agg.Get("/metadata/:name/status", h.GetStatus)
	agg.Get("/metadata/:name/guid/*", h.GetCommonsMetadataGUID)
	agg.Get("/metadata/:name/:what", h.GetCommonsAttribute)
	agg.Post("/search", h.Search)
}

// GetCommons lists the cached commons names
func (h *AggregateHandler) GetCommons(c *fiber.Ctx) error {
	names, err := h.reader.GetCommons(c.UserContext())
	if err != nil {
		return httpx.WriteError(c, err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(fiber.Map{"commons": names})
}

// GetAllMetadata returns a page of every commons, keyed by name, or one
// flat list with flatten=true
func (h *AggregateHandler) GetAllMetadata(c *fiber.Ctx) error {
	limit, offset, err := paging(c)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	flatten, err := strconv.ParseBool(c.Query("flatten", "false"))
	if err != nil {
		return httpx.WriteError(c, apperrors.NewValidationError("flatten must be a boolean"))
	}
	if flatten {
		flat, err := h.reader.GetFlatMetadata(c.UserContext(), limit, offset)
		if err != nil {
			return httpx.WriteError(c, err)
		}
		return c.JSON(flat)
	}
	all, err := h.reader.GetAllMetadata(c.UserContext(), limit, offset)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(all)
}

// GetCommonsMetadata returns every record of one commons, or a page of them
// when limit or offset is given
func (h *AggregateHandler) GetCommonsMetadata(c *fiber.Ctx) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return httpx.WriteError(c, err)
	}
	if c.Query("limit") == "" && c.Query("offset") == "" {
		records, err := h.reader.GetAllNamedCommonsMetadata(c.UserContext(), name)
		if err != nil {
			return httpx.WriteError(c, err)
		}
		return c.JSON(records)
	}
	limit, offset, err := paging(c)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	records, err := h.reader.GetCommonsMetadata(c.UserContext(), name, limit, offset)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(records)
}

// GetCommonsAttribute returns the tags, info, field_to_columns or
// aggregations sidecar of a commons
func (h *AggregateHandler) GetCommonsAttribute(c *fiber.Ctx) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return httpx.WriteError(c, err)
	}
	what := fiberutils.CopyString(c.Params("what"))
	if !model.IsAttribute(what) {
		return httpx.WriteError(c, apperrors.NewNotFoundError("attribute "+what))
	}
	v, err := h.reader.GetCommonsAttribute(c.UserContext(), name, what)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(v)
}

// GetCommonsMetadataGUID returns one record. The guid may contain "/".
func (h *AggregateHandler) GetCommonsMetadataGUID(c *fiber.Ctx) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return httpx.WriteError(c, err)
	}
	guid, err := url.PathUnescape(fiberutils.CopyString(c.Params("*")))
	if err != nil || guid == "" {
		return httpx.WriteError(c, apperrors.NewValidationError("invalid guid"))
	}
	rec, err := h.reader.GetCommonsMetadataGUID(c.UserContext(), name, guid)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(rec)
}

// GetStatus returns the last refresh outcome of a commons
func (h *AggregateHandler) GetStatus(c *fiber.Ctx) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return httpx.WriteError(c, err)
	}
	status, err := h.reader.GetStatus(c.UserContext(), name)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(status)
}

// Search runs a nested-path query over the cache
func (h *AggregateHandler) Search(c *fiber.Ctx) error {
	var req usecase.SearchRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return httpx.WriteError(c, apperrors.NewValidationError("invalid search request").WithCause(err))
		}
	}
	res, err := h.reader.Search(c.UserContext(), req)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(res)
}

func paging(c *fiber.Ctx) (int, int, error) {
	limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(DefaultLimit)))
	if err != nil || limit < 0 {
		return 0, 0, apperrors.NewValidationError("limit must be a non-negative integer")
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, apperrors.NewValidationError("offset must be a non-negative integer")
	}
	return limit, offset, nil
}

func pathParam(c *fiber.Ctx, name string) (string, error) {
	v, err := url.PathUnescape(fiberutils.CopyString(c.Params(name)))
	if err != nil {
		return "", apperrors.NewValidationError("invalid " + name)
	}
	return v, nil
}
