package http

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/usecase"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/httpx"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

// Query parameters with a fixed meaning on GET /metadata; every other
// parameter is a legacy key=value predicate.
var reservedListParams = map[string]bool{
	"data":   true,
	"limit":  true,
	"offset": true,
	"filter": true,
}

// MetadataHandler serves the /metadata and /metadata_index endpoints
type MetadataHandler struct {
	uc           usecase.MetadataUsecaseInterface
	log          logger.Logger
	requireAdmin fiber.Handler
}

// NewMetadataHandler creates the handler. requireAdmin gates /metadata_index.
func NewMetadataHandler(uc usecase.MetadataUsecaseInterface, log logger.Logger, requireAdmin fiber.Handler) *MetadataHandler {
	return &MetadataHandler{uc: uc, log: log.WithComponent("metadata-http"), requireAdmin: requireAdmin}
}

// RegisterRoutes mounts the metadata API on router
func (h *MetadataHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/metadata", h.ListRecords)
	router.Post("/metadata", h.CreateRecords)

	// GUIDs may contain "/", so the remainder of the path is routed by hand
	router.Get("/metadata/*", h.dispatch(h.GetRecord, h.ListAliases, nil))
	router.Post("/metadata/*", h.dispatch(h.CreateRecord, h.CreateAliases, nil))
	router.Put("/metadata/*", h.dispatch(h.UpdateRecord, h.ReplaceAliases, nil))
	router.Delete("/metadata/*", h.dispatch(h.DeleteRecord, h.DeleteAliases, h.DeleteAlias))

	index := router.Group("/metadata_index", h.requireAdmin)
	index.Get("", h.ListIndexPaths)
	index.Post("/:path", h.CreateIndexPath)
	index.Delete("/:path", h.DeleteIndexPath)
}

type recordHandler func(c *fiber.Ctx, guid string) error
type aliasHandler func(c *fiber.Ctx, guid, alias string) error

// dispatch splits /metadata/<rest> into a record route, the alias collection
// route (<guid>/aliases) or the single alias route (<guid>/aliases/<alias>).
func (h *MetadataHandler) dispatch(onRecord recordHandler, onAliases recordHandler, onAlias aliasHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rest, err := url.PathUnescape(fiberutils.CopyString(c.Params("*")))
		if err != nil {
			return httpx.WriteError(c, apperrors.NewValidationError("invalid path escape").WithCause(err))
		}
		guid, alias, isAliasRoute := splitAliasPath(rest)
		switch {
		case !isAliasRoute:
			if rest == "" {
				return httpx.WriteError(c, apperrors.NewValidationError("guid is required"))
			}
			return onRecord(c, rest)
		case alias == "" && onAliases != nil:
			return onAliases(c, guid)
		case alias != "" && onAlias != nil:
			return onAlias(c, guid, alias)
		}
		return httpx.WriteError(c, fiber.ErrMethodNotAllowed)
	}
}

func splitAliasPath(rest string) (guid, alias string, ok bool) {
	const suffix = "/aliases"
	if strings.HasSuffix(rest, suffix) && len(rest) > len(suffix) {
		return strings.TrimSuffix(rest, suffix), "", true
	}
	if i := strings.LastIndex(rest, suffix+"/"); i > 0 {
		alias = rest[i+len(suffix)+1:]
		if alias != "" && !strings.Contains(alias, "/") {
			return rest[:i], alias, true
		}
	}
	return "", "", false
}

// ListRecords handles GET /metadata
func (h *MetadataHandler) ListRecords(c *fiber.Ctx) error {
	withData, err := boolQuery(c, "data", false)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	limit, err := intQuery(c, "limit", model.DefaultLimit)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		return httpx.WriteError(c, err)
	}

	req := usecase.ListRequest{
		Filter:    c.Query("filter"),
		KeyValues: legacyParams(c),
		Limit:     limit,
		Offset:    offset,
	}
	records, err := h.uc.ListRecords(c.UserContext(), req)
	if err != nil {
		return httpx.WriteError(c, err)
	}

	if withData {
		out := make(map[string]interface{}, len(records))
		for _, r := range records {
			out[r.GUID] = r.Data
		}
		return c.JSON(out)
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.GUID)
	}
	return c.JSON(out)
}

// CreateRecords handles POST /metadata with a single record or an array
func (h *MetadataHandler) CreateRecords(c *fiber.Ctx) error {
	overwrite, err := boolQuery(c, "overwrite", false)
	if err != nil {
		return httpx.WriteError(c, err)
	}

	body := bytes.TrimSpace(c.Body())
	batch := len(body) > 0 && body[0] == '['
	var records []usecase.CreateRecordRequest
	if batch {
		err = json.Unmarshal(body, &records)
	} else {
		var single usecase.CreateRecordRequest
		err = json.Unmarshal(body, &single)
		records = []usecase.CreateRecordRequest{single}
	}
	if err != nil {
		return httpx.WriteError(c, apperrors.NewValidationError("request body must be a record or an array of records").WithCause(err))
	}

	created, err := h.uc.CreateRecords(c.UserContext(), usecase.CreateBatchRequest{Records: records, Overwrite: overwrite})
	if err != nil {
		return httpx.WriteError(c, err)
	}

	c.Status(fiber.StatusCreated)
	if batch {
		return c.JSON(created)
	}
	return c.JSON(created[0])
}

// GetRecord handles GET /metadata/{guid_or_alias}
func (h *MetadataHandler) GetRecord(c *fiber.Ctx, key string) error {
	rec, err := h.uc.GetRecord(c.UserContext(), key)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(rec.Data)
}

// CreateRecord handles POST /metadata/{guid}; the body is the record data
func (h *MetadataHandler) CreateRecord(c *fiber.Ctx, guid string) error {
	overwrite, err := boolQuery(c, "overwrite", false)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	data, err := objectBody(c)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	rec, err := h.uc.CreateRecord(c.UserContext(), guid, data, overwrite)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec.Data)
}

// UpdateRecord handles PUT /metadata/{guid}
func (h *MetadataHandler) UpdateRecord(c *fiber.Ctx, guid string) error {
	merge, err := boolQuery(c, "merge", false)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	data, err := objectBody(c)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	rec, err := h.uc.UpdateRecord(c.UserContext(), usecase.UpdateRequest{GUID: guid, Data: data, Merge: merge})
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(rec.Data)
}

// DeleteRecord handles DELETE /metadata/{guid}
func (h *MetadataHandler) DeleteRecord(c *fiber.Ctx, guid string) error {
	rec, err := h.uc.DeleteRecord(c.UserContext(), guid)
	if err != nil {
		return httpx.WriteError(c, err)
	}
	return c.JSON(rec.Data)
}

// legacyParams collects every non-reserved query parameter, keeping repeats
func legacyParams(c *fiber.Ctx) map[string][]string {
	params := make(map[string][]string)
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		if reservedListParams[k] {
			return
		}
		params[k] = append(params[k], string(value))
	})
	return params
}

func boolQuery(c *fiber.Ctx, name string, def bool) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.NewValidationError(name + " must be a boolean").WithDetail("value", raw)
	}
	return v, nil
}

func intQuery(c *fiber.Ctx, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(name + " must be an integer").WithDetail("value", raw)
	}
	return v, nil
}

// objectBody decodes a JSON object body; an empty body is an empty object
func objectBody(c *fiber.Ctx) (map[string]interface{}, error) {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return map[string]interface{}{}, nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		return nil, apperrors.NewValidationError("request body must be a JSON object")
	}
	return data, nil
}
