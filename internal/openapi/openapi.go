// Package openapi describes the HTTP API as an OpenAPI 3 document.
package openapi

import (
	"io"

	"github.com/uc-cdis/metadata-service-sub001/internal/shared/buildinfo"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"
)

type obj = map[string]interface{}

func ref(name string) obj {
	return obj{"$ref": "#/components/schemas/" + name}
}

func jsonBody(schema obj) obj {
	return obj{"content": obj{"application/json": obj{"schema": schema}}}
}

func response(desc string, schema obj) obj {
	r := obj{"description": desc}
	if schema != nil {
		r["content"] = obj{"application/json": obj{"schema": schema}}
	}
	return r
}

func query(name, typ, desc string) obj {
	return obj{"name": name, "in": "query", "required": false, "description": desc, "schema": obj{"type": typ}}
}

func pathParam(name, desc string) obj {
	return obj{"name": name, "in": "path", "required": true, "description": desc, "schema": obj{"type": "string"}}
}

var (
	errorResponse = response("Error", ref("Error"))
	anyObject     = obj{"type": "object", "additionalProperties": true}
	stringList    = obj{"type": "array", "items": obj{"type": "string"}}
	adminSecurity = []interface{}{obj{"basicAuth": []interface{}{}}, obj{"bearerAuth": []interface{}{}}}
)

// Document returns the OpenAPI document of the service
func Document() map[string]interface{} {
	guid := pathParam("guid", "record guid or alias; may contain /")
	name := pathParam("name", "commons name")
	paging := []interface{}{
		query("limit", "integer", "page size"),
		query("offset", "integer", "page start"),
	}

	paths := obj{
		"/_status": obj{"get": obj{
			"summary":   "Health check",
			"responses": obj{"200": response("Healthy", anyObject), "500": errorResponse},
		}},
		"/version": obj{"get": obj{
			"summary":   "Build information",
			"responses": obj{"200": response("Version", ref("Version"))},
		}},
		"/metadata": obj{
			"get": obj{
				"summary": "Search metadata",
				"parameters": append([]interface{}{
					query("data", "boolean", "return {guid: data} instead of guids"),
					query("filter", "string", "filter expression, e.g. (and,(a,:eq,1),(b,:like,\"x%\"))"),
				}, paging...),
				"responses": obj{"200": response("Matching records", anyObject), "400": errorResponse},
			},
			"post": obj{
				"summary":     "Create one record or a batch",
				"parameters":  []interface{}{query("overwrite", "boolean", "replace existing records")},
				"requestBody": jsonBody(obj{"oneOf": []interface{}{ref("CreateRequest"), obj{"type": "array", "items": ref("CreateRequest")}}}),
				"responses":   obj{"201": response("Created", anyObject), "400": errorResponse, "409": errorResponse},
			},
		},
		"/metadata/{guid}": obj{
			"parameters": []interface{}{guid},
			"get": obj{
				"summary":   "Get the data of a record",
				"responses": obj{"200": response("Record data", anyObject), "404": errorResponse},
			},
			"post": obj{
				"summary":     "Create a record",
				"parameters":  []interface{}{query("overwrite", "boolean", "replace an existing record")},
				"requestBody": jsonBody(anyObject),
				"responses":   obj{"201": response("Created", anyObject), "409": errorResponse},
			},
			"put": obj{
				"summary":     "Replace or merge the data of a record",
				"parameters":  []interface{}{query("merge", "boolean", "shallow-merge into existing data")},
				"requestBody": jsonBody(anyObject),
				"responses":   obj{"200": response("Updated", anyObject), "404": errorResponse},
			},
			"delete": obj{
				"summary":   "Delete a record and its aliases",
				"responses": obj{"200": response("Deleted data", anyObject), "404": errorResponse},
			},
		},
		"/metadata/{guid}/aliases": obj{
			"parameters": []interface{}{guid},
			"get":        obj{"summary": "List aliases", "responses": obj{"200": response("Aliases", ref("Aliases")), "404": errorResponse}},
			"post":       obj{"summary": "Add aliases", "requestBody": jsonBody(ref("Aliases")), "responses": obj{"201": response("Aliases", ref("Aliases")), "409": errorResponse}},
			"put":        obj{"summary": "Replace aliases", "requestBody": jsonBody(ref("Aliases")), "responses": obj{"200": response("Aliases", ref("Aliases")), "409": errorResponse}},
			"delete":     obj{"summary": "Remove all aliases", "responses": obj{"204": response("Removed", nil)}},
		},
		"/metadata/{guid}/aliases/{alias}": obj{
			"parameters": []interface{}{guid, pathParam("alias", "alias to remove")},
			"delete":     obj{"summary": "Remove one alias", "responses": obj{"204": response("Removed", nil), "404": errorResponse}},
		},
		"/metadata_index": obj{"get": obj{
			"summary":   "List indexed data paths",
			"security":  adminSecurity,
			"responses": obj{"200": response("Paths", stringList), "403": errorResponse},
		}},
		"/metadata_index/{path}": obj{
			"parameters": []interface{}{pathParam("path", "dotted data path")},
			"post":       obj{"summary": "Index a data path", "security": adminSecurity, "responses": obj{"201": response("Created", obj{"type": "string"}), "409": errorResponse}},
			"delete":     obj{"summary": "Drop a data path index", "security": adminSecurity, "responses": obj{"204": response("Dropped", nil), "404": errorResponse}},
		},
		"/admin/token": obj{"post": obj{
			"summary":   "Exchange admin basic credentials for a bearer token",
			"security":  []interface{}{obj{"basicAuth": []interface{}{}}},
			"responses": obj{"200": response("Token", anyObject), "403": errorResponse},
		}},
		"/aggregate/commons": obj{"get": obj{
			"summary":   "List cached commons",
			"responses": obj{"200": response("Commons", obj{"type": "object", "properties": obj{"commons": stringList}})},
		}},
		"/aggregate/metadata": obj{"get": obj{
			"summary":    "Page every commons",
			"parameters": append([]interface{}{query("flatten", "boolean", "return one list")}, paging...),
			"responses":  obj{"200": response("Records", anyObject), "400": errorResponse},
		}},
		"/aggregate/metadata/{name}": obj{"get": obj{
			"summary":    "Records of one commons; paged only when limit or offset is given",
			"parameters": append([]interface{}{name}, paging...),
			"responses":  obj{"200": response("Records", obj{"type": "array", "items": anyObject}), "404": errorResponse},
		}},
		"/aggregate/metadata/{name}/{what}": obj{"get": obj{
			"summary": "Sidecar of a commons",
			"parameters": []interface{}{name, obj{
				"name": "what", "in": "path", "required": true,
				"schema": obj{"type": "string", "enum": []interface{}{"tags", "info", "field_to_columns", "aggregations"}},
			}},
			"responses": obj{"200": response("Sidecar", anyObject), "404": errorResponse},
		}},
		"/aggregate/metadata/{name}/status": obj{"get": obj{
			"summary":    "Last refresh outcome",
			"parameters": []interface{}{name},
			"responses":  obj{"200": response("Status", ref("Status")), "404": errorResponse},
		}},
		"/aggregate/metadata/{name}/guid/{guid}": obj{"get": obj{
			"summary":    "One cached record",
			"parameters": []interface{}{name, pathParam("guid", "record guid; may contain /")},
			"responses":  obj{"200": response("Record", anyObject), "404": errorResponse},
		}},
		"/aggregate/search": obj{"post": obj{
			"summary":     "Nested-path search over the cache",
			"requestBody": jsonBody(ref("SearchRequest")),
			"responses":   obj{"200": response("Hits", ref("SearchResult")), "400": errorResponse, "404": errorResponse},
		}},
		"/aggregate/ws": obj{"get": obj{
			"summary":    "Websocket stream of refresh events",
			"parameters": []interface{}{query("commons", "string", "only events of this commons")},
			"responses":  obj{"101": response("Switching protocols", nil), "426": errorResponse},
		}},
		"/metrics": obj{"get": obj{
			"summary":   "Prometheus metrics",
			"responses": obj{"200": obj{"description": "Text exposition format"}},
		}},
	}

	schemas := obj{
		"Error": obj{"type": "object", "properties": obj{
			"error":   obj{"type": "string"},
			"message": obj{"type": "string"},
			"details": anyObject,
		}},
		"Version": obj{"type": "object", "properties": obj{
			"version":    obj{"type": "string"},
			"commit":     obj{"type": "string"},
			"build_date": obj{"type": "string"},
		}},
		"CreateRequest": obj{"type": "object", "required": []interface{}{"guid", "data"}, "properties": obj{
			"guid":   obj{"type": "string"},
			"data":   anyObject,
			"authz":  anyObject,
			"baseid": obj{"type": "string"},
		}},
		"Aliases": obj{"type": "object", "properties": obj{"aliases": stringList}},
		"Status": obj{"type": "object", "properties": obj{
			"last_update": obj{"type": "string", "format": "date-time"},
			"error":       obj{"type": "string"},
			"count":       obj{"type": "integer"},
		}},
		"SearchRequest": obj{"type": "object", "properties": obj{
			"query":   ref("Query"),
			"commons": obj{"type": "string"},
			"limit":   obj{"type": "integer"},
			"offset":  obj{"type": "integer"},
			"counts":  stringList,
		}},
		"Query": obj{"type": "object", "properties": obj{
			"op":    obj{"type": "string", "enum": []interface{}{"AND", "OR", "NOT"}},
			"terms": obj{"type": "array", "items": ref("Query")},
			"term": obj{"type": "object", "properties": obj{
				"path":   obj{"type": "string"},
				"fields": stringList,
				"value":  obj{},
				"exists": obj{"type": "boolean"},
			}},
		}},
		"SearchResult": obj{"type": "object", "properties": obj{
			"total":   obj{"type": "integer"},
			"results": obj{"type": "array", "items": anyObject},
			"counts":  obj{"type": "object", "additionalProperties": obj{"type": "integer"}},
		}},
	}

	return obj{
		"openapi": "3.0.3",
		"info": obj{
			"title":       "Metadata Service",
			"description": "GUID-keyed JSON metadata with aliases, filtered search and an aggregated cache of peer services",
			"version":     buildinfo.Get().Version,
		},
		"paths": paths,
		"components": obj{
			"schemas": schemas,
			"securitySchemes": obj{
				"basicAuth":  obj{"type": "http", "scheme": "basic"},
				"bearerAuth": obj{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
	}
}

// WriteYAML encodes the document as YAML
func WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Document()); err != nil {
		return err
	}
	return enc.Close()
}

// RegisterRoutes mounts GET /openapi.json
func RegisterRoutes(router fiber.Router) {
	doc := Document()
	router.Get("/openapi.json", func(c *fiber.Ctx) error {
		return c.JSON(doc)
	})
}
