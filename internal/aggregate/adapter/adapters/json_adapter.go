package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/client"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
)

// JSONName is the registry name of the generic JSON list adapter
const JSONName = "json"

const defaultIDField = "id"

// JSONAdapter reads a JSON document holding a list of study objects.
// filters.results_path locates the list and filters.id_field names the
// identifier of each item.
type JSONAdapter struct {
	fetcher client.Fetcher
}

type jsonPayload struct {
	items   []map[string]interface{}
	idField string
}

// NewJSONAdapter creates the adapter
func NewJSONAdapter(fetcher client.Fetcher) *JSONAdapter {
	return &JSONAdapter{fetcher: fetcher}
}

// Fetch downloads and decodes the document at req.URL
func (a *JSONAdapter) Fetch(ctx context.Context, req FetchRequest) (interface{}, error) {
	body, err := a.fetcher.Get(ctx, req.URL, req.Limiter)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("json adapter: invalid document: %w", err)
	}

	path, _ := req.Filters["results_path"].(string)
	node, ok := LookupPath(doc, path)
	if !ok {
		return nil, fmt.Errorf("json adapter: results_path %q not found", path)
	}
	list, ok := node.([]interface{})
	if !ok {
		return nil, fmt.Errorf("json adapter: results_path %q is not a list", path)
	}

	payload := jsonPayload{idField: defaultIDField}
	if f, ok := req.Filters["id_field"].(string); ok && f != "" {
		payload.idField = f
	}
	for _, item := range list {
		if obj, ok := item.(map[string]interface{}); ok {
			payload.items = append(payload.items, obj)
		}
	}
	return payload, nil
}

// Normalize maps every item that carries an identifier
func (a *JSONAdapter) Normalize(raw interface{}, m Mappings) (map[string]model.Record, error) {
	payload, ok := raw.(jsonPayload)
	if !ok {
		return nil, fmt.Errorf("json adapter: unexpected payload %T", raw)
	}
	out := make(map[string]model.Record, len(payload.items))
	for _, item := range payload.items {
		v, ok := LookupPath(item, payload.idField)
		if !ok || v == nil {
			continue
		}
		guid := fmt.Sprint(v)
		if f, isFloat := v.(float64); isFloat {
			guid = strconv.FormatFloat(f, 'f', -1, 64)
		}
		data := MapFields(item, m)
		applyPerItem(guid, data, m)
		out[guid] = Envelope(data, m)
	}
	return out, nil
}
