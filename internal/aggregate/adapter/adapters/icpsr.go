package adapters

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/adapter/client"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"
)

// ICPSRName is the registry name of the OAI-PMH Dublin Core adapter
const ICPSRName = "icpsr"

var identifierPrefixes = []string{"https://doi.org/", "http://doi.org/", "dc:"}

// ICPSRAdapter reads Dublin Core records over OAI-PMH GetRecord
type ICPSRAdapter struct {
	fetcher client.Fetcher
	log     logger.Logger
}

// NewICPSRAdapter creates the adapter
func NewICPSRAdapter(fetcher client.Fetcher, log logger.Logger) *ICPSRAdapter {
	return &ICPSRAdapter{fetcher: fetcher, log: log.WithComponent("icpsr-adapter")}
}

// Fetch issues one GetRecord per filters.study_ids entry. Records the
// server reports as missing are skipped.
func (a *ICPSRAdapter) Fetch(ctx context.Context, req FetchRequest) (interface{}, error) {
	ids := studyIDs(req.Filters["study_ids"])
	if len(ids) == 0 {
		return nil, errors.New("icpsr adapter requires filters.study_ids")
	}
	records := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q := url.Values{}
		q.Set("verb", "GetRecord")
		q.Set("metadataPrefix", "oai_dc")
		q.Set("identifier", id)
		body, err := a.fetcher.Get(ctx, req.URL+"?"+q.Encode(), req.Limiter)
		if err != nil {
			return nil, err
		}
		rec, err := ParseDublinCore(body)
		if err != nil {
			a.log.WithContext(ctx).Warn("Skipping study", "study_id", id, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Normalize maps each Dublin Core record into a discovery envelope keyed
// by its canonical identifier.
func (a *ICPSRAdapter) Normalize(raw interface{}, m Mappings) (map[string]model.Record, error) {
	items, ok := raw.([]map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("icpsr adapter: unexpected payload %T", raw)
	}
	out := make(map[string]model.Record, len(items))
	for _, item := range items {
		id := CanonicalIdentifier(item["identifier"])
		if id == "" {
			continue
		}
		item["identifier"] = id
		data := MapFields(item, m)
		if _, ok := data["tags"]; !ok {
			data["tags"] = []interface{}{}
		}
		if _, ok := data["authz"]; !ok {
			data["authz"] = ""
		}
		guid := id
		if u, ok := data["_unique_id"].(string); ok && u != "" {
			guid = u
		}
		applyPerItem(guid, data, m)
		out[guid] = Envelope(data, m)
	}
	return out, nil
}

// ParseDublinCore extracts the dc elements of an OAI-PMH response into a
// map. Repeated elements become lists.
func ParseDublinCore(body []byte) (map[string]interface{}, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	rec := map[string]interface{}{}
	var (
		depth   int
		dcDepth = -1
		field   string
		text    strings.Builder
		found   bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid OAI-PMH response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case dcDepth < 0 && t.Name.Local == "error":
				code := ""
				for _, attr := range t.Attr {
					if attr.Name.Local == "code" {
						code = attr.Value
					}
				}
				return nil, fmt.Errorf("OAI-PMH error %s", code)
			case dcDepth < 0 && t.Name.Local == "dc":
				dcDepth = depth
				found = true
			case dcDepth >= 0 && depth == dcDepth+1:
				field = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if field != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if dcDepth >= 0 && depth == dcDepth+1 && field != "" {
				addValue(rec, field, strings.TrimSpace(text.String()))
				field = ""
			}
			if depth == dcDepth {
				dcDepth = -1
			}
			depth--
		}
	}
	if !found {
		return nil, errors.New("OAI-PMH response has no Dublin Core record")
	}
	return rec, nil
}

func addValue(rec map[string]interface{}, key, value string) {
	switch cur := rec[key].(type) {
	case nil:
		rec[key] = value
	case []interface{}:
		rec[key] = append(cur, value)
	default:
		rec[key] = []interface{}{cur, value}
	}
}

// CanonicalIdentifier strips DOI resolver and dc: prefixes from the first
// identifier value.
func CanonicalIdentifier(v interface{}) string {
	var id string
	switch t := v.(type) {
	case string:
		id = t
	case []interface{}:
		if len(t) > 0 {
			id, _ = t[0].(string)
		}
	}
	for _, p := range identifierPrefixes {
		id = strings.ReplaceAll(id, p, "")
	}
	return strings.TrimSpace(id)
}

func studyIDs(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			ids = append(ids, t)
		case float64:
			ids = append(ids, strconv.FormatFloat(t, 'f', -1, 64))
		}
	}
	return ids
}
