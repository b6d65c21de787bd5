package adapters

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
)

const pathPrefix = "path:"

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	emailPattern   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// FieldFilter transforms a mapped string value
type FieldFilter func(string) string

var fieldFilters = map[string]FieldFilter{
	"strip_html": func(s string) string {
		return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
	},
	"strip_email": func(s string) string {
		return strings.TrimSpace(emailPattern.ReplaceAllString(s, ""))
	},
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// ApplyFilter runs the named filter over strings and string lists. Unknown
// filter names leave the value unchanged.
func ApplyFilter(name string, value interface{}) interface{} {
	f, ok := fieldFilters[name]
	if !ok {
		return value
	}
	switch v := value.(type) {
	case string:
		return f(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = ApplyFilter(name, item)
		}
		return out
	default:
		return value
	}
}

// LookupPath resolves a dotted path in item. Numeric segments index arrays.
func LookupPath(item interface{}, path string) (interface{}, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return item, true
	}
	cur := item
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]interface{}:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// MapFields applies field mappings, global filters and schema coercion to a
// single source item.
func MapFields(item map[string]interface{}, m Mappings) model.Record {
	out := model.Record{}
	if m.KeepOriginalFields {
		for k, v := range item {
			out[k] = v
		}
	}

	for key, spec := range m.FieldMappings {
		var value interface{}
		switch s := spec.(type) {
		case map[string]interface{}:
			value = mapComplex(item, s)
		case string:
			if strings.HasPrefix(s, pathPrefix) {
				v, ok := LookupPath(item, strings.TrimPrefix(s, pathPrefix))
				if ok {
					value = v
				} else if field, has := m.Schema[key]; has {
					value = field.Default
				}
			} else {
				value = s
			}
		default:
			value = spec
		}
		for _, name := range m.GlobalFieldFilters {
			value = ApplyFilter(name, value)
		}
		out[key] = value
	}

	for key, field := range m.Schema {
		if v, ok := out[key]; ok {
			out[key] = Coerce(v, field)
		} else if field.Default != nil {
			out[key] = field.Default
		}
	}
	return out
}

func mapComplex(item map[string]interface{}, spec map[string]interface{}) interface{} {
	path, _ := spec["path"].(string)
	value, ok := LookupPath(item, strings.TrimPrefix(path, pathPrefix))
	if !ok || value == nil {
		if d, has := spec["default_value"]; has {
			value = d
		} else {
			value = spec["default"]
		}
	}
	var names []string
	if f, ok := spec["filter"].(string); ok {
		names = append(names, f)
	}
	if list, ok := spec["filters"].([]interface{}); ok {
		for _, f := range list {
			if s, ok := f.(string); ok {
				names = append(names, s)
			}
		}
	}
	for _, name := range names {
		value = ApplyFilter(name, value)
	}
	return value
}

// Coerce converts value to the schema type, falling back to the default
// when conversion is impossible.
func Coerce(value interface{}, field config.SchemaField) interface{} {
	if value == nil {
		return field.Default
	}
	switch field.Type {
	case "string":
		switch v := value.(type) {
		case string:
			return v
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, ", ")
		default:
			return fmt.Sprint(v)
		}
	case "integer":
		switch v := value.(type) {
		case float64:
			return int64(v)
		case int:
			return int64(v)
		case int64:
			return v
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return int64(f)
			}
		}
		return field.Default
	case "number":
		switch v := value.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
		return field.Default
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		}
		return field.Default
	case "array":
		if list, ok := value.([]interface{}); ok {
			return list
		}
		return []interface{}{value}
	case "object":
		if obj, ok := value.(map[string]interface{}); ok {
			return obj
		}
		return field.Default
	default:
		return value
	}
}

// Envelope wraps normalized study data the way peer services store it
func Envelope(data model.Record, m Mappings) model.Record {
	guidType := m.GUIDType
	if guidType == "" {
		guidType = model.DiscoveryGUIDType
	}
	field := m.StudyDataField
	if field == "" {
		field = model.DefaultStudyDataField
	}
	return model.Record{
		"_guid_type": guidType,
		field:        data,
	}
}

// applyPerItem merges configured per-item overrides into the study data
func applyPerItem(guid string, data model.Record, m Mappings) {
	for k, v := range m.PerItemValues[guid] {
		data[k] = v
	}
}
