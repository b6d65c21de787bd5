package model

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// SplitPath turns a dotted key into path segments. The empty key addresses the
// value itself.
func SplitPath(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, ".")
}

// Lookup walks a decoded JSON value along path. Missing keys and non-object
// intermediates report false.
func Lookup(value interface{}, path []string) (interface{}, bool) {
	current := value
	for _, segment := range path {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, exists := obj[segment]
		if !exists {
			return nil, false
		}
		current = next
	}
	return current, true
}

// ShallowMerge overlays patch's top-level keys onto base and returns a new object
func ShallowMerge(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Normalize round-trips a value through encoding/json so numbers become
// float64 and nested maps become map[string]interface{}.
func Normalize(value interface{}) (interface{}, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeObject is Normalize for JSON objects
func NormalizeObject(obj map[string]interface{}) (map[string]interface{}, error) {
	if obj == nil {
		return map[string]interface{}{}, nil
	}
	v, err := Normalize(obj)
	if err != nil {
		return nil, err
	}
	out, _ := v.(map[string]interface{})
	return out, nil
}

// CloneObject deep-copies a decoded JSON object
func CloneObject(obj map[string]interface{}) map[string]interface{} {
	if obj == nil {
		return nil
	}
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return CloneObject(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Equal compares two decoded JSON values
func Equal(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// TextForm renders a value the way a JSON text extraction would: strings
// unquoted, numbers and booleans as literals, containers as compact JSON.
// JSON null has no text form.
func TextForm(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	default:
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// AsNumber reports the float value of a decoded JSON number
func AsNumber(v interface{}) (float64, bool) {
	return toFloat(v)
}
