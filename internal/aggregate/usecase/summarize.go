package usecase

import (
	"sort"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
)

func studyData(rec model.Record, field string) map[string]interface{} {
	data, _ := rec[field].(map[string]interface{})
	return data
}

// ApplyColumnsToFields copies source fields into their display columns.
// A mapping value is either a field name or {"name", "default"}.
func ApplyColumnsToFields(records map[string]model.Record, columns map[string]interface{}, field string) {
	if len(columns) == 0 {
		return
	}
	for _, rec := range records {
		data := studyData(rec, field)
		if data == nil {
			continue
		}
		for column, spec := range columns {
			switch s := spec.(type) {
			case string:
				if v, ok := data[s]; ok {
					data[column] = v
				}
			case map[string]interface{}:
				name, _ := s["name"].(string)
				if v, ok := data[name]; ok && v != nil {
					data[column] = v
				} else if d, has := s["default"]; has {
					data[column] = d
				}
			}
		}
	}
}

// CollectTags groups the {name, category} tags of every record by category
func CollectTags(order []string, records map[string]model.Record, field string) map[string][]string {
	sets := map[string]map[string]struct{}{}
	for _, guid := range order {
		tags, _ := studyData(records[guid], field)["tags"].([]interface{})
		for _, t := range tags {
			tag, ok := t.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := tag["name"].(string)
			category, _ := tag["category"].(string)
			if name == "" {
				continue
			}
			if sets[category] == nil {
				sets[category] = map[string]struct{}{}
			}
			sets[category][name] = struct{}{}
		}
	}
	out := make(map[string][]string, len(sets))
	for category, names := range sets {
		list := make([]string, 0, len(names))
		for n := range names {
			list = append(list, n)
		}
		sort.Strings(list)
		out[category] = list
	}
	return out
}

// ComputeAggregations sums numeric fields or counts records holding a field
func ComputeAggregations(order []string, records map[string]model.Record, specs map[string]config.AggregationSpec, field string) map[string]interface{} {
	out := make(map[string]interface{}, len(specs))
	for name, spec := range specs {
		switch spec.Type {
		case "sum":
			var total float64
			for _, guid := range order {
				if n, ok := toNumber(studyData(records[guid], field)[name]); ok {
					total += n
				}
			}
			out[name] = total
		case "count":
			count := 0
			for _, guid := range order {
				if v, ok := studyData(records[guid], field)[name]; ok && v != nil {
					count++
				}
			}
			out[name] = count
		}
	}
	return out
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
