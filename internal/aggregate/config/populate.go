package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// MDSCommons is a peer metadata service pulled page by page
type MDSCommons struct {
	MDSURL            string                 `json:"mds_url"`
	CommonsURL        string                 `json:"commons_url"`
	ColumnsToFields   map[string]interface{} `json:"columns_to_fields,omitempty"`
	SelectExpression  string                 `json:"select_expression,omitempty"`
	StudyDataField    string                 `json:"study_data_field,omitempty"`
	GUIDType          string                 `json:"guid_type,omitempty"`
	RequestsPerSecond float64                `json:"requests_per_second,omitempty"`
	PageSize          int                    `json:"page_size,omitempty"`
}

// AdapterCommons is a non-MDS source read through a named adapter
type AdapterCommons struct {
	MDSURL             string                            `json:"mds_url"`
	CommonsURL         string                            `json:"commons_url"`
	Adapter            string                            `json:"adapter"`
	Config             map[string]interface{}            `json:"config,omitempty"`
	Filters            map[string]interface{}            `json:"filters,omitempty"`
	FieldMappings      map[string]interface{}            `json:"field_mappings,omitempty"`
	PerItemValues      map[string]map[string]interface{} `json:"per_item_values,omitempty"`
	KeepOriginalFields bool                              `json:"keep_original_fields,omitempty"`
	GlobalFieldFilters []string                          `json:"global_field_filters,omitempty"`
	SelectExpression   string                            `json:"select_expression,omitempty"`
	StudyDataField     string                            `json:"study_data_field,omitempty"`
	GUIDType           string                            `json:"guid_type,omitempty"`
	RequestsPerSecond  float64                           `json:"requests_per_second,omitempty"`
}

// AggregationSpec computes one summary value over a commons
type AggregationSpec struct {
	// Type is "sum" or "count"
	Type string `json:"type"`
}

// SchemaField describes one normalized discovery field
type SchemaField struct {
	Type        string      `json:"type"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Settings holds populate-wide options
type Settings struct {
	NestedPaths []string `json:"nested_paths,omitempty"`
}

// Configuration is the schema and settings block
type Configuration struct {
	Schema   map[string]SchemaField `json:"schema,omitempty"`
	Settings Settings               `json:"settings"`
}

// PopulateConfig is the file passed to populate --config and AGG_MDS_CONFIG
type PopulateConfig struct {
	GEN3Commons    map[string]MDSCommons      `json:"gen3_commons,omitempty"`
	AdapterCommons map[string]AdapterCommons  `json:"adapter_commons,omitempty"`
	Aggregations   map[string]AggregationSpec `json:"aggregations,omitempty"`
	Configuration  Configuration              `json:"configuration"`
}

// LoadPopulateConfig reads a JSON or YAML populate config
func LoadPopulateConfig(path string) (*PopulateConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read populate config: %w", err)
	}
	return ParsePopulateConfig(raw)
}

// ParsePopulateConfig decodes raw as YAML (JSON being a subset) and
// normalizes numbers the way encoding/json would.
func ParsePopulateConfig(raw []byte) (*PopulateConfig, error) {
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse populate config: %w", err)
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("populate config is not JSON compatible: %w", err)
	}
	cfg := &PopulateConfig{}
	if err := json.Unmarshal(asJSON, cfg); err != nil {
		return nil, fmt.Errorf("invalid populate config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and unique commons names
func (c *PopulateConfig) Validate() error {
	for name, mds := range c.GEN3Commons {
		if mds.MDSURL == "" {
			return fmt.Errorf("gen3_commons %s: mds_url is required", name)
		}
		if _, dup := c.AdapterCommons[name]; dup {
			return fmt.Errorf("commons %s is configured twice", name)
		}
	}
	for name, ad := range c.AdapterCommons {
		if ad.MDSURL == "" {
			return fmt.Errorf("adapter_commons %s: mds_url is required", name)
		}
		if ad.Adapter == "" {
			return fmt.Errorf("adapter_commons %s: adapter is required", name)
		}
	}
	for field, agg := range c.Aggregations {
		if agg.Type != "sum" && agg.Type != "count" {
			return fmt.Errorf("aggregation %s: unknown type %q", field, agg.Type)
		}
	}
	return nil
}

// CommonsNames returns every configured commons, sorted
func (c *PopulateConfig) CommonsNames() []string {
	names := make([]string, 0, len(c.GEN3Commons)+len(c.AdapterCommons))
	for n := range c.GEN3Commons {
		names = append(names, n)
	}
	for n := range c.AdapterCommons {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
