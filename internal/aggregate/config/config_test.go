package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("USE_AGG_MDS", "true")
	t.Setenv("AGG_MDS_BACKEND", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 20*time.Second, cfg.PullTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetAddr())
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("AGG_MDS_BACKEND", "elasticsearch")
	_, err := LoadConfig()
	assert.Error(t, err)
}

const yamlConfig = `
gen3_commons:
  MyCommons:
    mds_url: https://peer.example.org/
    commons_url: peer.example.org
    columns_to_fields:
      short_name: name
    requests_per_second: 5
adapter_commons:
  ICPSR:
    mds_url: https://www.icpsr.umich.edu/oai/oai
    commons_url: www.icpsr.umich.edu
    adapter: icpsr
    filters:
      study_ids: [30122, 37208]
    field_mappings:
      tags: []
      study_id: "path:identifier"
      _unique_id: "path:identifier"
aggregations:
  _subjects_count:
    type: sum
configuration:
  schema:
    _subjects_count:
      type: integer
      default: 0
  settings:
    nested_paths:
      - gen3_discovery.study_metadata.citation.investigators
`

func TestParsePopulateConfig_YAML(t *testing.T) {
	cfg, err := ParsePopulateConfig([]byte(yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"ICPSR", "MyCommons"}, cfg.CommonsNames())
	assert.Equal(t, 5.0, cfg.GEN3Commons["MyCommons"].RequestsPerSecond)
	assert.Equal(t, []interface{}{30122.0, 37208.0}, cfg.AdapterCommons["ICPSR"].Filters["study_ids"])
	assert.Equal(t, "sum", cfg.Aggregations["_subjects_count"].Type)
	assert.Equal(t, 0.0, cfg.Configuration.Schema["_subjects_count"].Default)
	assert.Equal(t, []string{"gen3_discovery.study_metadata.citation.investigators"}, cfg.Configuration.Settings.NestedPaths)
}

func TestLoadPopulateConfig_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"gen3_commons": {"A": {"mds_url": "http://a"}}}`), 0o600))

	cfg, err := LoadPopulateConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://a", cfg.GEN3Commons["A"].MDSURL)
}

func TestParsePopulateConfig_Validation(t *testing.T) {
	cases := map[string]string{
		"missing url":     `{"gen3_commons": {"A": {}}}`,
		"missing adapter": `{"adapter_commons": {"A": {"mds_url": "http://a"}}}`,
		"duplicate":       `{"gen3_commons": {"A": {"mds_url": "http://a"}}, "adapter_commons": {"A": {"mds_url": "http://a", "adapter": "json"}}}`,
		"bad aggregation": `{"aggregations": {"x": {"type": "avg"}}}`,
		"not yaml":        "gen3_commons: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePopulateConfig([]byte(raw))
			assert.Error(t, err)
		})
	}
}
