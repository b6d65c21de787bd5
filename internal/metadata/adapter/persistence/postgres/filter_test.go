package postgres

import (
	"testing"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lowered(t *testing.T, filter string) (string, []interface{}) {
	t.Helper()
	f, err := query.Parse(filter)
	require.NoError(t, err)
	return buildSQLFilter(f)
}

func TestBuildSQLFilter_Scalars(t *testing.T) {
	cases := []struct {
		name   string
		filter string
		where  string
		args   []interface{}
	}{
		{
			name:   "eq on nested path",
			filter: `(a.b,:eq,"x")`,
			where:  `((data #> '{"a","b"}') = ?::jsonb)`,
			args:   []interface{}{`"x"`},
		},
		{
			name:   "ne requires presence",
			filter: `(a,:ne,1)`,
			where:  `((data #> '{"a"}') IS NOT NULL AND (data #> '{"a"}') <> ?::jsonb)`,
			args:   []interface{}{`1`},
		},
		{
			name:   "range compares same json type",
			filter: `(n,:gt,10)`,
			where: `(jsonb_typeof((data #> '{"n"}')) IN ('number', 'string') AND ` +
				`jsonb_typeof((data #> '{"n"}')) = jsonb_typeof(?::jsonb) AND (data #> '{"n"}') > ?::jsonb)`,
			args: []interface{}{`10`, `10`},
		},
		{
			name:   "like matches strings only",
			filter: `(name,:like,"asth%")`,
			where:  `(jsonb_typeof((data #> '{"name"}')) = 'string' AND (data #>> '{"name"}') LIKE ?)`,
			args:   []interface{}{"asth%"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			where, args := lowered(t, tc.filter)
			assert.Equal(t, tc.where, where)
			assert.Equal(t, tc.args, args)
		})
	}
}

func TestBuildSQLFilter_Compound(t *testing.T) {
	where, args := lowered(t, `(tags,:any,(name,:eq,"b"))`)
	assert.Equal(t,
		`EXISTS (SELECT 1 FROM jsonb_array_elements(CASE WHEN jsonb_typeof((data #> '{"tags"}')) = 'array' `+
			`THEN (data #> '{"tags"}') ELSE '[]'::jsonb END) AS elem(value) WHERE ((elem.value #> '{"name"}') = ?::jsonb))`,
		where)
	assert.Equal(t, []interface{}{`"b"`}, args)

	where, args = lowered(t, `(nums,:all,(,:lte,3))`)
	assert.Contains(t, where, `jsonb_typeof((data #> '{"nums"}')) = 'array' AND NOT EXISTS`)
	assert.Contains(t, where, `WHERE NOT COALESCE(`)
	assert.Contains(t, where, `elem.value <= ?::jsonb`)
	assert.Equal(t, []interface{}{`3`, `3`}, args)
}

func TestBuildSQLFilter_BoolKeepsArgumentOrder(t *testing.T) {
	where, args := lowered(t, `(or,(a,:eq,1),(and,(b,:like,"x%"),(c,:eq,true)))`)
	assert.Equal(t,
		`(((data #> '{"a"}') = ?::jsonb) OR ((jsonb_typeof((data #> '{"b"}')) = 'string' AND (data #>> '{"b"}') LIKE ?) AND ((data #> '{"c"}') = ?::jsonb)))`,
		where)
	assert.Equal(t, []interface{}{`1`, "x%", `true`}, args)
}

func TestBuildSQLFilter_KeyValueShorthand(t *testing.T) {
	f, err := query.FromKeyValues(map[string][]string{"a": {"*"}, "b": {"5"}})
	require.NoError(t, err)
	where, args := buildSQLFilter(f)
	assert.Equal(t, `(((data #> '{"a"}') IS NOT NULL) AND ((data #>> '{"b"}') = ?))`, where)
	assert.Equal(t, []interface{}{"5"}, args)
}

func TestBuildSQLFilter_Nil(t *testing.T) {
	where, args := buildSQLFilter(nil)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestIndexStatements(t *testing.T) {
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "path_idx_a.b" ON metadata ((data #>> '{"a","b"}'))`, createIndexSQL("a.b"))
	assert.Equal(t, `DROP INDEX IF EXISTS "path_idx_a.b"`, dropIndexSQL("a.b"))
}
