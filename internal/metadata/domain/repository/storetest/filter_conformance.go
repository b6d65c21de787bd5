// Package storetest holds behavior checks shared by every MetadataStore
// backend.
package storetest

import (
	"context"
	"testing"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/query"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FilterCase is one filter and the guids it must select from FilterFixtures
type FilterCase struct {
	Name string
	// Filter is parsed with query.Parse unless KeyValues is set
	Filter    string
	KeyValues map[string][]string
	Want      []string
}

// FilterFixtures are the records every FilterCase runs against
func FilterFixtures() []*model.MetadataRecord {
	authz := func() map[string]interface{} { return map[string]interface{}{"version": 0.0} }
	return []*model.MetadataRecord{
		{GUID: "cf1", Authz: authz(), Data: map[string]interface{}{"a": 1.0, "s": "x", "n": 5.0}},
		{GUID: "cf2", Authz: authz(), Data: map[string]interface{}{"a": []interface{}{1.0, 2.0}, "s": []interface{}{"x", "y"}}},
		{GUID: "cf3", Authz: authz(), Data: map[string]interface{}{"o": []interface{}{map[string]interface{}{"b": 1.0}}, "a": 2.0}},
		{GUID: "cf4", Authz: authz(), Data: map[string]interface{}{"o": map[string]interface{}{"b": 1.0}, "e": 5.0}},
		{GUID: "cf5", Authz: authz(), Data: map[string]interface{}{"e": "5.0", "flag": true}},
	}
}

// FilterCases pin whole-value semantics: arrays are values, never searched
// implicitly, and dotted keys do not reach through arrays.
func FilterCases() []FilterCase {
	return []FilterCase{
		{Name: "eq skips arrays holding the value", Filter: `(a,:eq,1)`, Want: []string{"cf1"}},
		{Name: "ne keeps arrays", Filter: `(a,:ne,1)`, Want: []string{"cf2", "cf3"}},
		{Name: "range skips arrays", Filter: `(a,:gte,1)`, Want: []string{"cf1", "cf3"}},
		{Name: "like skips arrays", Filter: `(s,:like,"x%")`, Want: []string{"cf1"}},
		{Name: "dotted key stops at arrays", Filter: `(o.b,:eq,1)`, Want: []string{"cf4"}},
		{Name: "any over scalars", Filter: `(a,:any,(,:eq,2))`, Want: []string{"cf2"}},
		{Name: "any over objects", Filter: `(o,:any,(b,:eq,1))`, Want: []string{"cf3"}},
		{Name: "all over scalars", Filter: `(a,:all,(,:gte,1))`, Want: []string{"cf2"}},
		{Name: "wildcard matches any value", KeyValues: map[string][]string{"a": {"*"}}, Want: []string{"cf1", "cf2", "cf3"}},
		{Name: "wildcard on dotted key", KeyValues: map[string][]string{"o.b": {"*"}}, Want: []string{"cf4"}},
		{Name: "text of a number", KeyValues: map[string][]string{"e": {"5"}}, Want: []string{"cf4"}},
		{Name: "text is not reparsed", KeyValues: map[string][]string{"e": {"5.0"}}, Want: []string{"cf5"}},
		{Name: "text skips arrays", KeyValues: map[string][]string{"s": {"x"}}, Want: []string{"cf1"}},
		{Name: "text of a boolean", KeyValues: map[string][]string{"flag": {"true"}}, Want: []string{"cf5"}},
	}
}

// RunFilterConformance loads FilterFixtures into an empty store and checks
// every FilterCase against List.
func RunFilterConformance(t *testing.T, store repository.MetadataStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, FilterFixtures(), false))

	for _, tc := range FilterCases() {
		t.Run(tc.Name, func(t *testing.T) {
			var (
				f   query.Filter
				err error
			)
			if tc.KeyValues != nil {
				f, err = query.FromKeyValues(tc.KeyValues)
			} else {
				f, err = query.Parse(tc.Filter)
			}
			require.NoError(t, err)

			found, err := store.List(ctx, repository.ListQuery{Filter: f, Limit: 100})
			require.NoError(t, err)
			guids := make([]string, 0, len(found))
			for _, r := range found {
				guids = append(guids, r.GUID)
			}
			assert.Equal(t, tc.Want, guids)
		})
	}
}
