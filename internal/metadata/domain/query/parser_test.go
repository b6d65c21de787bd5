package query

import (
	"testing"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Scalar(t *testing.T) {
	f, err := Parse(`(a.b,:eq,"x")`)
	require.NoError(t, err)
	assert.Equal(t, &Scalar{Key: "a.b", Op: OpEq, Value: "x"}, f)

	f, err = Parse(` ( n , :gte , -1.5e2 ) `)
	require.NoError(t, err)
	assert.Equal(t, &Scalar{Key: "n", Op: OpGte, Value: -150.0}, f)

	f, err = Parse(`(flag,:ne,null)`)
	require.NoError(t, err)
	assert.Equal(t, &Scalar{Key: "flag", Op: OpNe, Value: nil}, f)
}

func TestParse_CompoundAndBool(t *testing.T) {
	f, err := Parse(`(and,(tags,:any,(name,:like,"asth%")),(or,(e,:eq,5),(e,:eq,true)))`)
	require.NoError(t, err)

	want := &Bool{Op: And, Filters: []Filter{
		&Compound{Key: "tags", Quantifier: QuantAny, Inner: &Scalar{Key: "name", Op: OpLike, Value: "asth%"}},
		&Bool{Op: Or, Filters: []Filter{
			&Scalar{Key: "e", Op: OpEq, Value: 5.0},
			&Scalar{Key: "e", Op: OpEq, Value: true},
		}},
	}}
	assert.Equal(t, want, f)
}

func TestParse_KeyNamedAnd(t *testing.T) {
	f, err := Parse(`(and,:eq,1)`)
	require.NoError(t, err)
	assert.Equal(t, &Scalar{Key: "and", Op: OpEq, Value: 1.0}, f)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		input    string
		position int
	}{
		{``, 0},
		{`a,:eq,1)`, 0},
		{`(a,:eq,1`, 8},
		{`(a,:bogus,1)`, 3},
		{`(a,:eq,[1])`, 7},
		{`(a,:eq,"open)`, 7},
		{`(a-b,:eq,1)`, 2},
		{`(a,:any,(and,(b,:eq,1)))`, 23},
		{`(a,:like,3)`, 10},
		{`(a,:eq,1) trailing`, 10},
		{`(and)`, 4},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			_, err := Parse(tc.input)
			require.Error(t, err)
			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
			assert.Equal(t, tc.position, appErr.Details["position"])
		})
	}
}

func TestUnparse_RoundTrip(t *testing.T) {
	inputs := []string{
		`(a,:eq,1)`,
		`(a.b.c,:like,"%x_\"q\"")`,
		`(a,:all,(,:gt,3))`,
		`(or,(a,:eq,null),(and,(b,:lt,"z"),(c,:ne,false)))`,
		`(x,:any,(y.z,:lte,2.5))`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			f, err := Parse(in)
			require.NoError(t, err)
			again, err := Parse(Unparse(f))
			require.NoError(t, err)
			assert.Equal(t, f, again)
		})
	}
}

func TestKeys(t *testing.T) {
	f, err := Parse(`(and,(a,:eq,1),(b,:any,(c,:eq,2)))`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, Keys(f))
}
