package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/query"
)

// elementRoot is the column produced by jsonb_array_elements inside compound
// predicates
const elementRoot = "elem.value"

// sqlFilter accumulates a WHERE fragment and its positional arguments
type sqlFilter struct {
	args []interface{}
}

// buildSQLFilter lowers a parsed filter into a WHERE clause over the data
// column. Keys are restricted to [A-Za-z0-9_.] by the parser, so path
// literals are inlined; values always travel as arguments.
func buildSQLFilter(f query.Filter) (string, []interface{}) {
	if f == nil {
		return "", nil
	}
	b := &sqlFilter{}
	where := b.lower(f, "data")
	return where, b.args
}

// jsonPathLiteral renders a text[] literal such as '{"a","b"}'
func jsonPathLiteral(key string) string {
	segments := model.SplitPath(key)
	quoted := make([]string, len(segments))
	for i, s := range segments {
		quoted[i] = `"` + s + `"`
	}
	return "'{" + strings.Join(quoted, ",") + "}'"
}

func jsonExpr(root, key string) string {
	if key == "" {
		return root
	}
	return fmt.Sprintf("(%s #> %s)", root, jsonPathLiteral(key))
}

func textExpr(root, key string) string {
	return fmt.Sprintf("(%s #>> %s)", root, jsonPathLiteral(key))
}

func (b *sqlFilter) arg(v interface{}) {
	b.args = append(b.args, v)
}

func (b *sqlFilter) jsonArg(v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte("null")
	}
	b.arg(string(raw))
}

func (b *sqlFilter) lower(f query.Filter, root string) string {
	switch n := f.(type) {
	case *query.Scalar:
		return b.scalar(n, root)
	case *query.Compound:
		arr := jsonExpr(root, n.Key)
		elements := fmt.Sprintf(
			"jsonb_array_elements(CASE WHEN jsonb_typeof(%s) = 'array' THEN %s ELSE '[]'::jsonb END) AS elem(value)",
			arr, arr)
		inner := b.scalar(n.Inner, elementRoot)
		if n.Quantifier == query.QuantAny {
			return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)", elements, inner)
		}
		return fmt.Sprintf("(jsonb_typeof(%s) = 'array' AND NOT EXISTS (SELECT 1 FROM %s WHERE NOT COALESCE(%s, FALSE)))",
			arr, elements, inner)
	case *query.Bool:
		parts := make([]string, 0, len(n.Filters))
		for _, child := range n.Filters {
			parts = append(parts, b.lower(child, root))
		}
		joiner := " AND "
		if n.Op == query.Or {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")"
	}
	return "TRUE"
}

func (b *sqlFilter) scalar(s *query.Scalar, root string) string {
	p := jsonExpr(root, s.Key)
	switch s.Op {
	case query.OpEq:
		b.jsonArg(s.Value)
		return fmt.Sprintf("(%s = ?::jsonb)", p)
	case query.OpNe:
		b.jsonArg(s.Value)
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> ?::jsonb)", p, p)
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		b.jsonArg(s.Value)
		b.jsonArg(s.Value)
		return fmt.Sprintf("(jsonb_typeof(%s) IN ('number', 'string') AND jsonb_typeof(%s) = jsonb_typeof(?::jsonb) AND %s %s ?::jsonb)",
			p, p, p, sqlComparator(s.Op))
	case query.OpLike:
		b.arg(s.Value)
		return fmt.Sprintf("(jsonb_typeof(%s) = 'string' AND %s LIKE ?)", p, textExpr(root, s.Key))
	case query.OpExists:
		return fmt.Sprintf("(%s IS NOT NULL)", p)
	case query.OpText:
		b.arg(s.Value)
		return fmt.Sprintf("(%s = ?)", textExpr(root, s.Key))
	}
	return "FALSE"
}

func sqlComparator(op query.Op) string {
	switch op {
	case query.OpGt:
		return ">"
	case query.OpGte:
		return ">="
	case query.OpLt:
		return "<"
	}
	return "<="
}
