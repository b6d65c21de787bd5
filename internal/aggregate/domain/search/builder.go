package search

import (
	"fmt"
	"strings"
)

// BoolOp combines sub-queries
type BoolOp string

const (
	OpAnd BoolOp = "AND"
	OpOr  BoolOp = "OR"
	OpNot BoolOp = "NOT"
)

// Query is either a boolean combination of Terms or a single leaf Term
type Query struct {
	Op    BoolOp  `json:"op,omitempty" yaml:"op,omitempty"`
	Terms []Query `json:"terms,omitempty" yaml:"terms,omitempty"`
	Term  *Term   `json:"term,omitempty" yaml:"term,omitempty"`
}

// Term is a leaf condition on one path or a set of fields. Value is a scalar
// or a list of scalars.
type Term struct {
	Path   string      `json:"path,omitempty" yaml:"path,omitempty"`
	Fields []string    `json:"fields,omitempty" yaml:"fields,omitempty"`
	Value  interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	Exists bool        `json:"exists,omitempty" yaml:"exists,omitempty"`
}

// DSL is a compiled query
type DSL = map[string]interface{}

// MatchAll matches every document
func MatchAll() DSL {
	return DSL{"match_all": map[string]interface{}{}}
}

// Exists builds a query for documents holding a value at path
func Exists(path string) Query {
	return Query{Term: &Term{Path: path, Exists: true}}
}

// Builder compiles queries against a nested path registry
type Builder struct {
	registry *Registry
}

// NewBuilder creates a builder. A nil registry means no nested paths.
func NewBuilder(registry *Registry) *Builder {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Builder{registry: registry}
}

// Registry returns the nested path registry
func (b *Builder) Registry() *Registry {
	return b.registry
}

// Build compiles q. An empty query matches everything.
func (b *Builder) Build(q Query) (DSL, error) {
	if q.Term == nil && q.Op == "" && len(q.Terms) == 0 {
		return MatchAll(), nil
	}
	return b.build(q)
}

func (b *Builder) build(q Query) (DSL, error) {
	if q.Term != nil {
		if q.Op != "" || len(q.Terms) > 0 {
			return nil, fmt.Errorf("a query holds either a term or terms, not both")
		}
		return b.leaf(*q.Term)
	}

	var clause string
	switch BoolOp(strings.ToUpper(string(q.Op))) {
	case OpAnd:
		clause = "must"
	case OpOr:
		clause = "should"
	case OpNot:
		clause = "must_not"
	default:
		return nil, fmt.Errorf("unknown boolean operator %q", q.Op)
	}
	if len(q.Terms) == 0 {
		return nil, fmt.Errorf("%s needs at least one term", q.Op)
	}
	children := make([]interface{}, 0, len(q.Terms))
	for _, t := range q.Terms {
		child, err := b.build(t)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return DSL{"bool": map[string]interface{}{clause: children}}, nil
}

func (b *Builder) leaf(t Term) (DSL, error) {
	var (
		leaf   DSL
		levels []string
	)
	switch {
	case len(t.Fields) > 0:
		if t.Value == nil {
			return nil, fmt.Errorf("multi-field term needs a value")
		}
		fields := append([]string{}, t.Fields...)
		leaf = DSL{"multi_match": map[string]interface{}{"query": t.Value, "fields": fields}}
		levels = b.registry.commonLevels(fields)
	case t.Path == "":
		return nil, fmt.Errorf("term needs a path or fields")
	case t.Exists:
		leaf = DSL{"exists": map[string]interface{}{"field": t.Path}}
		levels = b.registry.Levels(t.Path)
	default:
		var err error
		leaf, err = valueClause(t.Path, t.Value)
		if err != nil {
			return nil, err
		}
		levels = b.registry.Levels(t.Path)
	}
	return wrapNested(leaf, levels), nil
}

// valueClause picks the leaf type from the shape of value
func valueClause(path string, value interface{}) (DSL, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("term on %s needs a value", path)
	case []interface{}:
		return phraseList(path, v), nil
	case []string:
		items := make([]interface{}, len(v))
		for i, s := range v {
			items[i] = s
		}
		return phraseList(path, items), nil
	case string:
		switch {
		case strings.Contains(v, "*"):
			return DSL{"wildcard": map[string]interface{}{path: map[string]interface{}{"value": v}}}, nil
		case strings.Contains(v, "/"):
			return DSL{"regexp": map[string]interface{}{path: map[string]interface{}{"value": v}}}, nil
		}
	}
	return DSL{"match": map[string]interface{}{path: value}}, nil
}

func phraseList(path string, values []interface{}) DSL {
	should := make([]interface{}, 0, len(values))
	for _, v := range values {
		should = append(should, DSL{"match_phrase": map[string]interface{}{path: v}})
	}
	return DSL{"bool": map[string]interface{}{"should": should}}
}

// wrapNested wraps leaf in one nested clause per level, outermost first
func wrapNested(leaf DSL, levels []string) DSL {
	out := leaf
	for i := len(levels) - 1; i >= 0; i-- {
		out = DSL{"nested": map[string]interface{}{"path": levels[i], "query": out}}
	}
	return out
}
