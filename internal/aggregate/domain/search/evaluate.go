package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Matcher is a compiled DSL ready to run against documents
type Matcher struct {
	root predicate
}

type predicate func(s scope) bool

// scope is the document a predicate runs on. Inside a nested clause node is
// one array element and prefix the nested path it came from.
type scope struct {
	node   interface{}
	prefix string
}

// Compile turns a DSL map into a Matcher
func Compile(dsl map[string]interface{}) (*Matcher, error) {
	p, err := compileClause(dsl)
	if err != nil {
		return nil, err
	}
	return &Matcher{root: p}, nil
}

// Match runs the matcher against one record
func (m *Matcher) Match(doc map[string]interface{}) bool {
	return m.root(scope{node: doc})
}

// Evaluate compiles dsl and runs it against doc
func Evaluate(dsl map[string]interface{}, doc map[string]interface{}) (bool, error) {
	m, err := Compile(dsl)
	if err != nil {
		return false, err
	}
	return m.Match(doc), nil
}

func compileClause(dsl map[string]interface{}) (predicate, error) {
	if len(dsl) != 1 {
		return nil, fmt.Errorf("a query clause must have exactly one key, got %d", len(dsl))
	}
	for kind, raw := range dsl {
		body, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: clause body must be an object", kind)
		}
		switch kind {
		case "match_all":
			return func(scope) bool { return true }, nil
		case "bool":
			return compileBool(body)
		case "nested":
			return compileNested(body)
		case "exists":
			field, _ := body["field"].(string)
			if field == "" {
				return nil, fmt.Errorf("exists: field is required")
			}
			return func(s scope) bool { return len(s.values(field)) > 0 }, nil
		case "multi_match":
			return compileMultiMatch(body)
		case "match", "match_phrase", "wildcard", "regexp":
			return compileLeaf(kind, body)
		default:
			return nil, fmt.Errorf("unsupported query clause %q", kind)
		}
	}
	return nil, nil
}

func compileList(raw interface{}) ([]predicate, error) {
	var items []interface{}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		items = v
	case map[string]interface{}:
		items = []interface{}{v}
	default:
		return nil, fmt.Errorf("bool: clause list has unexpected type %T", raw)
	}
	out := make([]predicate, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("bool: clause must be an object")
		}
		p, err := compileClause(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func compileBool(body map[string]interface{}) (predicate, error) {
	must, err := compileList(body["must"])
	if err != nil {
		return nil, err
	}
	filter, err := compileList(body["filter"])
	if err != nil {
		return nil, err
	}
	must = append(must, filter...)
	should, err := compileList(body["should"])
	if err != nil {
		return nil, err
	}
	mustNot, err := compileList(body["must_not"])
	if err != nil {
		return nil, err
	}

	// should is optional once must is present
	requireShould := len(should) > 0 && len(must) == 0
	return func(s scope) bool {
		for _, p := range must {
			if !p(s) {
				return false
			}
		}
		for _, p := range mustNot {
			if p(s) {
				return false
			}
		}
		if !requireShould {
			return true
		}
		for _, p := range should {
			if p(s) {
				return true
			}
		}
		return false
	}, nil
}

func compileNested(body map[string]interface{}) (predicate, error) {
	path, _ := body["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("nested: path is required")
	}
	inner, ok := body["query"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("nested: query is required")
	}
	p, err := compileClause(inner)
	if err != nil {
		return nil, err
	}
	return func(s scope) bool {
		for _, elem := range s.values(path) {
			if p(scope{node: elem, prefix: path}) {
				return true
			}
		}
		return false
	}, nil
}

func compileMultiMatch(body map[string]interface{}) (predicate, error) {
	query := body["query"]
	var fields []string
	switch v := body["fields"].(type) {
	case []string:
		fields = v
	case []interface{}:
		for _, f := range v {
			if s, ok := f.(string); ok {
				fields = append(fields, s)
			}
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("multi_match: fields are required")
	}
	want := tokens(textOf(query))
	return func(s scope) bool {
		for _, f := range fields {
			for _, v := range s.values(f) {
				if anyToken(want, tokens(textOf(v))) {
					return true
				}
			}
		}
		return false
	}, nil
}

func compileLeaf(kind string, body map[string]interface{}) (predicate, error) {
	if len(body) != 1 {
		return nil, fmt.Errorf("%s: exactly one field expected", kind)
	}
	for field, raw := range body {
		query := raw
		if obj, ok := raw.(map[string]interface{}); ok {
			if v, ok := obj["value"]; ok {
				query = v
			} else if v, ok := obj["query"]; ok {
				query = v
			}
		}

		var test func(v interface{}) bool
		switch kind {
		case "match":
			want := tokens(textOf(query))
			test = func(v interface{}) bool { return anyToken(want, tokens(textOf(v))) }
		case "match_phrase":
			want := tokens(textOf(query))
			test = func(v interface{}) bool { return containsPhrase(tokens(textOf(v)), want) }
		case "wildcard":
			re, err := regexp.Compile("(?i)^" + globToRegexp(textOf(query)) + "$")
			if err != nil {
				return nil, fmt.Errorf("wildcard: %w", err)
			}
			test = func(v interface{}) bool { return re.MatchString(textOf(v)) }
		case "regexp":
			re, err := regexp.Compile("^(?:" + textOf(query) + ")$")
			if err != nil {
				return nil, fmt.Errorf("regexp: %w", err)
			}
			test = func(v interface{}) bool { return re.MatchString(textOf(v)) }
		}
		return func(s scope) bool {
			for _, v := range s.values(field) {
				if test(v) {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, nil
}

// values returns the non-null values at an absolute dotted path, flattening
// arrays on the way. Paths outside the current nested prefix match nothing.
func (s scope) values(path string) []interface{} {
	rel := path
	if s.prefix != "" {
		if !strings.HasPrefix(path, s.prefix+".") {
			if path == s.prefix {
				return collect(s.node, nil)
			}
			return nil
		}
		rel = path[len(s.prefix)+1:]
	}
	return collect(s.node, strings.Split(rel, "."))
}

func collect(node interface{}, segs []string) []interface{} {
	switch v := node.(type) {
	case nil:
		return nil
	case []interface{}:
		var out []interface{}
		for _, elem := range v {
			out = append(out, collect(elem, segs)...)
		}
		return out
	case map[string]interface{}:
		if len(segs) == 0 {
			return []interface{}{v}
		}
		child, ok := v[segs[0]]
		if !ok {
			return nil
		}
		return collect(child, segs[1:])
	}
	if len(segs) == 0 {
		return []interface{}{node}
	}
	return nil
}

func textOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func anyToken(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

func containsPhrase(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(have); i++ {
		match := true
		for j := range want {
			if have[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func globToRegexp(glob string) string {
	var sb strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return sb.String()
}
