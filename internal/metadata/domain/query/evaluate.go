package query

import (
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
)

// Match reports whether doc satisfies f. A nil filter matches everything.
func Match(f Filter, doc map[string]interface{}) bool {
	if f == nil {
		return true
	}
	return matchNode(f, doc)
}

func matchNode(f Filter, doc interface{}) bool {
	switch n := f.(type) {
	case *Scalar:
		return matchScalar(n, doc)
	case *Compound:
		return matchCompound(n, doc)
	case *Bool:
		if n.Op == And {
			for _, child := range n.Filters {
				if !matchNode(child, doc) {
					return false
				}
			}
			return true
		}
		for _, child := range n.Filters {
			if matchNode(child, doc) {
				return true
			}
		}
		return false
	}
	return false
}

func matchCompound(c *Compound, doc interface{}) bool {
	value, ok := model.Lookup(doc, model.SplitPath(c.Key))
	if !ok {
		return false
	}
	elems, ok := value.([]interface{})
	if !ok {
		return false
	}
	if c.Quantifier == QuantAny {
		for _, e := range elems {
			if matchScalar(c.Inner, e) {
				return true
			}
		}
		return false
	}
	for _, e := range elems {
		if !matchScalar(c.Inner, e) {
			return false
		}
	}
	return true
}

func matchScalar(s *Scalar, doc interface{}) bool {
	value, ok := model.Lookup(doc, model.SplitPath(s.Key))
	if !ok {
		return false
	}
	return compare(s.Op, value, s.Value)
}

func compare(op Op, actual, expected interface{}) bool {
	switch op {
	case OpExists:
		return true
	case OpEq:
		return model.Equal(actual, expected)
	case OpNe:
		return !model.Equal(actual, expected)
	case OpText:
		text, ok := model.TextForm(actual)
		want, isString := expected.(string)
		return ok && isString && text == want
	case OpLike:
		s, ok := actual.(string)
		pattern, isString := expected.(string)
		return ok && isString && compileLike(pattern).MatchString(s)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := order(actual, expected)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// order compares numbers with numbers and strings with strings
func order(a, b interface{}) (int, bool) {
	if fa, ok := model.AsNumber(a); ok {
		fb, ok := model.AsNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	}
	return 0, true
}
