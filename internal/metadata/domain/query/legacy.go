package query

import (
	"fmt"
	"sort"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
)

const (
	// Wildcard matches any value present at the path
	Wildcard = "*"
	// EscapedWildcard matches the literal string "*"
	EscapedWildcard = `\*`
)

// FromKeyValues builds a filter from key=value query parameters. Values of
// one key are OR'ed, distinct keys are AND'ed. It returns nil when params is
// empty.
func FromKeyValues(params map[string][]string) (Filter, error) {
	keys := make([]string, 0, len(params))
	for k, values := range params {
		if len(values) == 0 {
			continue
		}
		if k == "" || !ValidKey(k) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid query key %q", k)).WithCode("QUERY_KEY")
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	clauses := make([]Filter, 0, len(keys))
	for _, k := range keys {
		values := params[k]
		alternatives := make([]Filter, 0, len(values))
		for _, v := range values {
			alternatives = append(alternatives, shorthand(k, v))
		}
		if len(alternatives) == 1 {
			clauses = append(clauses, alternatives[0])
		} else {
			clauses = append(clauses, &Bool{Op: Or, Filters: alternatives})
		}
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return &Bool{Op: And, Filters: clauses}, nil
}

func shorthand(key, value string) *Scalar {
	switch value {
	case Wildcard:
		return &Scalar{Key: key, Op: OpExists}
	case EscapedWildcard:
		return &Scalar{Key: key, Op: OpText, Value: Wildcard}
	default:
		return &Scalar{Key: key, Op: OpText, Value: value}
	}
}
