// Package query implements the filter expression language accepted by
// GET /metadata and its evaluation against JSON documents.
//
//	filter   := scalar | compound | bool
//	bool     := "(" ("and"|"or") ("," filter)+ ")"
//	compound := "(" key "," (":all"|":any") "," scalar ")"
//	scalar   := "(" key "," sop "," jvalue ")"
package query

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Op is a scalar comparison operator
type Op string

const (
	OpEq   Op = ":eq"
	OpNe   Op = ":ne"
	OpGt   Op = ":gt"
	OpGte  Op = ":gte"
	OpLt   Op = ":lt"
	OpLte  Op = ":lte"
	OpLike Op = ":like"

	// OpExists and OpText only come from the key=value shorthand
	OpExists Op = ":exists"
	OpText   Op = ":text"
)

var grammarOps = map[string]Op{
	"eq":   OpEq,
	"ne":   OpNe,
	"gt":   OpGt,
	"gte":  OpGte,
	"lt":   OpLt,
	"lte":  OpLte,
	"like": OpLike,
}

// Quantifier selects :any or :all over an array
type Quantifier string

const (
	QuantAny Quantifier = ":any"
	QuantAll Quantifier = ":all"
)

// BoolOp joins sub-filters
type BoolOp string

const (
	And BoolOp = "and"
	Or  BoolOp = "or"
)

// Filter is a node of the parsed expression
type Filter interface {
	filterNode()
}

// Scalar compares the value at Key with Value
type Scalar struct {
	Key   string
	Op    Op
	Value interface{}
}

// Compound applies Inner to the elements of the array at Key. Inner.Key is
// resolved inside each element; an empty Inner.Key addresses the element.
type Compound struct {
	Key        string
	Quantifier Quantifier
	Inner      *Scalar
}

// Bool composes sub-filters
type Bool struct {
	Op      BoolOp
	Filters []Filter
}

func (*Scalar) filterNode()   {}
func (*Compound) filterNode() {}
func (*Bool) filterNode()     {}

// Unparse renders a filter back into the grammar. Parse(Unparse(f)) yields a
// filter equal to f for every filter Parse can produce.
func Unparse(f Filter) string {
	var sb strings.Builder
	writeFilter(&sb, f)
	return sb.String()
}

func writeFilter(sb *strings.Builder, f Filter) {
	switch n := f.(type) {
	case *Scalar:
		writeScalar(sb, n)
	case *Compound:
		sb.WriteString("(")
		sb.WriteString(n.Key)
		sb.WriteString(",")
		sb.WriteString(string(n.Quantifier))
		sb.WriteString(",")
		writeScalar(sb, n.Inner)
		sb.WriteString(")")
	case *Bool:
		sb.WriteString("(")
		sb.WriteString(string(n.Op))
		for _, child := range n.Filters {
			sb.WriteString(",")
			writeFilter(sb, child)
		}
		sb.WriteString(")")
	}
}

func writeScalar(sb *strings.Builder, s *Scalar) {
	op := s.Op
	value := s.Value
	// shorthand operators have no grammar token; render their closest form
	switch op {
	case OpText:
		op = OpEq
	case OpExists:
		op, value = OpNe, nil
	}
	sb.WriteString("(")
	sb.WriteString(s.Key)
	sb.WriteString(",")
	sb.WriteString(string(op))
	sb.WriteString(",")
	sb.WriteString(encodeValue(value))
	sb.WriteString(")")
}

func encodeValue(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Keys returns every top-level path a filter reads, in visit order
func Keys(f Filter) []string {
	var keys []string
	var walk func(Filter)
	walk = func(f Filter) {
		switch n := f.(type) {
		case *Scalar:
			keys = append(keys, n.Key)
		case *Compound:
			keys = append(keys, n.Key)
		case *Bool:
			for _, c := range n.Filters {
				walk(c)
			}
		}
	}
	walk(f)
	return keys
}
