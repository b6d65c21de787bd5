package usecase

import (
	"fmt"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"

	"github.com/google/cel-go/cel"
)

// Selector keeps the records for which a CEL expression over `record`
// evaluates to true.
type Selector struct {
	expr    string
	program cel.Program
}

// NewSelector compiles expr. An empty expression selects every record.
func NewSelector(expr string) (*Selector, error) {
	if expr == "" {
		return &Selector{}, nil
	}
	env, err := cel.NewEnv(cel.Variable("record", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &Selector{expr: expr, program: program}, nil
}

// Select evaluates the expression against rec
func (s *Selector) Select(rec model.Record) (bool, error) {
	if s.program == nil {
		return true, nil
	}
	out, _, err := s.program.Eval(map[string]interface{}{"record": rec})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("select expression did not return a boolean")
	}
	return ok, nil
}

// Filter returns the guids of order whose records are selected. Records
// the expression cannot evaluate are dropped.
func (s *Selector) Filter(order []string, records map[string]model.Record) []string {
	if s.program == nil {
		return order
	}
	kept := make([]string, 0, len(order))
	for _, guid := range order {
		if ok, err := s.Select(records[guid]); err == nil && ok {
			kept = append(kept, guid)
		}
	}
	return kept
}
