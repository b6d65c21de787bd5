package query

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
)

// Parse reads a filter expression. Errors are VALIDATION errors carrying the
// byte offset at which parsing failed.
func Parse(input string) (Filter, error) {
	p := &parser{src: input}
	f, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing input %q", p.src[p.pos:])
	}
	return f, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return apperrors.NewParseError(fmt.Sprintf("invalid filter at position %d: %s", p.pos, fmt.Sprintf(format, args...)), p.pos)
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		if p.eof() {
			return p.errorf("expected %q, got end of input", c)
		}
		return p.errorf("expected %q, got %q", c, p.peek())
	}
	p.pos++
	return nil
}

func isKeyChar(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ValidKey reports whether s only uses characters allowed in a filter key
func ValidKey(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isKeyChar(s[i]) {
			return false
		}
	}
	return true
}

func (p *parser) parseKey() string {
	p.skipSpace()
	start := p.pos
	for !p.eof() && isKeyChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) parseFilter() (Filter, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	key := p.parseKey()
	if err := p.expect(','); err != nil {
		return nil, err
	}
	p.skipSpace()

	if (key == string(And) || key == string(Or)) && p.peek() == '(' {
		return p.parseBool(BoolOp(key))
	}

	opPos := p.pos
	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}
	if err := p.expect(','); err != nil {
		return nil, err
	}

	switch op {
	case string(QuantAny), string(QuantAll):
		inner, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		scalar, ok := inner.(*Scalar)
		if !ok {
			return nil, p.errorf("%s expects a scalar filter", op)
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return &Compound{Key: key, Quantifier: Quantifier(op), Inner: scalar}, nil
	}

	sop, ok := grammarOps[strings.TrimPrefix(op, ":")]
	if !ok {
		p.pos = opPos
		return nil, p.errorf("unknown operator %q", op)
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if sop == OpLike {
		if _, isString := value.(string); !isString {
			return nil, p.errorf(":like expects a string value")
		}
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return &Scalar{Key: key, Op: sop, Value: value}, nil
}

func (p *parser) parseBool(op BoolOp) (Filter, error) {
	node := &Bool{Op: op}
	for {
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		node.Filters = append(node.Filters, child)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return node, nil
		default:
			return nil, p.errorf("expected ',' or ')' in %s", op)
		}
	}
}

func (p *parser) parseOperator() (string, error) {
	p.skipSpace()
	if p.peek() != ':' {
		return "", p.errorf("expected operator")
	}
	start := p.pos
	p.pos++
	for !p.eof() && p.src[p.pos] >= 'a' && p.src[p.pos] <= 'z' {
		p.pos++
	}
	if p.pos == start+1 {
		p.pos = start
		return "", p.errorf("expected operator name")
	}
	return p.src[start:p.pos], nil
}

func (p *parser) parseValue() (interface{}, error) {
	p.skipSpace()
	start := p.pos
	switch c := p.peek(); {
	case c == '"':
		p.pos++
		for !p.eof() {
			switch p.src[p.pos] {
			case '\\':
				p.pos += 2
				continue
			case '"':
				p.pos++
				var s string
				if err := json.Unmarshal([]byte(p.src[start:p.pos]), &s); err != nil {
					p.pos = start
					return nil, p.errorf("invalid string literal")
				}
				return s, nil
			}
			p.pos++
		}
		p.pos = start
		return nil, p.errorf("unterminated string")
	case c == 't' || c == 'f' || c == 'n':
		for _, lit := range []struct {
			text  string
			value interface{}
		}{{"true", true}, {"false", false}, {"null", nil}} {
			if strings.HasPrefix(p.src[p.pos:], lit.text) {
				p.pos += len(lit.text)
				return lit.value, nil
			}
		}
		return nil, p.errorf("invalid literal")
	case c == '-' || (c >= '0' && c <= '9'):
		for !p.eof() && strings.IndexByte("+-.eE0123456789", p.src[p.pos]) >= 0 {
			p.pos++
		}
		var f float64
		if err := json.Unmarshal([]byte(p.src[start:p.pos]), &f); err != nil {
			p.pos = start
			return nil, p.errorf("invalid number")
		}
		return f, nil
	case p.eof():
		return nil, p.errorf("expected value, got end of input")
	default:
		return nil, p.errorf("expected JSON scalar value")
	}
}
