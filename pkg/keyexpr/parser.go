package keyexpr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type parser struct {
	src string
	pos int
}

// Compile parses expr. The result is immutable and safe for concurrent use.
func Compile(expr string) (*Expression, error) {
	p := &parser{src: expr}

	var terms []term
	for {
		p.skipSpace()
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)

		p.skipSpace()
		if p.eof() {
			break
		}
		if p.peek() != '+' {
			return nil, p.errorf("expected '+' or end of expression, found %q", p.peek())
		}
		p.pos++
	}

	return &Expression{source: expr, terms: terms}, nil
}

// MustCompile is Compile that panics on error, for expressions fixed at build time.
func MustCompile(expr string) *Expression {
	e, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return e
}

func (p *parser) eof() bool  { return p.pos >= len(p.src) }
func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Expr: p.src, Pos: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.peek())) {
		p.pos++
	}
}

func (p *parser) term() (term, error) {
	if p.eof() {
		return term{}, p.errorf("unexpected end of expression")
	}

	switch c := p.peek(); {
	case c == '#':
		p.pos++
		name := p.ident()
		if name == "" {
			return term{}, p.errorf("expected variable name after '#'")
		}
		steps, err := p.accessors()
		if err != nil {
			return term{}, err
		}
		return term{kind: termRef, name: name, steps: steps}, nil
	case c == '\'' || c == '"':
		s, err := p.quoted()
		if err != nil {
			return term{}, err
		}
		return term{kind: termString, str: s}, nil
	case c == '-' || isDigit(c):
		n, err := p.integer()
		if err != nil {
			return term{}, err
		}
		return term{kind: termInt, num: n}, nil
	default:
		return term{}, p.errorf("unexpected character %q", c)
	}
}

func (p *parser) accessors() ([]step, error) {
	var steps []step
	for !p.eof() {
		switch {
		case p.peek() == '.':
			p.pos++
			name := p.ident()
			if name == "" {
				return nil, p.errorf("expected field name after '.'")
			}
			steps = append(steps, step{kind: stepField, name: name})
		case strings.HasPrefix(p.src[p.pos:], "?."):
			p.pos += 2
			name := p.ident()
			if name == "" {
				return nil, p.errorf("expected field name after '?.'")
			}
			steps = append(steps, step{kind: stepField, name: name, nullSafe: true})
		case p.peek() == '[':
			p.pos++
			p.skipSpace()
			if p.eof() {
				return nil, p.errorf("unterminated '['")
			}
			var st step
			if c := p.peek(); c == '\'' || c == '"' {
				key, err := p.quoted()
				if err != nil {
					return nil, err
				}
				st = step{kind: stepKey, name: key}
			} else {
				n, err := p.integer()
				if err != nil {
					return nil, err
				}
				if n < 0 {
					return nil, p.errorf("negative index %d", n)
				}
				st = step{kind: stepIndex, index: int(n)}
			}
			p.skipSpace()
			if p.eof() || p.peek() != ']' {
				return nil, p.errorf("expected ']'")
			}
			p.pos++
			steps = append(steps, st)
		default:
			return steps, nil
		}
	}
	return steps, nil
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := rune(p.peek())
		if c == '_' || unicode.IsLetter(c) || (p.pos > start && unicode.IsDigit(c)) {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *parser) quoted() (string, error) {
	quote := p.peek()
	p.pos++

	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		p.pos++
		if c == quote {
			// A doubled quote stands for one literal quote.
			if !p.eof() && p.peek() == quote {
				b.WriteByte(quote)
				p.pos++
				continue
			}
			return b.String(), nil
		}
		b.WriteByte(c)
	}
	return "", p.errorf("unterminated string literal")
}

func (p *parser) integer() (int64, error) {
	start := p.pos
	if !p.eof() && p.peek() == '-' {
		p.pos++
	}
	for !p.eof() && isDigit(p.peek()) {
		p.pos++
	}
	text := p.src[start:p.pos]
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		p.pos = start
		return 0, p.errorf("invalid integer %q", text)
	}
	return n, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
