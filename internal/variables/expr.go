package variables

import (
	"fmt"
	"unicode"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
)

// Expressions support numeric literals, + - * /,
// unary signs, parentheses and a single variable reference.
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("-" | "+") unary | primary
//	primary = number | name | "(" expr ")"

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokName
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func isNameRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lex(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			f, ok := parseNumber(text)
			if !ok {
				return nil, fmt.Errorf("bad number %q at %d", text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: f, pos: start})
		case isNameRune(r):
			start := i
			for i < len(runes) && isNameRune(runes[i]) {
				i++
			}
			toks = append(toks, token{kind: tokName, text: string(runes[start:i]), pos: start})
		default:
			return nil, fmt.Errorf("unexpected %q at %d", r, i)
		}
	}

	return append(toks, token{kind: tokEOF, pos: len(runes)}), nil
}

type parser struct {
	toks   []token
	pos    int
	lookup func(name string) (float64, error)
	names  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}

	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()

		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if t.text == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}

	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.next()

		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if t.text == "*" {
			left *= right
			continue
		}
		if right == 0 {
			return 0, fmt.Errorf("division by zero at %d", t.pos)
		}
		left /= right
	}
}

func (p *parser) unary() (float64, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		v, err := p.unary()
		if t.text == "-" {
			v = -v
		}
		return v, err
	}
	return p.primary()
}

func (p *parser) primary() (float64, error) {
	t := p.next()

	switch t.kind {
	case tokNumber:
		return t.num, nil
	case tokName:
		p.names++
		if p.names > 1 {
			return 0, fmt.Errorf("only one variable may be referenced, found %q at %d", t.text, t.pos)
		}
		return p.lookup(t.text)
	case tokLParen:
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return 0, fmt.Errorf("expected ) at %d", closing.pos)
		}
		return v, nil
	case tokEOF:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	}
}

// evaluate computes src, resolving its variable through lookup. Lookup
// errors are returned unchanged so callers still see NotFound and friends.
func evaluate(src string, lookup func(name string) (float64, error)) (float64, error) {
	errFactory := errors.New()

	toks, err := lex(src)
	if err != nil {
		return 0, errFactory.Wrap(ErrInvalidExpression, err)
	}

	p := &parser{toks: toks, lookup: lookup}
	v, err := p.expr()
	if err != nil {
		if _, coded := errors.CodeOf(err); coded {
			return 0, err
		}
		return 0, errFactory.Wrap(ErrInvalidExpression, err)
	}
	if t := p.peek(); t.kind != tokEOF {
		return 0, errFactory.Wrap(ErrInvalidExpression, fmt.Errorf("unexpected %q at %d", t.text, t.pos))
	}

	return v, nil
}
