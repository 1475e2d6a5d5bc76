package metric

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/persistorai/cadence/internal/models"
)

// node is a compiled expression tree node.
type node interface {
	eval(agg func(models.AggregationOp, string) float64) float64
}

type literal float64

func (n literal) eval(func(models.AggregationOp, string) float64) float64 { return float64(n) }

type call struct {
	op    models.AggregationOp
	field string
}

func (n call) eval(agg func(models.AggregationOp, string) float64) float64 {
	return agg(n.op, n.field)
}

type binary struct {
	op          byte
	left, right node
}

func (n binary) eval(agg func(models.AggregationOp, string) float64) float64 {
	l, r := n.left.eval(agg), n.right.eval(agg)
	switch n.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default:
		if r == 0 {
			return 0
		}

		return l / r
	}
}

// Program is a parsed metric expression.
type Program struct {
	root node
}

// Compile parses an expression such as "sum(amount) / count()". The grammar
// is non-negative decimal literals, + - * /, parentheses and the calls
// sum(field), avg(field), count() and count(field).
func Compile(src string) (*Program, error) {
	p := &parser{src: src}
	p.next()

	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.tok.text)
	}

	return &Program{root: root}, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokField
	tokInvalid
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	src    string
	pos    int
	tok    token
	inCall bool
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("expression at offset %d: %s", p.tok.pos, fmt.Sprintf(format, args...))
}

// next advances to the next token. Inside an aggregate call the raw text up
// to the closing parenthesis is a single field token.
func (p *parser) next() {
	if p.inCall {
		end := strings.IndexByte(p.src[p.pos:], ')')
		if end < 0 {
			p.tok = token{kind: tokInvalid, text: p.src[p.pos:], pos: p.pos}
			p.pos = len(p.src)

			return
		}
		p.tok = token{kind: tokField, text: strings.TrimSpace(p.src[p.pos : p.pos+end]), pos: p.pos}
		p.pos += end
		p.inCall = false

		return
	}

	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: p.pos}
		return
	}

	start := p.pos
	c := p.src[p.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
			p.pos++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.pos], pos: start}
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		for p.pos < len(p.src) && (p.src[p.pos] >= 'a' && p.src[p.pos] <= 'z' || p.src[p.pos] >= 'A' && p.src[p.pos] <= 'Z') {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos], pos: start}
	case c == '+' || c == '-' || c == '*' || c == '/':
		p.pos++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
	case c == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	default:
		p.pos++
		p.tok = token{kind: tokInvalid, text: string(c), pos: start}
	}
}

// expr := term (("+" | "-") term)*
func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text[0]
		p.next()

		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}

	return left, nil
}

// term := factor (("*" | "/") factor)*
func (p *parser) term() (node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text[0]
		p.next()

		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}

	return left, nil
}

// factor := number | call | "(" expr ")"
func (p *parser) factor() (node, error) {
	switch p.tok.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", p.tok.text)
		}
		p.next()

		return literal(v), nil
	case tokIdent:
		return p.call()
	case tokLParen:
		p.next()

		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.next()

		return inner, nil
	case tokEOF:
		return nil, p.errorf("unexpected end of expression")
	default:
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
}

// call := ("sum" | "avg" | "count") "(" field? ")"
func (p *parser) call() (node, error) {
	op := models.AggregationOp(strings.ToLower(p.tok.text))
	if !op.Valid() {
		return nil, p.errorf("unknown function %q", p.tok.text)
	}

	p.next()
	if p.tok.kind != tokLParen {
		return nil, p.errorf("expected ( after %s", op)
	}

	p.inCall = true
	p.next()
	if p.tok.kind != tokField {
		return nil, p.errorf("missing closing parenthesis")
	}
	field := p.tok.text
	if field == "" && op != models.AggCount {
		return nil, p.errorf("%s requires a field", op)
	}

	p.next()
	if p.tok.kind != tokRParen {
		return nil, p.errorf("missing closing parenthesis")
	}
	p.next()

	return call{op: op, field: field}, nil
}
