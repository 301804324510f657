package condition

import (
	"strconv"
	"strings"
)

// node is a parsed expression element
type node interface {
	eval(env *env) (value, error)
}

type logicalNode struct {
	and         bool
	left, right node
	pos         int
}

type notNode struct {
	operand node
	pos     int
}

type compareNode struct {
	op          string
	left, right node
	pos         int
}

type literalNode struct {
	val value
}

type fieldNode struct {
	path []string
	raw  string
	pos  int
}

// Expr is a compiled condition expression, safe for concurrent use
type Expr struct {
	source string
	root   node
}

// String returns the original expression text
func (e *Expr) String() string {
	return e.source
}

// Fields returns the dotted field paths the expression reads, in order of appearance
func (e *Expr) Fields() []string {
	var out []string
	var walk func(n node)
	walk = func(n node) {
		switch t := n.(type) {
		case *logicalNode:
			walk(t.left)
			walk(t.right)
		case *notNode:
			walk(t.operand)
		case *compareNode:
			walk(t.left)
			walk(t.right)
		case *fieldNode:
			out = append(out, t.raw)
		}
	}
	walk(e.root)
	return out
}

type parser struct {
	src    string
	tokens []token
	pos    int
}

// Parse compiles an expression without evaluating it
func Parse(expression string) (*Expr, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, newError(expression, -1, "empty expression")
	}

	tokens, err := lex(expression)
	if err != nil {
		return nil, err
	}

	p := &parser{src: expression, tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return nil, newError(expression, tok.pos, "unexpected %s %q", tok.kind, tok.text)
	}

	return &Expr{source: expression, root: root}, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokOr {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: false, left: left, right: right, pos: op.pos}
	}

	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokAnd {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: true, left: left, right: right, pos: op.pos}
	}

	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		op := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand, pos: op.pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.peek().kind == tokLParen {
		open := p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, newError(p.src, open.pos, "missing closing parenthesis")
		}
		p.next()
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tokCmp {
		return left, nil
	}

	op := p.next()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	return &compareNode{op: op.text, left: left, right: right, pos: op.pos}, nil
}

func (p *parser) parseOperand() (node, error) {
	tok := p.next()

	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(strings.ReplaceAll(tok.text, "_", ""), 64)
		if err != nil {
			return nil, newError(p.src, tok.pos, "invalid number %q", tok.text)
		}
		return &literalNode{val: numberValue(f)}, nil

	case tokString:
		return &literalNode{val: stringValue(tok.text)}, nil

	case tokTrue:
		return &literalNode{val: boolValue(true)}, nil

	case tokFalse:
		return &literalNode{val: boolValue(false)}, nil

	case tokIdent:
		segments := strings.Split(tok.text, ".")
		for _, seg := range segments {
			if seg == "" {
				return nil, newError(p.src, tok.pos, "malformed field path %q", tok.text)
			}
		}
		return &fieldNode{path: segments, raw: tok.text, pos: tok.pos}, nil

	case tokEOF:
		return nil, newError(p.src, tok.pos, "unexpected end of expression")

	default:
		return nil, newError(p.src, tok.pos, "expected a value, found %s %q", tok.kind, tok.text)
	}
}
