package main

import (
	"strconv"
	"strings"
)

// accessorTables maps each accessor function to whether it yields a
// year-indexed table (true) or a scalar mapping (false).
var accessorTables = map[string]bool{
	TableVectorOutputs:  true,
	TableClimateOutputs: true,
	MapFloatInputs:      false,
	MapFloatOutputs:     false,
}

// formulaFunctions are the only non-accessor callables
var formulaFunctions = map[string]bool{
	"min": true,
	"max": true,
}

// formulaNode is one node of a parsed expression
type formulaNode interface {
	eval(ctx *evalContext) (Value, error)
	String() string
}

type numberNode struct {
	value  float64
	lexeme string
}

type accessorNode struct {
	table string
	name  string
}

type unaryNode struct {
	operand formulaNode
}

type binaryNode struct {
	op          string
	left, right formulaNode
}

type callNode struct {
	fn   string
	args []formulaNode
}

func (n *numberNode) String() string { return n.lexeme }

func (n *accessorNode) String() string {
	return n.table + "(" + strconv.Quote(n.name) + ")"
}

func (n *unaryNode) String() string {
	if _, ok := n.operand.(*binaryNode); ok {
		return "-(" + n.operand.String() + ")"
	}
	return "-" + n.operand.String()
}

func (n *binaryNode) String() string {
	left := n.left.String()
	right := n.right.String()
	if l, ok := n.left.(*binaryNode); ok && precedence(l.op) < precedence(n.op) {
		left = "(" + left + ")"
	}
	if r, ok := n.right.(*binaryNode); ok && precedence(r.op) <= precedence(n.op) {
		right = "(" + right + ")"
	}
	return left + " " + n.op + " " + right
}

func (n *callNode) String() string {
	parts := make([]string, len(n.args))
	for i, arg := range n.args {
		parts[i] = arg.String()
	}
	return n.fn + "(" + strings.Join(parts, ", ") + ")"
}

func precedence(op string) int {
	switch op {
	case "+", "-":
		return 10
	case "*", "/":
		return 20
	}
	return 0
}

// lbp returns the left binding power of an infix token
func formulaLBP(t formulaTokenType) (int, string, bool) {
	switch t {
	case tokPlus:
		return 10, "+", true
	case tokMinus:
		return 10, "-", true
	case tokStar:
		return 20, "*", true
	case tokSlash:
		return 20, "/", true
	}
	return 0, "", false
}

const unaryBP = 30

// AccessorRef is one accessor call found in a formula
type AccessorRef struct {
	Table string `json:"table"`
	Name  string `json:"name"`
}

// Formula is a compiled expression, safe to evaluate against many bundles
type Formula struct {
	source    string
	root      formulaNode
	accessors []AccessorRef
}

// CompileFormula parses an expression into a Formula.
// Names other than the accessor functions, min and max are rejected.
func CompileFormula(expr string) (*Formula, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, formulaErrorf(MalformedExpression, expr, "empty expression")
	}
	toks, err := tokenizeFormula(expr)
	if err != nil {
		return nil, err
	}
	p := &formulaParser{toks: toks, src: expr}
	root, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != tokEOF {
		return nil, p.errorf(tok, "unexpected %s after end of expression", tok.Type)
	}
	return &Formula{source: expr, root: root, accessors: p.accessors}, nil
}

// Source returns the expression as written
func (f *Formula) Source() string { return f.source }

// String returns the canonical rendering of the parsed expression
func (f *Formula) String() string { return f.root.String() }

// Accessors lists the accessor calls in source order
func (f *Formula) Accessors() []AccessorRef {
	return append([]AccessorRef(nil), f.accessors...)
}

// UsesTables reports whether any accessor reads a year-indexed table
func (f *Formula) UsesTables() bool {
	for _, ref := range f.accessors {
		if accessorTables[ref.Table] {
			return true
		}
	}
	return false
}

type formulaParser struct {
	toks      []formulaToken
	i         int
	src       string
	accessors []AccessorRef
}

func (p *formulaParser) peek() formulaToken {
	if p.i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}

func (p *formulaParser) advance() formulaToken {
	tok := p.peek()
	if p.i < len(p.toks) {
		p.i++
	}
	return tok
}

func (p *formulaParser) need(t formulaTokenType) (formulaToken, error) {
	tok := p.peek()
	if tok.Type != t {
		return formulaToken{}, p.errorf(tok, "expected %s, found %s", t, tok.Type)
	}
	p.i++
	return tok, nil
}

func (p *formulaParser) errorf(tok formulaToken, format string, args ...any) error {
	return formulaErrorf(MalformedExpression, p.src, "at offset %d: "+format, append([]any{tok.Pos}, args...)...)
}

func (p *formulaParser) expr(minBP int) (formulaNode, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		bp, op, ok := formulaLBP(p.peek().Type)
		if !ok || bp <= minBP {
			return left, nil
		}
		p.advance()
		right, err := p.expr(bp)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) prefix() (formulaNode, error) {
	tok := p.advance()
	switch tok.Type {
	case tokNumber:
		return &numberNode{value: tok.Number, lexeme: tok.Lexeme}, nil
	case tokMinus:
		operand, err := p.expr(unaryBP)
		if err != nil {
			return nil, err
		}
		return &unaryNode{operand: operand}, nil
	case tokPlus:
		return p.expr(unaryBP)
	case tokLParen:
		inner, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.need(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		return p.call(tok)
	case tokEOF:
		return nil, p.errorf(tok, "expression ends where an operand was expected")
	}
	return nil, p.errorf(tok, "unexpected %s", tok.Type)
}

func (p *formulaParser) call(name formulaToken) (formulaNode, error) {
	_, isAccessor := accessorTables[name.Lexeme]
	if !isAccessor && !formulaFunctions[name.Lexeme] {
		return nil, p.errorf(name, "name %q is not allowed", name.Lexeme)
	}
	if _, err := p.need(tokLParen); err != nil {
		return nil, err
	}

	if isAccessor {
		arg := p.peek()
		if arg.Type != tokString {
			return nil, p.errorf(arg, "%s expects a quoted variable name", name.Lexeme)
		}
		p.advance()
		if p.peek().Type == tokComma {
			return nil, formulaErrorf(OperatorArityMismatch, p.src, "%s takes exactly one argument", name.Lexeme)
		}
		if _, err := p.need(tokRParen); err != nil {
			return nil, err
		}
		p.accessors = append(p.accessors, AccessorRef{Table: name.Lexeme, Name: arg.Lexeme})
		return &accessorNode{table: name.Lexeme, name: arg.Lexeme}, nil
	}

	var args []formulaNode
	if p.peek().Type != tokRParen {
		for {
			arg, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().Type != tokComma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.need(tokRParen); err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, formulaErrorf(OperatorArityMismatch, p.src, "%s takes exactly two arguments, got %d", name.Lexeme, len(args))
	}
	return &callNode{fn: name.Lexeme, args: args}, nil
}
