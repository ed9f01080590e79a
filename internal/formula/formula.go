// Package formula evaluates arithmetic over named peak heights, such as "A / (A + B) * 100".
//
// The grammar is numbers, variables, + - * /, unary minus and parentheses:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = "-" unary | "+" unary | factor
//	factor = number | ident | "(" expr ")"
//
// Expressions are parsed into a tree and evaluated against a variable table; nothing else runs.
package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// DefaultFormula is the ratio of the first variable to the sum of the first two, in percent
const DefaultFormula = "A / (A + B) * 100"

var (
	ErrUnknownVariable = errors.New("unknown variable")
	ErrDivisionByZero  = errors.New("division by zero")
)

// SyntaxError reports malformed input and the byte offset it was found at
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Msg)
}

// Expr is a parsed formula
type Expr struct {
	src  string
	root node
}

// String returns the source text the expression was parsed from
func (e *Expr) String() string { return e.src }

// Vars returns the variable names referenced by the expression, in order of first use
func (e *Expr) Vars() []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(n node)
	walk = func(n node) {
		switch n := n.(type) {
		case varNode:
			if !seen[string(n)] {
				seen[string(n)] = true
				names = append(names, string(n))
			}
		case unaryNode:
			walk(n.x)
		case binaryNode:
			walk(n.l)
			walk(n.r)
		}
	}
	walk(e.root)
	return names
}

// Eval evaluates the expression with the given variable values
func (e *Expr) Eval(env map[string]float64) (float64, error) {
	return e.root.eval(env)
}

// Eval parses and evaluates src in one step
func Eval(src string, env map[string]float64) (float64, error) {
	e, err := Parse(src)
	if err != nil {
		return 0, err
	}
	return e.Eval(env)
}

type node interface {
	eval(env map[string]float64) (float64, error)
}

type numNode float64

func (n numNode) eval(map[string]float64) (float64, error) { return float64(n), nil }

type varNode string

func (n varNode) eval(env map[string]float64) (float64, error) {
	v, ok := env[string(n)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, string(n))
	}
	return v, nil
}

type unaryNode struct {
	op byte
	x  node
}

func (n unaryNode) eval(env map[string]float64) (float64, error) {
	v, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -v, nil
	}
	return v, nil
}

type binaryNode struct {
	op   byte
	l, r node
}

func (n binaryNode) eval(env map[string]float64) (float64, error) {
	l, err := n.l.eval(env)
	if err != nil {
		return 0, err
	}
	r, err := n.r.eval(env)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	default:
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return l / r, nil
	}
}

// Parse parses src into an expression
func Parse(src string) (*Expr, error) {
	p := &parser{src: src}
	p.next()

	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &SyntaxError{Pos: p.tok.pos, Msg: fmt.Sprintf("unexpected %q", p.tok.text)}
	}
	return &Expr{src: src, root: root}, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokOp
	tokErr
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type parser struct {
	src string
	off int
	tok token
}

func (p *parser) next() {
	for p.off < len(p.src) && unicode.IsSpace(rune(p.src[p.off])) {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}

	c := p.src[p.off]
	switch {
	case strings.IndexByte("+-*/()", c) >= 0:
		p.off++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
	case c >= '0' && c <= '9' || c == '.':
		for p.off < len(p.src) && (isDigit(p.src[p.off]) || p.src[p.off] == '.') {
			p.off++
		}
		// exponent
		if p.off < len(p.src) && (p.src[p.off] == 'e' || p.src[p.off] == 'E') {
			end := p.off + 1
			if end < len(p.src) && (p.src[end] == '+' || p.src[end] == '-') {
				end++
			}
			if end < len(p.src) && isDigit(p.src[end]) {
				for end < len(p.src) && isDigit(p.src[end]) {
					end++
				}
				p.off = end
			}
		}
		p.tok = token{kind: tokNum, text: p.src[start:p.off], pos: start}
	case isIdentStart(c):
		for p.off < len(p.src) && isIdentPart(p.src[p.off]) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
	default:
		p.off++
		p.tok = token{kind: tokErr, text: string(c), pos: start}
	}
}

func (p *parser) expr() (node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text[0]
		p.next()
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) term() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text[0]
		p.next()
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) unary() (node, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "+") {
		op := p.tok.text[0]
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, x: x}, nil
	}
	return p.factor()
}

func (p *parser) factor() (node, error) {
	tok := p.tok
	switch tok.kind {
	case tokNum:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil || math.IsInf(v, 0) {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.text)}
		}
		p.next()
		return numNode(v), nil
	case tokIdent:
		p.next()
		return varNode(tok.text), nil
	case tokOp:
		if tok.text == "(" {
			p.next()
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			if p.tok.kind != tokOp || p.tok.text != ")" {
				return nil, &SyntaxError{Pos: p.tok.pos, Msg: "missing )"}
			}
			p.next()
			return x, nil
		}
	case tokEOF:
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected end of formula"}
	}
	return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
