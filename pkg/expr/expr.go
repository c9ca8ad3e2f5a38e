// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package expr implements the safe, non-Turing-complete expression
// evaluator used by hook conditions, plus template interpolation. The
// grammar admits literals, dotted path access, comparison, logical
// operators, membership, and arithmetic. Function calls, attribute access
// on methods, assignment, and imports are all rejected at parse time.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ExpressionError reports a malformed expression; directives carrying one
// are rejected at load time.
type ExpressionError struct {
	Expr   string
	Reason string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expr, e.Reason)
}

// ============================================================================
// Lexer
// ============================================================================

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent // bare identifier or dotted path segment start
	tokOp    // operator or punctuation
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.pos++
		case ch >= '0' && ch <= '9':
			l.lexNumber()
		case ch == '"' || ch == '\'':
			if err := l.lexString(ch); err != nil {
				return nil, err
			}
		case isIdentStart(rune(ch)):
			l.lexIdent()
		default:
			if err := l.lexOp(); err != nil {
				return nil, err
			}
		}
	}
	l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
	return l.toks, nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (l *lexer) lexNumber() {
	start := l.pos
	seenDot := false
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if ch >= '0' && ch <= '9' {
			l.pos++
			continue
		}
		// A dot is part of the number only when followed by a digit;
		// otherwise it belongs to a path like items.0.name.
		if ch == '.' && !seenDot && l.pos+1 < len(l.src) &&
			l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
			seenDot = true
			l.pos++
			continue
		}
		break
	}
	l.toks = append(l.toks, token{kind: tokNumber, text: l.src[start:l.pos], pos: start})
}

func (l *lexer) lexString(quote byte) error {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if ch == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			sb.WriteByte(l.src[l.pos])
			l.pos++
			continue
		}
		if ch == quote {
			l.pos++
			l.toks = append(l.toks, token{kind: tokString, text: sb.String(), pos: start})
			return nil
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return &ExpressionError{Expr: l.src, Reason: "unterminated string literal"}
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	l.toks = append(l.toks, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})
}

var twoCharOps = map[string]bool{
	"==": true, "!=": true, "<=": true, ">=": true,
}

func (l *lexer) lexOp() error {
	if l.pos+1 < len(l.src) && twoCharOps[l.src[l.pos:l.pos+2]] {
		l.toks = append(l.toks, token{kind: tokOp, text: l.src[l.pos : l.pos+2], pos: l.pos})
		l.pos += 2
		return nil
	}
	ch := l.src[l.pos]
	switch ch {
	case '<', '>', '+', '-', '*', '/', '(', ')', '.', '[', ']':
		l.toks = append(l.toks, token{kind: tokOp, text: string(ch), pos: l.pos})
		l.pos++
		return nil
	case '=':
		return &ExpressionError{Expr: l.src, Reason: "assignment is not allowed"}
	}
	return &ExpressionError{Expr: l.src, Reason: fmt.Sprintf("unexpected character %q", ch)}
}

// ============================================================================
// Parser — recursive descent over: or → and → not → comparison →
// additive → multiplicative → unary → primary
// ============================================================================

type node interface {
	eval(ctx map[string]interface{}) (interface{}, error)
}

type litNode struct{ val interface{} }

type pathNode struct{ segments []string }

type unaryNode struct {
	op    string // "not", "-", "exists"
	child node
}

type binNode struct {
	op          string
	left, right node
}

type parser struct {
	src  string
	toks []token
	i    int
}

// Parse compiles an expression. All grammar violations (function calls,
// assignment, unknown tokens) surface as *ExpressionError.
func Parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, p.errf("unexpected trailing token %q", p.cur().text)
	}
	return n, nil
}

func (p *parser) cur() token  { return p.toks[p.i] }
func (p *parser) next() token { t := p.toks[p.i]; p.i++; return t }

func (p *parser) errf(format string, args ...interface{}) error {
	return &ExpressionError{Expr: p.src, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) acceptIdent(word string) bool {
	if p.cur().kind == tokIdent && p.cur().text == word {
		p.i++
		return true
	}
	return false
}

func (p *parser) acceptOp(op string) bool {
	if p.cur().kind == tokOp && p.cur().text == op {
		p.i++
		return true
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.acceptIdent("not") {
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "not", child: child}, nil
	}
	if p.acceptIdent("exists") {
		child, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "exists", child: child}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.acceptOp("=="):
			op = "=="
		case p.acceptOp("!="):
			op = "!="
		case p.acceptOp("<="):
			op = "<="
		case p.acceptOp(">="):
			op = ">="
		case p.acceptOp("<"):
			op = "<"
		case p.acceptOp(">"):
			op = ">"
		case p.acceptIdent("in"):
			op = "in"
		case p.cur().kind == tokIdent && p.cur().text == "not" &&
			p.i+1 < len(p.toks) && p.toks[p.i+1].kind == tokIdent && p.toks[p.i+1].text == "in":
			p.i += 2
			op = "not in"
		default:
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &binNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("+"):
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &binNode{op: "+", left: left, right: right}
		case p.acceptOp("-"):
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &binNode{op: "-", left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("*"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &binNode{op: "*", left: left, right: right}
		case p.acceptOp("/"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &binNode{op: "/", left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.acceptOp("-") {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "-", child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.cur()
	switch t.kind {
	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errf("bad number %q", t.text)
		}
		return &litNode{val: f}, nil
	case tokString:
		p.next()
		return &litNode{val: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			p.next()
			return &litNode{val: true}, nil
		case "false":
			p.next()
			return &litNode{val: false}, nil
		case "null", "none":
			p.next()
			return &litNode{val: nil}, nil
		}
		return p.parsePath()
	case tokOp:
		if t.text == "(" {
			p.next()
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.acceptOp(")") {
				return nil, p.errf("missing closing parenthesis")
			}
			return inner, nil
		}
	}
	return nil, p.errf("unexpected token %q", t.text)
}

func (p *parser) parsePath() (node, error) {
	var segs []string
	t := p.next()
	segs = append(segs, t.text)
	for p.acceptOp(".") {
		nt := p.cur()
		if nt.kind != tokIdent && nt.kind != tokNumber {
			return nil, p.errf("expected path segment after '.'")
		}
		p.next()
		segs = append(segs, nt.text)
	}
	// A path followed by '(' would be a function call.
	if p.cur().kind == tokOp && p.cur().text == "(" {
		return nil, p.errf("function calls are not allowed")
	}
	if p.cur().kind == tokOp && p.cur().text == "[" {
		return nil, p.errf("subscript access is not allowed; use dotted numeric segments")
	}
	return &pathNode{segments: segs}, nil
}

// ============================================================================
// Evaluation
// ============================================================================

func (n *litNode) eval(map[string]interface{}) (interface{}, error) {
	return n.val, nil
}

func (n *pathNode) eval(ctx map[string]interface{}) (interface{}, error) {
	return Resolve(ctx, n.segments), nil
}

// Resolve walks a dotted path through maps and slices; numeric segments
// index lists. A missing path yields nil.
func Resolve(ctx map[string]interface{}, segments []string) interface{} {
	var cur interface{} = ctx
	for _, seg := range segments {
		switch v := cur.(type) {
		case map[string]interface{}:
			cur = v[seg]
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			cur = v[idx]
		default:
			return nil
		}
	}
	return cur
}

func (n *unaryNode) eval(ctx map[string]interface{}) (interface{}, error) {
	switch n.op {
	case "exists":
		v, err := n.child.eval(ctx)
		if err != nil {
			return nil, err
		}
		return v != nil, nil
	case "not":
		v, err := n.child.eval(ctx)
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil
	case "-":
		v, err := n.child.eval(ctx)
		if err != nil {
			return nil, err
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return -f, nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.op)
}

func (n *binNode) eval(ctx map[string]interface{}) (interface{}, error) {
	// Short-circuit logical operators.
	switch n.op {
	case "and":
		l, err := n.left.eval(ctx)
		if err != nil {
			return nil, err
		}
		if !Truthy(l) {
			return false, nil
		}
		r, err := n.right.eval(ctx)
		if err != nil {
			return nil, err
		}
		return Truthy(r), nil
	case "or":
		l, err := n.left.eval(ctx)
		if err != nil {
			return nil, err
		}
		if Truthy(l) {
			return true, nil
		}
		r, err := n.right.eval(ctx)
		if err != nil {
			return nil, err
		}
		return Truthy(r), nil
	}

	l, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		if l == nil || r == nil {
			return false, nil
		}
		return equal(l, r), nil
	case "!=":
		if l == nil || r == nil {
			return false, nil
		}
		return !equal(l, r), nil
	case "<", ">", "<=", ">=":
		// Comparisons with null on either side are false.
		if l == nil || r == nil {
			return false, nil
		}
		return compare(n.op, l, r)
	case "in":
		return contains(r, l), nil
	case "not in":
		return !contains(r, l), nil
	case "+", "-", "*", "/":
		return arith(n.op, l, r)
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func equal(l, r interface{}) bool {
	if lf, ok := toFloat(l); ok {
		if rf, ok := toFloat(r); ok {
			return lf == rf
		}
		return false
	}
	return l == r
}

func compare(op string, l, r interface{}) (interface{}, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case ">":
			return lf > rf, nil
		case "<=":
			return lf <= rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	ls, lok2 := l.(string)
	rs, rok2 := r.(string)
	if lok2 && rok2 {
		switch op {
		case "<":
			return ls < rs, nil
		case ">":
			return ls > rs, nil
		case "<=":
			return ls <= rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return false, nil
}

func contains(container, item interface{}) bool {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		return ok && strings.Contains(c, s)
	case []interface{}:
		for _, e := range c {
			if equal(e, item) {
				return true
			}
		}
	case map[string]interface{}:
		s, ok := item.(string)
		if !ok {
			return false
		}
		_, present := c[s]
		return present
	}
	return false
}

func arith(op string, l, r interface{}) (interface{}, error) {
	if op == "+" {
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("arithmetic on non-numeric operands %T and %T", l, r)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator %q", op)
}

// Truthy converts an evaluation result to a condition outcome.
func Truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case []interface{}:
		return len(x) > 0
	case map[string]interface{}:
		return len(x) > 0
	}
	return true
}

// Eval parses and evaluates an expression against a context.
func Eval(src string, ctx map[string]interface{}) (interface{}, error) {
	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return n.eval(ctx)
}

// EvalCondition evaluates a hook condition to a boolean. An empty
// condition always matches.
func EvalCondition(src string, ctx map[string]interface{}) (bool, error) {
	if strings.TrimSpace(src) == "" {
		return true, nil
	}
	v, err := Eval(src, ctx)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}
