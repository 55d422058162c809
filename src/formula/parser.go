package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// -----------------------------------------------------------------------------
// Expression grammar (recursive descent, no general-purpose evaluator):
//
//   expr    := term (('+' | '-') term)*
//   term    := unary (('*' | '/') unary)*
//   unary   := '-' unary | power
//   power   := atom ('^' unary)?          right-associative
//   atom    := NUMBER | VARIABLE | '(' expr ')'
//
// A VARIABLE is a symbol token (bare code or CODE/QUOTE pair) immediately
// followed by '_' and a side token. Legacy sides "alis"/"satis" map to the
// canonical "buying"/"selling".
// -----------------------------------------------------------------------------

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokVariable
	tokOperator
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	v    Variable
	pos  int
}

// Variable is one resolved price reference inside a formula.
type Variable struct {
	Raw    string // token as written, e.g. "USD_alis"
	Symbol string // "USD" or "XAU/TRY"
	Side   string // canonical: buying | selling | last
}

// -----------------------------------------------------------------------------

var sideTokens = map[string]string{
	"alis":    SideBuying, // legacy
	"satis":   SideSelling,
	"buying":  SideBuying,
	"selling": SideSelling,
	"last":    SideLast,
}

const (
	SideBuying  = "buying"
	SideSelling = "selling"
	SideLast    = "last"
)

// -----------------------------------------------------------------------------

func tokenize(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++

		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++

		case strings.ContainsRune("+-*/^", r):
			toks = append(toks, token{kind: tokOperator, text: string(r), pos: i})
			i++

		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: num, pos: start})

		case unicode.IsLetter(r):
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '/') {
				i++
			}
			text := string(runes[start:i])
			v, err := parseVariable(text)
			if err != nil {
				return nil, fmt.Errorf("%v at position %d", err, start)
			}
			toks = append(toks, token{kind: tokVariable, text: text, v: v, pos: start})

		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", string(r), i)
		}
	}

	return toks, nil
}

// -----------------------------------------------------------------------------

// parseVariable splits "SYMBOL_side" into its parts. The side is the final
// underscore-delimited token; everything before it is the symbol.
func parseVariable(text string) (Variable, error) {
	idx := strings.LastIndex(text, "_")
	if idx <= 0 || idx == len(text)-1 {
		return Variable{}, fmt.Errorf("invalid price variable %q (expected SYMBOL_side)", text)
	}

	symbol := text[:idx]
	rawSide := strings.ToLower(text[idx+1:])
	side, ok := sideTokens[rawSide]
	if !ok {
		return Variable{}, fmt.Errorf("unknown price side %q in %q", rawSide, text)
	}

	if parts := strings.Split(symbol, "/"); len(parts) > 2 {
		return Variable{}, fmt.Errorf("invalid symbol %q in %q", symbol, text)
	}
	for _, part := range strings.Split(symbol, "/") {
		if part == "" {
			return Variable{}, fmt.Errorf("invalid symbol %q in %q", symbol, text)
		}
	}

	return Variable{Raw: text, Symbol: strings.ToUpper(symbol), Side: side}, nil
}

// -----------------------------------------------------------------------------
// AST
// -----------------------------------------------------------------------------

type node interface {
	eval(table VariableTable, used map[string]float64) (float64, error)
}

type numberNode struct{ value float64 }

type variableNode struct{ v Variable }

type unaryNode struct{ operand node }

type binaryNode struct {
	op          string
	left, right node
}

func (n *numberNode) eval(VariableTable, map[string]float64) (float64, error) {
	return n.value, nil
}

func (n *variableNode) eval(table VariableTable, used map[string]float64) (float64, error) {
	val, ok := table.Resolve(n.v.Symbol, n.v.Side)
	if !ok {
		return 0, fmt.Errorf("unresolved variable %q", n.v.Raw)
	}
	if used != nil {
		used[n.v.Raw] = val
	}
	return val, nil
}

func (n *unaryNode) eval(table VariableTable, used map[string]float64) (float64, error) {
	v, err := n.operand.eval(table, used)
	if err != nil {
		return 0, err
	}
	return -v, nil
}

func (n *binaryNode) eval(table VariableTable, used map[string]float64) (float64, error) {
	l, err := n.left.eval(table, used)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(table, used)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		return l / r, nil
	case "^":
		return math.Pow(l, r), nil
	}
	return 0, fmt.Errorf("unknown operator %q", n.op)
}

// -----------------------------------------------------------------------------
// Parser
// -----------------------------------------------------------------------------

type parser struct {
	toks []token
	pos  int
}

func parse(input string) (node, []Variable, error) {
	toks, err := tokenize(input)
	if err != nil {
		return nil, nil, err
	}
	if len(toks) == 0 {
		return nil, nil, fmt.Errorf("empty formula")
	}

	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if p.pos != len(p.toks) {
		t := p.toks[p.pos]
		return nil, nil, fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
	}

	var vars []Variable
	seen := make(map[string]bool)
	for _, t := range toks {
		if t.kind == tokVariable && !seen[t.v.Raw] {
			seen[t.v.Raw] = true
			vars = append(vars, t.v)
		}
	}
	return root, vars, nil
}

// -----------------------------------------------------------------------------

func (p *parser) peek() *token {
	if p.pos >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos]
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t == nil || t.kind != tokOperator || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: t.text, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t == nil || t.kind != tokOperator || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: t.text, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	t := p.peek()
	if t != nil && t.kind == tokOperator && t.text == "-" {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (node, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	if t != nil && t.kind == tokOperator && t.text == "^" {
		p.pos++
		// Right-associative exponent chain
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "^", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) parseAtom() (node, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of formula")
	}

	switch t.kind {
	case tokNumber:
		p.pos++
		return &numberNode{value: t.num}, nil

	case tokVariable:
		p.pos++
		return &variableNode{v: t.v}, nil

	case tokLParen:
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closing := p.peek()
		if closing == nil || closing.kind != tokRParen {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		p.pos++
		return inner, nil
	}

	return nil, fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
}
