package formula

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"price-relay/src/models"
)

// -----------------------------------------------------------------------------
// VariableTable
// -----------------------------------------------------------------------------

// SymbolPrices holds the live sides for one symbol.
type SymbolPrices struct {
	Buying  float64
	Selling float64
	Last    float64
}

// VariableTable maps a canonical symbol (and its bare base code, e.g. "USD"
// for "USD/TRY") to live prices.
type VariableTable map[string]SymbolPrices

// Set stores prices under the full symbol and, for CODE/QUOTE pairs, under
// the bare base code as well. The full form wins on collision.
func (t VariableTable) Set(symbol string, p SymbolPrices) {
	symbol = strings.ToUpper(symbol)
	t[symbol] = p

	if idx := strings.Index(symbol, "/"); idx > 0 {
		base := symbol[:idx]
		if _, exists := t[base]; !exists {
			t[base] = p
		}
	}
}

// Resolve returns the requested side for a symbol, trying the exact form
// first and falling back on nothing else.
func (t VariableTable) Resolve(symbol, side string) (float64, bool) {
	p, ok := t[strings.ToUpper(symbol)]
	if !ok {
		return 0, false
	}
	switch side {
	case SideBuying:
		return p.Buying, true
	case SideSelling:
		return p.Selling, true
	case SideLast:
		return p.Last, true
	}
	return 0, false
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

type ValidationResult struct {
	IsValid   bool
	Errors    []string
	Warnings  []string
	Variables []Variable
}

type Evaluation struct {
	Value         float64
	RoundedValue  float64
	UsedVariables map[string]float64
}

// -----------------------------------------------------------------------------

// Tokens that would only appear if someone tries to smuggle code into a
// formula. The tokenizer rejects them anyway as malformed variables; the
// denylist exists to produce a targeted error.
var unsafeTokens = []string{
	"eval", "exec", "function", "require", "import", "process",
	"system", "constructor", "prototype", "__",
}

var operatorRunRe = regexp.MustCompile(`[+\-*/^]{2,}`)
var caretRunRe = regexp.MustCompile(`\^{2,}`)

// -----------------------------------------------------------------------------

// Validate statically checks a formula. baseSymbol, when non-empty, only
// produces a warning if the formula never references it.
func Validate(input, baseSymbol string) ValidationResult {
	res := ValidationResult{}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		res.Errors = append(res.Errors, "formula is empty")
		return res
	}

	lower := strings.ToLower(trimmed)
	for _, tok := range unsafeTokens {
		if strings.Contains(lower, tok) {
			res.Errors = append(res.Errors, fmt.Sprintf("unsafe token %q", tok))
			return res
		}
	}

	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		res.Errors = append(res.Errors, "unbalanced parentheses")
		return res
	}

	// Adjacent operator runs are invalid, except a trailing unary minus
	// ("* -2") and pure exponent chains ("^^", collapsed to "^").
	compact := strings.ReplaceAll(trimmed, " ", "")
	for _, run := range operatorRunRe.FindAllString(compact, -1) {
		if caretRunRe.MatchString(run) && strings.Trim(run, "^") == "" {
			continue
		}
		if len(run) == 2 && run[1] == '-' {
			continue
		}
		res.Errors = append(res.Errors, fmt.Sprintf("invalid operator sequence %q", run))
		return res
	}

	root, vars, err := parse(normalize(trimmed))
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	if len(vars) == 0 {
		res.Errors = append(res.Errors, "formula references no price variables")
		return res
	}
	res.Variables = vars

	if baseSymbol != "" {
		found := false
		base := strings.ToUpper(baseSymbol)
		for _, v := range vars {
			if v.Symbol == base || strings.HasPrefix(base, v.Symbol+"/") || strings.HasPrefix(v.Symbol, base+"/") {
				found = true
				break
			}
		}
		if !found {
			res.Warnings = append(res.Warnings, fmt.Sprintf("formula does not reference base symbol %q", baseSymbol))
		}
	}

	// One live test evaluation with synthetic prices catches silent
	// construction errors (division by a zero subexpression and the like).
	synthetic := VariableTable{}
	for _, v := range vars {
		synthetic.Set(v.Symbol, SymbolPrices{Buying: 100, Selling: 101, Last: 100.5})
	}
	val, err := evalTree(root, synthetic, nil)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("test evaluation failed: %v", err))
		return res
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		res.Warnings = append(res.Warnings, "test evaluation produced a non-finite result")
	}

	res.IsValid = true
	return res
}

// -----------------------------------------------------------------------------

// Evaluate substitutes live prices and computes the formula. Fails on any
// unresolved variable or a non-finite result; it never silently defaults.
func Evaluate(input string, table VariableTable, rounding models.MRounding) (*Evaluation, error) {
	root, vars, err := parse(normalize(strings.TrimSpace(input)))
	if err != nil {
		return nil, err
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("formula references no price variables")
	}

	used := make(map[string]float64)
	val, err := evalTree(root, table, used)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return nil, fmt.Errorf("non-finite result")
	}

	return &Evaluation{
		Value:         val,
		RoundedValue:  RoundValue(val, rounding),
		UsedVariables: used,
	}, nil
}

// -----------------------------------------------------------------------------

// normalize collapses repeated '^' so validation and evaluation agree on
// exponent chains.
func normalize(input string) string {
	return caretRunRe.ReplaceAllString(input, "^")
}

func evalTree(root node, table VariableTable, used map[string]float64) (float64, error) {
	return root.eval(table, used)
}
