package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// ErrorKind classifies why an expression could not be evaluated.
type ErrorKind string

const (
	KindSyntax  ErrorKind = "syntax"
	KindUnbound ErrorKind = "unbound"
	KindType    ErrorKind = "type"
	KindRuntime ErrorKind = "runtime"
)

// EvaluationError is returned for any expression that fails to evaluate.
type EvaluationError struct {
	Kind       ErrorKind
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s error in '%s': %v", e.Kind, e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Parser evaluates formula expressions against a variable scope.
type Parser struct {
	functions map[string]any
}

// NewParser creates a new formula parser with the built-in spreadsheet-style
// functions (IF, ROUND, MIN, MAX, ABS, CEIL, FLOOR).
func NewParser() *Parser {
	return &Parser{functions: builtinFunctions()}
}

// Functions returns a copy of the custom functions that callers bind into
// every evaluation scope.
func (p *Parser) Functions() map[string]any {
	out := make(map[string]any, len(p.functions))
	for k, v := range p.functions {
		out[k] = v
	}
	return out
}

// Evaluate compiles expression against scope and runs it. The scope is only
// read. Results are returned as produced by the evaluator, without rounding.
func (p *Parser) Evaluate(expression string, scope map[string]any) (any, error) {
	if _, err := parser.Parse(expression); err != nil {
		return nil, &EvaluationError{Kind: KindSyntax, Expression: expression, Err: err}
	}

	// Compile with the actual scope as the environment
	program, err := expr.Compile(expression, expr.Env(scope))
	if err != nil {
		kind := KindType
		if strings.Contains(err.Error(), "unknown name") {
			kind = KindUnbound
		}
		return nil, &EvaluationError{Kind: kind, Expression: expression, Err: err}
	}

	result, err := expr.Run(program, scope)
	if err != nil {
		return nil, &EvaluationError{Kind: KindRuntime, Expression: expression, Err: err}
	}
	return result, nil
}

// ValidateSyntax checks that expression parses, without resolving names.
func (p *Parser) ValidateSyntax(expression string) error {
	if _, err := parser.Parse(expression); err != nil {
		return &EvaluationError{Kind: KindSyntax, Expression: expression, Err: err}
	}
	return nil
}

// IsIdentifier reports whether ident parses as a single variable reference.
// Keywords, literals and digit-leading names do not.
func IsIdentifier(ident string) bool {
	tree, err := parser.Parse(ident)
	if err != nil {
		return false
	}
	node, ok := tree.Node.(*ast.IdentifierNode)
	return ok && node.Value == ident
}

// builtinFunctions are plain Go funcs placed in the scope map. Panics raised
// here are recovered by the expr VM and surface as runtime errors.
func builtinFunctions() map[string]any {
	return map[string]any{
		// IF is an eager ternary: both branches arrive already evaluated.
		"IF": func(cond, whenTrue, whenFalse any) any {
			if truthy(cond) {
				return whenTrue
			}
			return whenFalse
		},
		"ROUND": func(x, digits any) float64 {
			pow := math.Pow(10, mustFloat("ROUND", digits))
			return math.Round(mustFloat("ROUND", x)*pow) / pow
		},
		"MIN": func(a, b any) float64 {
			return math.Min(mustFloat("MIN", a), mustFloat("MIN", b))
		},
		"MAX": func(a, b any) float64 {
			return math.Max(mustFloat("MAX", a), mustFloat("MAX", b))
		},
		"ABS": func(x any) float64 {
			return math.Abs(mustFloat("ABS", x))
		},
		"CEIL": func(x any) float64 {
			return math.Ceil(mustFloat("CEIL", x))
		},
		"FLOOR": func(x any) float64 {
			return math.Floor(mustFloat("FLOOR", x))
		},
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		if f, ok := ToFloat(val); ok {
			return f != 0
		}
		return true
	}
}

func mustFloat(fn string, v any) float64 {
	f, ok := ToFloat(v)
	if !ok {
		panic(fmt.Errorf("%s: expected a number, got %T", fn, v))
	}
	return f
}

// ToFloat converts any Go numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
