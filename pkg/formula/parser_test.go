package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scopeWith(p *Parser, vars map[string]any) map[string]any {
	scope := p.Functions()
	for k, v := range vars {
		scope[k] = v
	}
	return scope
}

func TestParser_Evaluate_SimpleAddition(t *testing.T) {
	parser := NewParser()

	result, err := parser.Evaluate("a + b", map[string]any{
		"a": 10.0,
		"b": 5.0,
	})

	require.NoError(t, err)
	assert.Equal(t, 15.0, result)
}

func TestParser_Evaluate_ComplexFormula(t *testing.T) {
	parser := NewParser()

	// Simulate real process-cost formula
	expression := "(electricity_kwh * rate_per_kwh) + (labor_hours * labor_rate) + overhead"
	params := map[string]any{
		"electricity_kwh": 100.0,
		"rate_per_kwh":    1.5,
		"labor_hours":     8.0,
		"labor_rate":      25.0,
		"overhead":        50.0,
	}

	result, err := parser.Evaluate(expression, params)

	require.NoError(t, err)
	// 100*1.5 + 8*25 + 50 = 150 + 200 + 50 = 400
	assert.Equal(t, 400.0, result)
}

func TestParser_Evaluate_WithPercentage(t *testing.T) {
	parser := NewParser()

	result, err := parser.Evaluate("base_cost * (1 + profit_margin / 100)", map[string]any{
		"base_cost":     1000.0,
		"profit_margin": 15.0,
	})

	require.NoError(t, err)
	assert.InDelta(t, 1150.0, result, 1e-9)
}

func TestParser_Evaluate_NonNumericResults(t *testing.T) {
	parser := NewParser()

	result, err := parser.Evaluate(`grade + "-A"`, map[string]any{"grade": "SS304"})
	require.NoError(t, err)
	assert.Equal(t, "SS304-A", result)

	result, err = parser.Evaluate("qty > 10", map[string]any{"qty": 15.0})
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestParser_Evaluate_IF(t *testing.T) {
	parser := NewParser()
	expression := "IF(Qty > 10, Qty * 0.9, Qty)"

	result, err := parser.Evaluate(expression, scopeWith(parser, map[string]any{"Qty": 15.0}))
	require.NoError(t, err)
	assert.InDelta(t, 13.5, result, 1e-9)

	result, err = parser.Evaluate(expression, scopeWith(parser, map[string]any{"Qty": 5.0}))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, result, 1e-9)
}

func TestParser_Evaluate_IFTruthiness(t *testing.T) {
	parser := NewParser()

	testCases := []struct {
		name string
		cond any
		want any
	}{
		{name: "non-zero number", cond: 2.0, want: "yes"},
		{name: "zero", cond: 0.0, want: "no"},
		{name: "empty string", cond: "", want: "no"},
		{name: "text", cond: "x", want: "yes"},
		{name: "bool", cond: false, want: "no"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := parser.Evaluate(`IF(c, "yes", "no")`, scopeWith(parser, map[string]any{"c": tc.cond}))
			require.NoError(t, err)
			assert.Equal(t, tc.want, result)
		})
	}
}

func TestParser_Evaluate_MathFunctions(t *testing.T) {
	parser := NewParser()

	testCases := []struct {
		expression string
		expected   float64
	}{
		{"ROUND(x, 2)", 3.14},
		{"MIN(x, 2)", 2},
		{"MAX(x, 2)", 3.14159},
		{"ABS(0 - x)", 3.14159},
		{"CEIL(x)", 4},
		{"FLOOR(x)", 3},
	}

	for _, tc := range testCases {
		t.Run(tc.expression, func(t *testing.T) {
			result, err := parser.Evaluate(tc.expression, scopeWith(parser, map[string]any{"x": 3.14159}))
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, result, 1e-9)
		})
	}
}

func TestParser_Evaluate_FunctionOnText(t *testing.T) {
	parser := NewParser()

	_, err := parser.Evaluate("ROUND(x, 2)", scopeWith(parser, map[string]any{"x": "abc"}))

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, KindRuntime, evalErr.Kind)
}

func TestParser_Evaluate_MissingParam(t *testing.T) {
	parser := NewParser()

	_, err := parser.Evaluate("a + b", map[string]any{
		"a": 10.0,
		// "b" is missing
	})

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, KindUnbound, evalErr.Kind)
	assert.Contains(t, err.Error(), "b")
}

func TestParser_Evaluate_InvalidExpression(t *testing.T) {
	parser := NewParser()

	_, err := parser.Evaluate("((a + b", map[string]any{
		"a": 10.0,
		"b": 5.0,
	})

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, KindSyntax, evalErr.Kind)
}

func TestParser_Evaluate_DoesNotMutateScope(t *testing.T) {
	parser := NewParser()
	scope := map[string]any{"a": 1.0}

	_, err := parser.Evaluate("a + 1", scope)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, scope)
}

func TestParser_ValidateSyntax(t *testing.T) {
	parser := NewParser()

	assert.NoError(t, parser.ValidateSyntax("unknown_name * 2 + IF(x, 1, 2)"))
	assert.Error(t, parser.ValidateSyntax("2 * (3"))
}

func TestIsIdentifier(t *testing.T) {
	for _, ident := range []string{"Qty", "Unit_Price", "x1", "_tmp", "IF"} {
		assert.True(t, IsIdentifier(ident), ident)
	}
	for _, ident := range []string{"", "true", "false", "nil", "in", "not", "and", "or", "2nd_Pass", "1", "a b"} {
		assert.False(t, IsIdentifier(ident), ident)
	}
}

func TestParser_Evaluate_ProcessFormulas(t *testing.T) {
	parser := NewParser()

	testCases := []struct {
		name       string
		expression string
		params     map[string]any
		expected   float64
	}{
		{
			name:       "Machining Cost",
			expression: "(cycle_time_min / 60) * machine_rate + setup_cost / batch_qty",
			params: map[string]any{
				"cycle_time_min": 12.0,
				"machine_rate":   45.0,
				"setup_cost":     300.0,
				"batch_qty":      50.0,
			},
			expected: 15.0, // 0.2*45 + 6 = 9 + 6
		},
		{
			name:       "Sheet Metal Material",
			expression: "length_mm * width_mm * thickness_mm * density / 1000000 * price_per_kg",
			params: map[string]any{
				"length_mm":    500.0,
				"width_mm":     200.0,
				"thickness_mm": 2.0,
				"density":      7.85,
				"price_per_kg": 1.2,
			},
			expected: 1.884, // 200000 mm3 * 7.85 / 1e6 = 1.57 kg * 1.2
		},
		{
			name:       "Painting",
			expression: "surface_m2 * coats * paint_rate + IF(surface_m2 > 10, 0, min_charge)",
			params: map[string]any{
				"surface_m2": 4.0,
				"coats":      2.0,
				"paint_rate": 3.5,
				"min_charge": 20.0,
			},
			expected: 48.0, // 28 + 20
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := parser.Evaluate(tc.expression, scopeWith(parser, tc.params))
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, result, 0.001)
		})
	}
}

func BenchmarkParser_Evaluate(b *testing.B) {
	parser := NewParser()
	expression := "(electricity_kwh * rate_per_kwh) + (labor_hours * labor_rate) + overhead"
	params := map[string]any{
		"electricity_kwh": 100.0,
		"rate_per_kwh":    1.5,
		"labor_hours":     8.0,
		"labor_rate":      25.0,
		"overhead":        50.0,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parser.Evaluate(expression, params)
	}
}
