package calculator

import (
	"fmt"
	"strings"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/pkg/formula"
)

const (
	maxFields   = 200
	maxFormulas = 200
	maxNameLen  = 100
)

// ValidateDefinition checks a calculator before it is stored. Structural
// problems are InvalidRequest; names that clash with each other or with a
// built-in function are Conflict.
func ValidateDefinition(parser *formula.Parser, calc *entity.Calculator, maxExpressionLength int) error {
	if strings.TrimSpace(calc.Name) == "" {
		return apperror.InvalidRequest("calculator name cannot be empty")
	}
	if len(calc.Fields) > maxFields {
		return apperror.InvalidRequest("calculator has %d fields, maximum allowed is %d", len(calc.Fields), maxFields)
	}
	if len(calc.Formulas) > maxFormulas {
		return apperror.InvalidRequest("calculator has %d formulas, maximum allowed is %d", len(calc.Formulas), maxFormulas)
	}

	builtins := parser.Functions()

	names := calc.FieldNames()
	fieldNames := make(map[string]bool, len(calc.Fields))
	idents := make(map[string]string, len(calc.Fields))
	for _, f := range calc.Fields {
		if err := validateName(f.Name); err != nil {
			return apperror.InvalidRequest("invalid field name %q: %v", f.Name, err)
		}
		if strings.TrimSpace(string(f.Type)) == "" {
			return apperror.InvalidRequest("field %q has no type", f.Name)
		}
		if fieldNames[f.Name] {
			return apperror.Conflict("duplicate field name %q", f.Name)
		}
		fieldNames[f.Name] = true

		ident := formula.Normalize(f.Name)
		if !formula.IsIdentifier(ident) {
			return apperror.InvalidRequest("field name %q cannot be referenced in expressions as %q", f.Name, ident)
		}
		if other, ok := idents[ident]; ok {
			return apperror.Conflict("field names %q and %q both normalize to %q", other, f.Name, ident)
		}
		idents[ident] = f.Name

		if _, ok := builtins[ident]; ok {
			return apperror.Conflict("field name %q shadows built-in function", f.Name)
		}
		if f.IsCalculated() {
			expression := formula.RewriteBare(formula.RewriteBraced(f.StoredValue()), names)
			if err := validateExpression(parser, expression, maxExpressionLength); err != nil {
				return apperror.InvalidRequest("field %q: %v", f.Name, err)
			}
		}
	}

	formulaNames := make(map[string]bool, len(calc.Formulas))
	for _, fm := range calc.Formulas {
		if err := validateName(fm.Name); err != nil {
			return apperror.InvalidRequest("invalid formula name %q: %v", fm.Name, err)
		}
		if formulaNames[fm.Name] {
			return apperror.Conflict("duplicate formula name %q", fm.Name)
		}
		formulaNames[fm.Name] = true

		if _, ok := builtins[fm.Name]; ok {
			return apperror.Conflict("formula name %q shadows built-in function", fm.Name)
		}
		if err := validateExpression(parser, fm.Expression, maxExpressionLength); err != nil {
			return apperror.InvalidRequest("formula %q: %v", fm.Name, err)
		}
		if fm.DecimalPlaces != nil && (*fm.DecimalPlaces < 0 || *fm.DecimalPlaces > 10) {
			return apperror.InvalidRequest("formula %q: decimal_places must be between 0 and 10", fm.Name)
		}
		if !validDisplayFormat(fm.DisplayFormat) {
			return apperror.InvalidRequest("formula %q has invalid display format %q", fm.Name, fm.DisplayFormat)
		}
	}

	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("name length %d exceeds maximum of %d characters", len(name), maxNameLen)
	}
	if formula.Normalize(name) == "" {
		return fmt.Errorf("name must contain at least one letter or digit")
	}
	return nil
}

// validateExpression allows empty expressions; the engine skips them.
func validateExpression(parser *formula.Parser, expression string, maxLen int) error {
	if maxLen > 0 && len(expression) > maxLen {
		return fmt.Errorf("expression length %d exceeds maximum of %d characters", len(expression), maxLen)
	}
	if strings.TrimSpace(expression) == "" {
		return nil
	}
	return parser.ValidateSyntax(expression)
}

func validDisplayFormat(f entity.DisplayFormat) bool {
	switch f {
	case "", entity.DisplayNumber, entity.DisplayCurrency, entity.DisplayPercentage:
		return true
	}
	return false
}
