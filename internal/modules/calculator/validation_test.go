package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/pkg/formula"
)

func definitionWithField(f *entity.Field) *entity.Calculator {
	return &entity.Calculator{
		Name: "Validation",
		Fields: []*entity.Field{
			entity.NewInputField("Qty", entity.FieldTypeNumber, "1", 0),
			f,
		},
	}
}

func TestValidateDefinition_FieldNames(t *testing.T) {
	testCases := []struct {
		name    string
		field   string
		wantErr error
	}{
		{"plain", "Unit Price", nil},
		{"punctuation", "Cost (USD)", nil},
		{"boolean literal", "true", apperror.ErrInvalidRequest},
		{"false literal", "False", nil},
		{"nil literal", "nil", apperror.ErrInvalidRequest},
		{"operator keyword", "in", apperror.ErrInvalidRequest},
		{"logical keyword", "and", apperror.ErrInvalidRequest},
		{"negation keyword", "not", apperror.ErrInvalidRequest},
		{"digit first", "2nd Pass", apperror.ErrInvalidRequest},
		{"only digits", "100", apperror.ErrInvalidRequest},
		{"builtin function", "Round", nil},
		{"shadows builtin", "ROUND", apperror.ErrConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calc := definitionWithField(entity.NewInputField(tc.field, entity.FieldTypeNumber, "", 1))

			err := ValidateDefinition(formula.NewParser(), calc, 500)

			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidateDefinition_AcceptsOpenFieldTypes(t *testing.T) {
	for _, typ := range []entity.FieldType{entity.FieldTypeText, entity.FieldTypeDatabaseLookup, "dropdown", "date"} {
		t.Run(string(typ), func(t *testing.T) {
			calc := definitionWithField(entity.NewInputField("Choice", typ, "a", 1))

			assert.NoError(t, ValidateDefinition(formula.NewParser(), calc, 500))
		})
	}

	calc := definitionWithField(entity.NewInputField("Choice", "", "a", 1))
	assert.ErrorIs(t, ValidateDefinition(formula.NewParser(), calc, 500), apperror.ErrInvalidRequest)
}

func TestEngine_OpenFieldTypeIsInput(t *testing.T) {
	c := newCalculator(
		[]*entity.Field{
			entity.NewInputField("Grade", "dropdown", "2", 0),
			entity.NewCalculatedField("Score", "Grade * 10", 1),
		},
		nil,
	)

	result := execute(t, c, map[string]any{})

	assert.Equal(t, 20.0, result.Results["Score"].Value)
}
