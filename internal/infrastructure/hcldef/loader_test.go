package hcldef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
)

const fabric = `
calculator "Fabric cost" {
  description = "Cost per metre"

  field "Width" {
    default = 1.5
    unit    = "m"
  }
  field "Finish" {
    type    = "text"
    default = "matte"
  }
  field "Rush" {
    default = true
  }
  field "Area" {
    expression = "{Width} * 2"
    order      = 1
  }
  formula "Total" {
    expression     = "Area * 10"
    display_format = "currency"
    decimal_places = 3
  }
}

calculator "Empty" {}
`

func TestParse(t *testing.T) {
	calcs, err := Parse([]byte(fabric), "fabric.hcl")
	require.NoError(t, err)
	require.Len(t, calcs, 2)

	calc := calcs[0]
	assert.Equal(t, "Fabric cost", calc.Name)
	assert.Equal(t, "Cost per metre", calc.Description)
	require.Equal(t, []string{"Width", "Finish", "Rush", "Area"}, calc.FieldNames())

	assert.Equal(t, entity.FieldTypeNumber, calc.Fields[0].Type)
	assert.Equal(t, entity.InputKind{DefaultValue: "1.5"}, calc.Fields[0].Kind)
	assert.Equal(t, "m", calc.Fields[0].Unit)
	assert.Equal(t, entity.InputKind{DefaultValue: "matte"}, calc.Fields[1].Kind)
	assert.Equal(t, entity.InputKind{DefaultValue: "true"}, calc.Fields[2].Kind)
	assert.Equal(t, entity.FieldTypeCalculated, calc.Fields[3].Type)
	assert.Equal(t, entity.CalculatedKind{Expression: "{Width} * 2"}, calc.Fields[3].Kind)
	assert.Equal(t, 1, calc.Fields[3].DisplayOrder)

	require.Len(t, calc.Formulas, 1)
	fm := calc.Formulas[0]
	assert.Equal(t, "Total", fm.Name)
	assert.Equal(t, entity.DisplayCurrency, fm.DisplayFormat)
	require.NotNil(t, fm.DecimalPlaces)
	assert.Equal(t, 3, *fm.DecimalPlaces)

	assert.Empty(t, calcs[1].Fields)
	assert.NotEqual(t, calcs[0].ID, calcs[1].ID)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `calculator "x" {`},
		{"unknown attribute", `calculator "x" { colour = "red" }`},
		{"formula without expression", `calculator "x" { formula "y" {} }`},
		{"calculated with default", `calculator "x" {
  field "y" {
    type       = "calculated"
    expression = "1"
    default    = 2
  }
}`},
		{"expression on input", `calculator "x" {
  field "y" {
    type       = "number"
    expression = "1"
  }
}`},
		{"list default", `calculator "x" {
  field "y" { default = [1, 2] }
}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`calculator "A" {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.hcl"), []byte(`calculator "B" {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))

	calcs, err := LoadPath(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(calcs))
	for _, c := range calcs {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"A", "B"}, names)

	single, err := LoadPath(filepath.Join(dir, "a.hcl"))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "A", single[0].Name)
}
