// Package hcldef loads calculator definitions from HCL files.
//
// A file holds any number of calculator blocks:
//
//	calculator "Fabric cost" {
//	  description = "Cost per metre"
//
//	  field "Width" {
//	    type    = "number"
//	    default = 1.5
//	  }
//	  field "Area" {
//	    expression = "{Width} * 2"
//	    order      = 1
//	  }
//	  formula "Total" {
//	    expression     = "Area * 10"
//	    display_format = "currency"
//	  }
//	}
package hcldef

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
)

type hclFile struct {
	Calculators []*hclCalculator `hcl:"calculator,block"`
}

type hclCalculator struct {
	Name        string        `hcl:"name,label"`
	Description string        `hcl:"description,optional"`
	Fields      []*hclField   `hcl:"field,block"`
	Formulas    []*hclFormula `hcl:"formula,block"`
}

type hclField struct {
	Name       string         `hcl:"name,label"`
	Label      string         `hcl:"label,optional"`
	Type       string         `hcl:"type,optional"`
	Default    hcl.Expression `hcl:"default,optional"`
	Expression string         `hcl:"expression,optional"`
	Unit       string         `hcl:"unit,optional"`
	Order      int            `hcl:"order,optional"`
}

type hclFormula struct {
	Name          string `hcl:"name,label"`
	Expression    string `hcl:"expression"`
	Order         int    `hcl:"order,optional"`
	Description   string `hcl:"description,optional"`
	DisplayFormat string `hcl:"display_format,optional"`
	DecimalPlaces *int   `hcl:"decimal_places,optional"`
	Unit          string `hcl:"unit,optional"`
}

// LoadPath loads every calculator in path, which may be a single .hcl file or
// a directory searched recursively.
func LoadPath(path string) ([]*entity.Calculator, error) {
	files, err := findFiles(path)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	calcs := make([]*entity.Calculator, 0)
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		loaded, err := decode(f, file)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, loaded...)
	}
	return calcs, nil
}

// Parse decodes calculators from in-memory HCL source.
func Parse(src []byte, filename string) ([]*entity.Calculator, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decode(f, filename)
}

func decode(f *hcl.File, filename string) ([]*entity.Calculator, error) {
	var parsed hclFile
	if diags := gohcl.DecodeBody(f.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	calcs := make([]*entity.Calculator, 0, len(parsed.Calculators))
	for _, c := range parsed.Calculators {
		calc := &entity.Calculator{
			ID:          uuid.New(),
			Name:        c.Name,
			Description: c.Description,
			Fields:      make([]*entity.Field, 0, len(c.Fields)),
			Formulas:    make([]*entity.Formula, 0, len(c.Formulas)),
		}
		for _, hf := range c.Fields {
			field, err := toField(hf)
			if err != nil {
				return nil, fmt.Errorf("%s: calculator %q: %w", filename, c.Name, err)
			}
			calc.Fields = append(calc.Fields, field)
		}
		for _, hf := range c.Formulas {
			fm := entity.NewFormula(hf.Name, hf.Expression, hf.Order)
			fm.Description = hf.Description
			fm.DisplayFormat = entity.DisplayFormat(hf.DisplayFormat)
			fm.DecimalPlaces = hf.DecimalPlaces
			fm.Unit = hf.Unit
			calc.Formulas = append(calc.Formulas, fm)
		}
		calcs = append(calcs, calc)
	}
	return calcs, nil
}

func toField(hf *hclField) (*entity.Field, error) {
	def, err := defaultString(hf.Default)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", hf.Name, err)
	}

	typ := entity.FieldType(hf.Type)
	if typ == "" {
		typ = entity.FieldTypeNumber
		if hf.Expression != "" {
			typ = entity.FieldTypeCalculated
		}
	}

	var field *entity.Field
	if typ == entity.FieldTypeCalculated {
		if def != "" {
			return nil, fmt.Errorf("field %q: calculated fields take expression, not default", hf.Name)
		}
		field = entity.NewCalculatedField(hf.Name, hf.Expression, hf.Order)
	} else {
		if hf.Expression != "" {
			return nil, fmt.Errorf("field %q: expression requires type \"calculated\"", hf.Name)
		}
		field = entity.NewInputField(hf.Name, typ, def, hf.Order)
	}
	field.Label = hf.Label
	field.Unit = hf.Unit
	return field, nil
}

// defaultString renders a literal default as the stored string form. Numbers
// and bools go through cty's string conversion.
func defaultString(expr hcl.Expression) (string, error) {
	if expr == nil {
		return "", nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", nil
	}
	if !val.IsWhollyKnown() || !val.Type().IsPrimitiveType() {
		return "", fmt.Errorf("default must be a string, number or bool, got %s", val.Type().FriendlyName())
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("default: %w", err)
	}
	return str.AsString(), nil
}

func findFiles(path string) ([]string, error) {
	info, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0)
	err = filepath.WalkDir(info, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".hcl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find definition files in %s: %w", path, err)
	}
	return files, nil
}
