package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FieldType is the declared type of a calculator field. Only FieldTypeCalculated
// changes how the engine treats the field; every other type is a plain input.
type FieldType string

const (
	FieldTypeNumber         FieldType = "number"
	FieldTypeText           FieldType = "text"
	FieldTypeCalculated     FieldType = "calculated"
	FieldTypeDatabaseLookup FieldType = "database_lookup"
)

// FieldKind separates input fields from calculated fields.
// Implemented by InputKind and CalculatedKind only.
type FieldKind interface {
	fieldKind()
}

// InputKind is a field whose value is supplied by the caller, falling back to
// DefaultValue when absent.
type InputKind struct {
	DefaultValue string
}

// CalculatedKind is a field whose value is computed from Expression.
type CalculatedKind struct {
	Expression string
}

func (InputKind) fieldKind()      {}
func (CalculatedKind) fieldKind() {}

// Calculator is a user-authored set of ordered fields and formulas.
type Calculator struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Fields      []*Field   `json:"fields"`
	Formulas    []*Formula `json:"formulas"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FieldNames returns the raw names of all fields in declared order.
func (c *Calculator) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Field is a named slot in a calculator.
type Field struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"field_name"`
	Label        string    `json:"label,omitempty"`
	Type         FieldType `json:"field_type"`
	Kind         FieldKind `json:"-"`
	Unit         string    `json:"unit,omitempty"`
	DisplayOrder int       `json:"display_order"`
}

// NewInputField creates a plain input field of the given type.
func NewInputField(name string, typ FieldType, defaultValue string, displayOrder int) *Field {
	return &Field{
		ID:           uuid.New(),
		Name:         name,
		Type:         typ,
		Kind:         InputKind{DefaultValue: defaultValue},
		DisplayOrder: displayOrder,
	}
}

// NewCalculatedField creates a field computed from expression.
func NewCalculatedField(name, expression string, displayOrder int) *Field {
	return &Field{
		ID:           uuid.New(),
		Name:         name,
		Type:         FieldTypeCalculated,
		Kind:         CalculatedKind{Expression: expression},
		DisplayOrder: displayOrder,
	}
}

// IsCalculated reports whether the field's value comes from an expression.
func (f *Field) IsCalculated() bool {
	_, ok := f.Kind.(CalculatedKind)
	return ok
}

// StoredValue returns the single persisted slot: the default value for input
// fields or the expression for calculated fields.
func (f *Field) StoredValue() string {
	switch k := f.Kind.(type) {
	case InputKind:
		return k.DefaultValue
	case CalculatedKind:
		return k.Expression
	default:
		return ""
	}
}

// SetStoredValue rebuilds Kind from the field type and the persisted slot.
func (f *Field) SetStoredValue(value string) {
	if f.Type == FieldTypeCalculated {
		f.Kind = CalculatedKind{Expression: value}
		return
	}
	f.Kind = InputKind{DefaultValue: value}
}

type fieldJSON struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"field_name"`
	Label        string    `json:"label,omitempty"`
	Type         FieldType `json:"field_type"`
	DefaultValue string    `json:"default_value,omitempty"`
	Expression   string    `json:"expression,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	DisplayOrder int       `json:"display_order"`
}

// MarshalJSON writes the kind as either default_value or expression.
func (f Field) MarshalJSON() ([]byte, error) {
	out := fieldJSON{
		ID:           f.ID,
		Name:         f.Name,
		Label:        f.Label,
		Type:         f.Type,
		Unit:         f.Unit,
		DisplayOrder: f.DisplayOrder,
	}
	switch k := f.Kind.(type) {
	case InputKind:
		out.DefaultValue = k.DefaultValue
	case CalculatedKind:
		out.Expression = k.Expression
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the expression of a calculated field either in
// "expression" or in the legacy "default_value" slot.
func (f *Field) UnmarshalJSON(data []byte) error {
	var in fieldJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode field: %w", err)
	}
	*f = Field{
		ID:           in.ID,
		Name:         in.Name,
		Label:        in.Label,
		Type:         in.Type,
		Unit:         in.Unit,
		DisplayOrder: in.DisplayOrder,
	}
	if f.Type == "" {
		f.Type = FieldTypeNumber
	}
	if f.Type == FieldTypeCalculated {
		expression := in.Expression
		if expression == "" {
			expression = in.DefaultValue
		}
		f.Kind = CalculatedKind{Expression: expression}
		return nil
	}
	f.Kind = InputKind{DefaultValue: in.DefaultValue}
	return nil
}

// DisplayFormat controls how a formula result is presented.
type DisplayFormat string

const (
	DisplayNumber     DisplayFormat = "number"
	DisplayCurrency   DisplayFormat = "currency"
	DisplayPercentage DisplayFormat = "percentage"
)

// Formula is a top-level named expression evaluated after calculated fields.
type Formula struct {
	ID             uuid.UUID     `json:"id"`
	Name           string        `json:"formula_name"`
	Expression     string        `json:"formula_expression"`
	ExecutionOrder int           `json:"execution_order"`
	Description    string        `json:"description,omitempty"`
	DisplayFormat  DisplayFormat `json:"display_format,omitempty"`
	DecimalPlaces  *int          `json:"decimal_places,omitempty"`
	Unit           string        `json:"unit,omitempty"`
}

// NewFormula creates a formula with a fresh id.
func NewFormula(name, expression string, executionOrder int) *Formula {
	return &Formula{
		ID:             uuid.New(),
		Name:           name,
		Expression:     expression,
		ExecutionOrder: executionOrder,
	}
}
