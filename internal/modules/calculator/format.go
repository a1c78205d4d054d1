package calculator

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/pkg/formula"
)

const defaultDecimalPlaces = 2

// Format renders a formula result for display. Percentages are fractions:
// 0.125 renders as "12.50%". Non-numeric values are printed as is.
func Format(value any, fm *entity.Formula) string {
	f, ok := formula.ToFloat(value)
	if !ok {
		if value == nil {
			return ""
		}
		return fmt.Sprint(value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprint(f)
	}

	places := int32(defaultDecimalPlaces)
	if fm.DecimalPlaces != nil {
		places = int32(*fm.DecimalPlaces)
	}
	d := decimal.NewFromFloat(f)

	var out string
	switch fm.DisplayFormat {
	case entity.DisplayPercentage:
		return d.Shift(2).StringFixed(places) + "%"
	case entity.DisplayCurrency:
		out = grouped(d, places)
	default:
		out = d.StringFixed(places)
	}
	if fm.Unit != "" {
		out += " " + fm.Unit
	}
	return out
}

// FormatResults formats every successful formula of calc found in results,
// keyed by formula name.
func FormatResults(calc *entity.Calculator, results map[string]entity.ItemResult) map[string]string {
	out := make(map[string]string, len(calc.Formulas))
	for _, fm := range calc.Formulas {
		item, ok := results[fm.ID.String()]
		if !ok || item.Failed() {
			continue
		}
		out[fm.Name] = Format(item.Value, fm)
	}
	return out
}

var maxGrouped = decimal.NewFromInt(math.MaxInt64)

// grouped renders d with places decimals and English thousands separators.
// Rounding stays in decimal; the printer only groups the whole part.
func grouped(d decimal.Decimal, places int32) string {
	d = d.Round(places)
	abs := d.Abs()
	if abs.GreaterThan(maxGrouped) {
		return d.StringFixed(places)
	}

	fixed := abs.StringFixed(places)
	_, frac, hasFrac := strings.Cut(fixed, ".")

	p := message.NewPrinter(language.English)
	out := p.Sprint(number.Decimal(abs.IntPart()))
	if hasFrac {
		out += "." + frac
	}
	if d.IsNegative() {
		out = "-" + out
	}
	return out
}
