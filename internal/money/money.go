// Package money holds the minor-unit currency type used across pricing and
// shipping. Amounts are integer cents internally; decimal display values only
// exist at the API boundary.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents represents an amount in minor currency units.
type Cents int64

const centsPerUnit = 100

var hundred = decimal.NewFromInt(centsPerUnit)

// FromUnits converts whole currency units (dollars) into Cents.
func FromUnits(units int64) Cents {
	return Cents(units * centsPerUnit)
}

// FromDecimal converts a display amount (e.g. 29.60) into Cents, rounding half
// away from zero to the nearest cent.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// Parse converts a decimal string such as "12.34" into Cents.
func Parse(value string) (Cents, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", value, err)
	}
	return FromDecimal(d), nil
}

// Decimal returns the amount in display units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with two decimals, e.g. "57.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// RoundToUnit rounds half-up to the nearest whole currency unit.
func (c Cents) RoundToUnit() Cents {
	if c < 0 {
		return -(-c).RoundToUnit()
	}
	return ((c + centsPerUnit/2) / centsPerUnit) * centsPerUnit
}

// NonNegative clamps negative amounts to zero.
func (c Cents) NonNegative() Cents {
	if c < 0 {
		return 0
	}
	return c
}

// Sum adds up the provided amounts.
func Sum(values ...Cents) Cents {
	var total Cents
	for _, v := range values {
		total += v
	}
	return total
}

// Display is the JSON shape used for amounts leaving the API.
type Display string

// Show converts an amount into its display string.
func Show(c Cents) Display {
	return Display(c.String())
}
