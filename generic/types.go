/*
Package generic provides the domain-agnostic primitives of the payroll engine.

PURPOSE:
  Money arithmetic, calendar dates, pay periods, effective-dated validity
  windows, the error taxonomy and the persistence contracts shared by
  every payroll component. Nothing here knows about rate tables, tax or
  salary records.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal with the two rounding rules payroll uses
  - Actor: who triggered a mutation (audit trail)

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Reproducibility: rounding rules are named functions, not ad-hoc calls
  3. Auditability: every mutation names an Actor

SEE ALSO:
  - window.go: effective-dated validity
  - period.go: pay periods
  - errors.go: error taxonomy
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

var (
	Hundred = decimal.NewFromInt(100)
	One     = decimal.NewFromInt(1)
)

// RoundCurrency rounds to cents, half away from zero. Used for amounts that
// are stored with two decimals (base salary, leave deduction, item amounts).
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundWhole rounds to a whole currency unit, half to even. Statutory
// insurance and tax withholding are published in whole units.
func RoundWhole(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(0)
}

// MaxZero floors d at zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Actor identifies who performed a mutation. "system" is used by schedulers.
type Actor string

const ActorSystem Actor = "system"

// IDGenerator returns a fresh unique identifier.
type IDGenerator func() string
