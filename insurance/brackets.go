// Package insurance maps salaries to insurable bases and prices the
// employee share of labor and health insurance.
package insurance

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// Bracket maps salaries in [Min, Max) to a fixed insurable base. Max nil is
// the open top bracket.
type Bracket struct {
	Min  decimal.Decimal
	Max  *decimal.Decimal
	Base decimal.Decimal
}

// Table is an ordered bracket lookup table.
type Table struct {
	Name     string
	Brackets []Bracket
}

// stepPoints are the published grade boundaries shared by both tables.
var stepPoints = []int64{25200, 26400, 27600, 28800, 30300, 31800, 33300, 34800, 36300, 38200, 40100, 42000, 43900}

// newStepTable builds [0,25200)->25200, [a,b)->b ..., [43900, inf)->top.
func newStepTable(name string, top int64) Table {
	t := Table{Name: name}
	lower := decimal.Zero
	for _, p := range stepPoints {
		upper := decimal.NewFromInt(p)
		t.Brackets = append(t.Brackets, Bracket{Min: lower, Max: &upper, Base: upper})
		lower = upper
	}
	t.Brackets = append(t.Brackets, Bracket{Min: lower, Max: nil, Base: decimal.NewFromInt(top)})
	return t
}

var (
	// LaborTable caps the insured salary at 45,800.
	LaborTable = newStepTable("labor", 45800)
	// HealthTable caps the insured amount at 182,000.
	HealthTable = newStepTable("health", 182000)
)

// InsurableBase returns the base of the bracket containing salary. A salary
// above every bracket gets the top bracket's base.
func (t Table) InsurableBase(salary decimal.Decimal) (decimal.Decimal, error) {
	if salary.IsNegative() {
		return decimal.Zero, generic.Invalid("salary", "must not be negative, got %s", salary)
	}
	for _, b := range t.Brackets {
		if salary.LessThan(b.Min) {
			continue
		}
		if b.Max == nil || salary.LessThan(*b.Max) {
			return b.Base, nil
		}
	}
	return t.Brackets[len(t.Brackets)-1].Base, nil
}
