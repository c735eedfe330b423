/*
Package tax computes progressive income tax and monthly withholding.

PURPOSE:
  Holds one bracket schedule per tax year and computes annual tax by
  marginal-bracket summation. WithholdingForPeriod reconciles what has been
  withheld so far in the year against the liability projected from
  year-to-date income, so monthly withholding follows income across brackets.

ALGORITHMS:
  ComputeTax  walks brackets ascending and taxes the slice of income inside
              each [min, max) at that bracket's rate. Authoritative.
  QuickTax    income x rate - cumulativeDifference of the enclosing bracket.
              Only used to cross-check schedules; both must agree.

SEE ALSO:
  - withholding.go: monthly reconciliation
  - factory/taxschedule.go: loading schedules from JSON
*/
package tax

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// Bracket taxes income in [MinIncome, MaxIncome) at Rate percent. MaxIncome
// nil marks the unbounded top bracket.
type Bracket struct {
	MinIncome            decimal.Decimal  `json:"minIncome"`
	MaxIncome            *decimal.Decimal `json:"maxIncome,omitempty"`
	Rate                 decimal.Decimal  `json:"taxRate"`
	CumulativeDifference decimal.Decimal  `json:"cumulativeDifference"`
}

// Contains reports whether income falls inside the bracket.
func (b Bracket) Contains(income decimal.Decimal) bool {
	if income.LessThan(b.MinIncome) {
		return false
	}
	return b.MaxIncome == nil || income.LessThan(*b.MaxIncome)
}

func (b Bracket) fraction() decimal.Decimal { return b.Rate.Div(generic.Hundred) }

// Schedule is an ordered, contiguous bracket table covering [0, inf).
type Schedule []Bracket

func bound(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// DefaultSchedule is the 5/12/20/30/40% table.
func DefaultSchedule() Schedule {
	return Schedule{
		{MinIncome: decimal.Zero, MaxIncome: bound(560000), Rate: decimal.NewFromInt(5), CumulativeDifference: decimal.Zero},
		{MinIncome: decimal.NewFromInt(560000), MaxIncome: bound(1260000), Rate: decimal.NewFromInt(12), CumulativeDifference: decimal.NewFromInt(39200)},
		{MinIncome: decimal.NewFromInt(1260000), MaxIncome: bound(2520000), Rate: decimal.NewFromInt(20), CumulativeDifference: decimal.NewFromInt(140000)},
		{MinIncome: decimal.NewFromInt(2520000), MaxIncome: bound(4720000), Rate: decimal.NewFromInt(30), CumulativeDifference: decimal.NewFromInt(392000)},
		{MinIncome: decimal.NewFromInt(4720000), MaxIncome: nil, Rate: decimal.NewFromInt(40), CumulativeDifference: decimal.NewFromInt(864000)},
	}
}

// Validate requires ascending, contiguous brackets from 0 with only the last
// one unbounded and every rate in [0, 100].
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return generic.Invalid("brackets", "schedule is empty")
	}
	if !s[0].MinIncome.IsZero() {
		return generic.Invalid("brackets", "first bracket must start at 0, starts at %s", s[0].MinIncome)
	}
	for i, b := range s {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(generic.Hundred) {
			return generic.Invalid("brackets", "bracket %d rate %s outside [0, 100]", i, b.Rate)
		}
		last := i == len(s)-1
		if b.MaxIncome == nil {
			if !last {
				return generic.Invalid("brackets", "bracket %d is unbounded but not last", i)
			}
			continue
		}
		if last {
			return generic.Invalid("brackets", "last bracket must be unbounded")
		}
		if !b.MaxIncome.GreaterThan(b.MinIncome) {
			return generic.Invalid("brackets", "bracket %d is empty or inverted", i)
		}
		if !s[i+1].MinIncome.Equal(*b.MaxIncome) {
			return generic.Invalid("brackets", "gap or overlap between bracket %d and %d", i, i+1)
		}
	}
	return nil
}

// Sorted returns a copy ordered by MinIncome.
func (s Schedule) Sorted() Schedule {
	out := append(Schedule(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinIncome.LessThan(out[j].MinIncome) })
	return out
}

// ComputeTax sums the tax of each income slice at its bracket's rate.
func (s Schedule) ComputeTax(taxable decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	if !taxable.IsPositive() {
		return total
	}
	for _, b := range s {
		if !taxable.GreaterThan(b.MinIncome) {
			break
		}
		upper := taxable
		if b.MaxIncome != nil && b.MaxIncome.LessThan(upper) {
			upper = *b.MaxIncome
		}
		total = total.Add(upper.Sub(b.MinIncome).Mul(b.fraction()))
	}
	return total
}

// QuickTax is the closed form using CumulativeDifference.
func (s Schedule) QuickTax(taxable decimal.Decimal) decimal.Decimal {
	if !taxable.IsPositive() {
		return decimal.Zero
	}
	for _, b := range s {
		if b.Contains(taxable) {
			return taxable.Mul(b.fraction()).Sub(b.CumulativeDifference)
		}
	}
	return decimal.Zero
}

// MarginalRate returns the percent rate of the bracket containing income.
func (s Schedule) MarginalRate(income decimal.Decimal) decimal.Decimal {
	for _, b := range s {
		if b.Contains(income) {
			return b.Rate
		}
	}
	return decimal.Zero
}

// CheckCumulativeDifferences verifies that QuickTax agrees with ComputeTax at
// every bracket boundary and midpoint. A schedule whose differences disagree
// is rejected at load time.
func (s Schedule) CheckCumulativeDifferences() error {
	for i, b := range s {
		samples := []decimal.Decimal{b.MinIncome.Add(generic.One)}
		if b.MaxIncome != nil {
			samples = append(samples, b.MinIncome.Add(*b.MaxIncome).Div(decimal.NewFromInt(2)))
		} else {
			samples = append(samples, b.MinIncome.Mul(decimal.NewFromInt(2)).Add(generic.One))
		}
		for _, p := range samples {
			sum, quick := s.ComputeTax(p), s.QuickTax(p)
			if !sum.Round(2).Equal(quick.Round(2)) {
				return fmt.Errorf("bracket %d: cumulative difference %s disagrees at %s (summation %s, closed form %s)",
					i, b.CumulativeDifference, p, sum.Round(2), quick.Round(2))
			}
		}
	}
	return nil
}
