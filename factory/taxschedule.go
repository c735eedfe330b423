/*
Package factory provides JSON to Go conversion for payroll configuration.

PURPOSE:
  Converts JSON tax schedules and salary item definitions into the tax and
  salaryitem types. Finance can publish a new year's brackets or pay items
  as a file, and the factory builds validated Go values from it.

JSON SCHEMA (tax schedules):
  {
    "schedules": [
      {
        "year": 2025,
        "brackets": [
          {"min_income": 0,       "max_income": 590000,  "tax_rate": 5},
          {"min_income": 590000,  "max_income": 1330000, "tax_rate": 12},
          {"min_income": 1330000, "max_income": 2660000, "tax_rate": 20, "cumulative_difference": 147700},
          {"min_income": 2660000, "max_income": 4980000, "tax_rate": 30},
          {"min_income": 4980000,                        "tax_rate": 40}
        ]
      }
    ]
  }

KEY FEATURES:
  - Brackets may be listed in any order; they are sorted by min_income
  - A missing cumulative_difference is derived from the brackets below it
  - Every schedule must be contiguous from 0 with an unbounded top bracket
  - Given cumulative differences must agree with marginal summation
  - A year may appear only once per file

USAGE:
  f := factory.NewScheduleFactory()
  years, err := f.LoadFile(calc, cfg.Tax.SchedulesFile)

SEE ALSO:
  - tax/schedule.go: Schedule and Bracket
  - factory/salaryitems.go: pay item definitions from JSON
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/tax"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ScheduleFileJSON is the top level of a schedules file.
type ScheduleFileJSON struct {
	Schedules []ScheduleJSON `json:"schedules"`
}

// ScheduleJSON is one tax year's bracket table.
type ScheduleJSON struct {
	Year     int           `json:"year"`
	Brackets []BracketJSON `json:"brackets"`
}

// BracketJSON is one bracket. Rates are percent.
type BracketJSON struct {
	MinIncome            decimal.Decimal  `json:"min_income"`
	MaxIncome            *decimal.Decimal `json:"max_income,omitempty"`
	TaxRate              decimal.Decimal  `json:"tax_rate"`
	CumulativeDifference *decimal.Decimal `json:"cumulative_difference,omitempty"` // derived when omitted
}

// =============================================================================
// SCHEDULE FACTORY
// =============================================================================

// ScheduleFactory converts JSON schedules to tax.Schedule values.
type ScheduleFactory struct{}

func NewScheduleFactory() *ScheduleFactory {
	return &ScheduleFactory{}
}

// ParseSchedules parses a schedules file into one validated schedule per year.
func (f *ScheduleFactory) ParseSchedules(data []byte) (map[int]tax.Schedule, error) {
	var file ScheduleFileJSON
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tax schedules JSON: %w", err)
	}
	if len(file.Schedules) == 0 {
		return nil, generic.Invalid("schedules", "file declares no schedules")
	}

	out := make(map[int]tax.Schedule, len(file.Schedules))
	for _, sj := range file.Schedules {
		if _, dup := out[sj.Year]; dup {
			return nil, generic.Invalid("year", "schedule for %d declared twice", sj.Year)
		}
		s, err := f.FromJSON(sj)
		if err != nil {
			return nil, err
		}
		out[sj.Year] = s
	}
	return out, nil
}

// FromJSON builds the schedule of one year, deriving missing cumulative
// differences and cross-checking the closed form against summation.
func (f *ScheduleFactory) FromJSON(sj ScheduleJSON) (tax.Schedule, error) {
	if sj.Year < 1900 || sj.Year > 9999 {
		return nil, generic.Invalid("year", "%d is not a tax year", sj.Year)
	}
	brackets := append([]BracketJSON(nil), sj.Brackets...)
	sort.SliceStable(brackets, func(i, j int) bool { return brackets[i].MinIncome.LessThan(brackets[j].MinIncome) })

	s := make(tax.Schedule, 0, len(brackets))
	prevRate, prevDiff := decimal.Zero, decimal.Zero
	for _, bj := range brackets {
		b := tax.Bracket{MinIncome: bj.MinIncome, MaxIncome: bj.MaxIncome, Rate: bj.TaxRate}
		if bj.CumulativeDifference != nil {
			b.CumulativeDifference = *bj.CumulativeDifference
		} else {
			b.CumulativeDifference = deriveDifference(prevDiff, prevRate, b)
		}
		prevRate, prevDiff = b.Rate, b.CumulativeDifference
		s = append(s, b)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("schedule %d: %w", sj.Year, err)
	}
	if err := s.CheckCumulativeDifferences(); err != nil {
		return nil, fmt.Errorf("schedule %d: %w", sj.Year, generic.Invalid("cumulative_difference", "%v", err))
	}
	return s, nil
}

// deriveDifference keeps the closed form continuous at b.MinIncome:
// diff_i = diff_(i-1) + min_i x (rate_i - rate_(i-1)) / 100.
func deriveDifference(prevDiff, prevRate decimal.Decimal, b tax.Bracket) decimal.Decimal {
	return prevDiff.Add(b.MinIncome.Mul(b.Rate.Sub(prevRate)).Div(generic.Hundred))
}

// ToJSON converts a schedule back to its file form with every difference
// spelled out.
func (f *ScheduleFactory) ToJSON(year int, s tax.Schedule) ScheduleJSON {
	sj := ScheduleJSON{Year: year}
	for _, b := range s {
		diff := b.CumulativeDifference
		sj.Brackets = append(sj.Brackets, BracketJSON{
			MinIncome:            b.MinIncome,
			MaxIncome:            b.MaxIncome,
			TaxRate:              b.Rate,
			CumulativeDifference: &diff,
		})
	}
	return sj
}

// =============================================================================
// LOADING
// =============================================================================

// Load parses data and installs every schedule into calc. It returns the
// installed years in ascending order. Nothing is installed when any schedule
// is rejected.
func (f *ScheduleFactory) Load(calc *tax.Calculator, data []byte) ([]int, error) {
	schedules, err := f.ParseSchedules(data)
	if err != nil {
		return nil, err
	}
	years := make([]int, 0, len(schedules))
	for y := range schedules {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		if err := calc.SetSchedule(y, schedules[y]); err != nil {
			return nil, err
		}
	}
	return years, nil
}

// LoadFile reads path and installs its schedules into calc.
func (f *ScheduleFactory) LoadFile(calc *tax.Calculator, path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tax schedules: %w", err)
	}
	return f.Load(calc, data)
}
