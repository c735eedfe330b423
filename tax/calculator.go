package tax

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
)

// Parameter keys and defaults for the per-year allowances.
const (
	StandardDeductionKey = "StandardDeduction_%d"
	PersonalExemptionKey = "PersonalExemption_%d"
)

var (
	DefaultStandardDeduction = decimal.NewFromInt(120000)
	DefaultPersonalExemption = decimal.NewFromInt(92000)
)

// History is the view of past salary records that withholding needs.
type History interface {
	// IncomeToDate sums gross salary of non-Draft records from January
	// through period inclusive.
	IncomeToDate(ctx context.Context, employeeID string, period generic.PayPeriod) (decimal.Decimal, error)
	// WithheldBefore sums INCOME_TAX items of non-Draft records in the months
	// of the same year before period.
	WithheldBefore(ctx context.Context, employeeID string, period generic.PayPeriod) (decimal.Decimal, error)
}

// Calculator owns the bracket schedules.
type Calculator struct {
	mu        sync.RWMutex
	schedules map[int]Schedule
	fallback  Schedule
	params    generic.ParameterStore
	log       *zap.Logger
}

type Option func(*Calculator)

func WithLogger(l *zap.Logger) Option { return func(c *Calculator) { c.log = l } }

// WithParameters supplies the store for per-year deductions and exemptions.
func WithParameters(p generic.ParameterStore) Option { return func(c *Calculator) { c.params = p } }

func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		schedules: make(map[int]Schedule),
		fallback:  DefaultSchedule(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSchedule installs a validated schedule for year.
func (c *Calculator) SetSchedule(year int, s Schedule) error {
	s = s.Sorted()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schedule %d: %w", year, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedules[year] = s
	return nil
}

// Brackets returns the schedule of year, or the default schedule.
func (c *Calculator) Brackets(year int) Schedule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.schedules[year]; ok {
		return s
	}
	return c.fallback
}

// HasSchedule reports whether a schedule was loaded for year.
func (c *Calculator) HasSchedule(year int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.schedules[year]
	return ok
}

// ComputeTax applies year's schedule by marginal summation. A year with no
// loaded schedule, including 0, uses the default schedule.
func (c *Calculator) ComputeTax(year int, taxable decimal.Decimal) decimal.Decimal {
	return c.Brackets(year).ComputeTax(taxable)
}

// CalculateProgressiveTax taxes max(0, income - deductions - exemptions) on
// year's schedule, rounded to whole units. A year with no loaded schedule,
// including 0, uses the default schedule.
func (c *Calculator) CalculateProgressiveTax(year int, annualIncome, deductions, exemptions decimal.Decimal) (decimal.Decimal, error) {
	if year < 0 {
		return decimal.Zero, generic.Invalid("year", "must not be negative, got %d", year)
	}
	if annualIncome.IsNegative() || deductions.IsNegative() || exemptions.IsNegative() {
		return decimal.Zero, generic.Invalid("annualIncome", "income, deductions and exemptions must not be negative")
	}
	taxable := generic.MaxZero(annualIncome.Sub(deductions).Sub(exemptions))
	return generic.RoundWhole(c.ComputeTax(year, taxable)), nil
}

// Allowances returns the standard deduction and personal exemption in force
// for period's year.
func (c *Calculator) Allowances(ctx context.Context, period generic.PayPeriod) (deduction, exemption decimal.Decimal, err error) {
	asOf := period.AsOf()
	deduction, _, err = generic.DecimalParameter(ctx, c.params, fmt.Sprintf(StandardDeductionKey, period.Year), asOf, DefaultStandardDeduction)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	exemption, _, err = generic.DecimalParameter(ctx, c.params, fmt.Sprintf(PersonalExemptionKey, period.Year), asOf, DefaultPersonalExemption)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return deduction, exemption, nil
}
