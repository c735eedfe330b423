package tax_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/tax"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestComputeTax_Scenario600k(t *testing.T) {
	// GIVEN: taxable income of 600,000 on the default schedule
	// WHEN: tax is computed both ways
	// THEN: 560,000 x 5% + 40,000 x 12% = 32,800 for summation and closed form
	s := tax.DefaultSchedule()

	assert.Equal(t, "32800", s.ComputeTax(d(600000)).String())
	assert.Equal(t, "32800", s.QuickTax(d(600000)).String())
}

func TestComputeTax_TableDriven(t *testing.T) {
	s := tax.DefaultSchedule()
	tests := []struct {
		income int64
		want   string
	}{
		{0, "0"},
		{-10, "0"},
		{100000, "5000"},
		{560000, "28000"},
		{1260000, "112000"},
		{2520000, "364000"},
		{4720000, "1024000"},
		{5000000, "1136000"},
	}
	for _, tt := range tests {
		t.Run(d(tt.income).String(), func(t *testing.T) {
			assert.Equal(t, tt.want, s.ComputeTax(d(tt.income)).String())
		})
	}
}

func TestComputeTax_MonotoneAndPiecewiseLinear(t *testing.T) {
	s := tax.DefaultSchedule()
	step := d(10000)
	prev := s.ComputeTax(decimal.Zero)

	for income := step; income.LessThanOrEqual(d(6000000)); income = income.Add(step) {
		cur := s.ComputeTax(income)
		require.True(t, cur.GreaterThanOrEqual(prev), "tax decreased at %s", income)

		// Slope over a step that stays inside one bracket equals that bracket's rate.
		lower := income.Sub(step)
		if s.MarginalRate(lower).Equal(s.MarginalRate(income)) {
			slope := cur.Sub(prev).Div(step).Mul(generic.Hundred)
			assert.True(t, slope.Equal(s.MarginalRate(income)),
				"slope %s != rate %s at %s", slope, s.MarginalRate(income), income)
		}
		prev = cur
	}
}

func TestSchedule_ClosedFormAgrees(t *testing.T) {
	assert.NoError(t, tax.DefaultSchedule().CheckCumulativeDifferences())

	broken := tax.DefaultSchedule()
	broken[1].CumulativeDifference = d(40000)
	assert.Error(t, broken.CheckCumulativeDifferences())
}

func TestSchedule_Validate(t *testing.T) {
	assert.NoError(t, tax.DefaultSchedule().Validate())

	gap := tax.DefaultSchedule()
	gap[2].MinIncome = d(1300000)
	assert.ErrorIs(t, gap.Validate(), generic.ErrValidation)

	bounded := tax.DefaultSchedule()
	top := d(9000000)
	bounded[len(bounded)-1].MaxIncome = &top
	assert.Error(t, bounded.Validate())

	assert.Error(t, tax.Schedule{}.Validate())
}

func TestCalculator_SwappableSchedules(t *testing.T) {
	calc := tax.NewCalculator()
	flat := tax.Schedule{{MinIncome: decimal.Zero, Rate: d(10)}}

	require.NoError(t, calc.SetSchedule(2030, flat))

	assert.Equal(t, "60000", calc.Brackets(2030).ComputeTax(d(600000)).String())
	assert.Equal(t, "32800", calc.Brackets(2024).ComputeTax(d(600000)).String())
}

func TestCalculateProgressiveTax(t *testing.T) {
	calc := tax.NewCalculator()

	got, err := calc.CalculateProgressiveTax(0, d(812000), d(120000), d(92000))
	require.NoError(t, err)
	assert.Equal(t, "32800", got.String())

	got, err = calc.CalculateProgressiveTax(0, d(100000), d(120000), d(92000))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = calc.CalculateProgressiveTax(0, d(-1), decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = calc.CalculateProgressiveTax(-1, d(812000), decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestCalculateProgressiveTax_UsesLoadedYear(t *testing.T) {
	// GIVEN: a flat 10% schedule loaded for 2030 only
	calc := tax.NewCalculator()
	require.NoError(t, calc.SetSchedule(2030, tax.Schedule{{MinIncome: decimal.Zero, Rate: d(10)}}))

	// WHEN
	loaded, err := calc.CalculateProgressiveTax(2030, d(812000), d(120000), d(92000))
	require.NoError(t, err)
	other, err := calc.CalculateProgressiveTax(2029, d(812000), d(120000), d(92000))
	require.NoError(t, err)

	// THEN: 2030 prices on its own schedule, 2029 falls back to the default
	assert.Equal(t, "60000", loaded.String())
	assert.Equal(t, "60000", calc.ComputeTax(2030, d(600000)).String())
	assert.True(t, calc.HasSchedule(2030))
	assert.Equal(t, "32800", other.String())
	assert.False(t, calc.HasSchedule(2029))
}

// =============================================================================
// WITHHOLDING
// =============================================================================

type fakeHistory struct {
	income   decimal.Decimal
	withheld decimal.Decimal
}

func (f fakeHistory) IncomeToDate(context.Context, string, generic.PayPeriod) (decimal.Decimal, error) {
	return f.income, nil
}

func (f fakeHistory) WithheldBefore(context.Context, string, generic.PayPeriod) (decimal.Decimal, error) {
	return f.withheld, nil
}

type params map[string]string

func (p params) Parameter(_ context.Context, key string, _ generic.TimePoint) (string, bool, error) {
	v, ok := p[key]
	return v, ok, nil
}

func TestWithholding_ReconcilesAgainstPriorMonths(t *testing.T) {
	// GIVEN: 812,000 year-to-date income in April, 9,000 withheld so far
	calc := tax.NewCalculator()
	history := fakeHistory{income: d(812000), withheld: d(9000)}

	// WHEN
	w, err := calc.WithholdingForPeriod(context.Background(), history, "emp-1", d(50000), generic.NewPayPeriod(2024, time.April))

	// THEN: taxable 600,000 -> projected 32,800; (32,800 - 9,000) / 3 = 7,933.33 -> 7,933
	require.NoError(t, err)
	assert.Equal(t, "600000", w.TaxableIncome.String())
	assert.Equal(t, "32800", w.ProjectedTax.String())
	assert.Equal(t, 3, w.Divisor)
	assert.Equal(t, "7933", w.Amount.String())
	assert.Equal(t, "12", w.MarginalRate.String())
}

func TestWithholding_JanuaryDividesByOne(t *testing.T) {
	calc := tax.NewCalculator()
	history := fakeHistory{income: d(312000), withheld: decimal.Zero}

	w, err := calc.WithholdingForPeriod(context.Background(), history, "emp-1", d(312000), generic.NewPayPeriod(2024, time.January))

	require.NoError(t, err)
	assert.Equal(t, 1, w.Divisor)
	assert.Equal(t, "5000", w.Amount.String())
}

func TestWithholding_OverWithheldFloorsAtZero(t *testing.T) {
	calc := tax.NewCalculator()
	history := fakeHistory{income: d(300000), withheld: d(50000)}

	w, err := calc.WithholdingForPeriod(context.Background(), history, "emp-1", d(25000), generic.NewPayPeriod(2024, time.June))

	require.NoError(t, err)
	assert.True(t, w.Amount.IsZero())
}

func TestWithholding_UsesConfiguredAllowances(t *testing.T) {
	calc := tax.NewCalculator(tax.WithParameters(params{
		"StandardDeduction_2025": "131000",
		"PersonalExemption_2025": "97000",
	}))
	history := fakeHistory{income: d(828000)}

	w, err := calc.WithholdingForPeriod(context.Background(), history, "emp-1", d(0), generic.NewPayPeriod(2025, time.February))

	require.NoError(t, err)
	assert.Equal(t, "600000", w.TaxableIncome.String())
	assert.Equal(t, "32800", w.Amount.String())
}
