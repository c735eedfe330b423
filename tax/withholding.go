package tax

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
)

// Withholding is the breakdown of one month's income tax.
type Withholding struct {
	Amount            decimal.Decimal
	IncomeToDate      decimal.Decimal
	StandardDeduction decimal.Decimal
	PersonalExemption decimal.Decimal
	TaxableIncome     decimal.Decimal
	ProjectedTax      decimal.Decimal
	WithheldToDate    decimal.Decimal
	Divisor           int
	MarginalRate      decimal.Decimal
}

// WithholdingForPeriod reconciles the year's projected tax against what has
// already been withheld and spreads the remainder over the prior months:
//
//	monthly = max(0, projected - withheld) / max(month-1, 1), rounded
//
// grossSalary is the current month's gross; it only enters through
// IncomeToDate once the current record leaves Draft.
func (c *Calculator) WithholdingForPeriod(ctx context.Context, history History, employeeID string, grossSalary decimal.Decimal, period generic.PayPeriod) (Withholding, error) {
	if grossSalary.IsNegative() {
		return Withholding{}, generic.Invalid("grossSalary", "must not be negative, got %s", grossSalary)
	}
	income, err := history.IncomeToDate(ctx, employeeID, period)
	if err != nil {
		return Withholding{}, fmt.Errorf("year-to-date income for %s: %w", employeeID, err)
	}
	deduction, exemption, err := c.Allowances(ctx, period)
	if err != nil {
		return Withholding{}, err
	}
	withheld, err := history.WithheldBefore(ctx, employeeID, period)
	if err != nil {
		return Withholding{}, fmt.Errorf("tax withheld to date for %s: %w", employeeID, err)
	}

	schedule := c.Brackets(period.Year)
	taxable := generic.MaxZero(income.Sub(deduction).Sub(exemption))
	projected := schedule.ComputeTax(taxable)

	divisor := period.PriorMonths()
	if divisor < 1 {
		divisor = 1
	}
	monthly := generic.RoundWhole(generic.MaxZero(projected.Sub(withheld)).Div(decimal.NewFromInt(int64(divisor))))

	w := Withholding{
		Amount:            monthly,
		IncomeToDate:      income,
		StandardDeduction: deduction,
		PersonalExemption: exemption,
		TaxableIncome:     taxable,
		ProjectedTax:      projected,
		WithheldToDate:    withheld,
		Divisor:           divisor,
		MarginalRate:      schedule.MarginalRate(taxable),
	}
	c.log.Debug("income tax withholding",
		zap.String("employee_id", employeeID),
		zap.Stringer("period", period),
		zap.String("gross", grossSalary.String()),
		zap.String("income_to_date", income.String()),
		zap.String("taxable", taxable.String()),
		zap.String("projected", projected.String()),
		zap.String("withheld", withheld.String()),
		zap.String("monthly", monthly.String()))
	return w, nil
}
