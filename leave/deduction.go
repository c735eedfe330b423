package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
)

// Deduction is the priced unpaid leave of one pay period.
type Deduction struct {
	Amount    decimal.Decimal
	Days      decimal.Decimal
	DailyRate decimal.Decimal
	Records   []Record
}

// DeductionCalculator prices approved personal leave at the employee's
// per-day rate. Sick and annual leave never reduce pay.
type DeductionCalculator struct {
	ledger Ledger
}

func NewDeductionCalculator(ledger Ledger) *DeductionCalculator {
	return &DeductionCalculator{ledger: ledger}
}

// Calculate returns the deduction for emp in period.
func (c *DeductionCalculator) Calculate(ctx context.Context, emp employee.Employee, period generic.PayPeriod) (Deduction, error) {
	if err := employee.ValidateSalaryType(emp.SalaryType); err != nil {
		return Deduction{}, err
	}
	personal := TypePersonal
	records, err := c.ledger.ApprovedLeave(ctx, emp.ID, period.Start(), period.End(), &personal)
	if err != nil {
		return Deduction{}, fmt.Errorf("load approved leave for %s: %w", emp.ID, err)
	}
	return Price(emp.SalaryType, period, records)
}

// Price applies the deduction rule to an already-loaded set of records.
// Records that are not approved personal leave inside the period are ignored;
// malformed records fail the whole calculation.
func Price(st employee.SalaryType, period generic.PayPeriod, records []Record) (Deduction, error) {
	daily := st.DailyRate()
	span := period.Range()

	result := Deduction{Days: decimal.Zero, DailyRate: daily}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return Deduction{}, err
		}
		if r.Status != StatusApproved || r.Type != TypePersonal || !span.Covers(r.Span()) {
			continue
		}
		result.Days = result.Days.Add(r.Days)
		result.Records = append(result.Records, r)
	}
	result.Amount = generic.RoundCurrency(daily.Mul(result.Days))
	return result, nil
}
