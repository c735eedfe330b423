package payroll

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/tax"
)

// The operations below expose single pipeline steps for preview screens.
// They read the same configuration as Calculate and never write.

func (p *Pipeline) CalculateBaseSalary(ctx context.Context, employeeID string, period generic.PayPeriod, workDays, totalWorkDays decimal.Decimal) (decimal.Decimal, error) {
	if err := period.Validate(); err != nil {
		return decimal.Zero, err
	}
	emp, err := employee.MustGet(ctx, p.employees, employeeID)
	if err != nil {
		return decimal.Zero, err
	}
	return BaseSalary(emp.SalaryType, workDays, totalWorkDays)
}

func (p *Pipeline) CalculateLeaveDeduction(ctx context.Context, employeeID string, period generic.PayPeriod) (leave.Deduction, error) {
	if err := period.Validate(); err != nil {
		return leave.Deduction{}, err
	}
	emp, err := employee.MustGet(ctx, p.employees, employeeID)
	if err != nil {
		return leave.Deduction{}, err
	}
	return p.leave.Calculate(ctx, *emp, period)
}

func (p *Pipeline) CalculateOvertimePay(ctx context.Context, employeeID string, period generic.PayPeriod, hours decimal.Decimal) (OvertimePay, error) {
	if err := period.Validate(); err != nil {
		return OvertimePay{}, err
	}
	emp, err := employee.MustGet(ctx, p.employees, employeeID)
	if err != nil {
		return OvertimePay{}, err
	}
	return priceOvertime(ctx, p.catalog, *emp, period, hours)
}

// CalculateIncomeTax is the withholding Calculate would apply for a gross
// salary in period, given the employee's settled history.
func (p *Pipeline) CalculateIncomeTax(ctx context.Context, grossSalary decimal.Decimal, employeeID string, period generic.PayPeriod) (tax.Withholding, error) {
	if err := period.Validate(); err != nil {
		return tax.Withholding{}, err
	}
	if employeeID == "" {
		return tax.Withholding{}, generic.Invalid("employeeId", "is required")
	}
	return p.tax.WithholdingForPeriod(ctx, p.history, employeeID, grossSalary, period)
}
