package payroll

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/salaryitem"
)

// OvertimeMultiplier applies when no Hourly OVERTIME item is in force.
var OvertimeMultiplier = decimal.RequireFromString("1.34")

// OvertimePay is a priced overtime line.
type OvertimePay struct {
	Amount      decimal.Decimal
	HourlyRate  decimal.Decimal
	Hours       decimal.Decimal
	UsedDefault bool
	Name        string
}

// priceOvertime uses the Hourly OVERTIME definition in force for the period
// when there is one. Otherwise hours are paid at the employee's hourly
// equivalent (daily rate / 8) times OvertimeMultiplier.
func priceOvertime(ctx context.Context, catalog ItemCatalog, emp employee.Employee, period generic.PayPeriod, hours decimal.Decimal) (OvertimePay, error) {
	if hours.IsNegative() {
		return OvertimePay{}, generic.Invalid("overtimeHours", "must not be negative, got %s", hours)
	}
	if err := employee.ValidateSalaryType(emp.SalaryType); err != nil {
		return OvertimePay{}, err
	}

	def, err := catalog.Resolve(ctx, CodeOvertime, period.AsOf())
	if err != nil {
		return OvertimePay{}, err
	}
	if def != nil && def.Method == salaryitem.MethodHourly && def.Type == salaryitem.TypeAddition {
		return OvertimePay{
			Amount:     def.Compute(hours, decimal.Zero),
			HourlyRate: *def.HourlyRate,
			Hours:      hours,
			Name:       def.ItemName,
		}, nil
	}

	rate := emp.SalaryType.DailyRate().Div(employee.StandardWorkdayHours).Mul(OvertimeMultiplier)
	return OvertimePay{
		Amount:      generic.RoundCurrency(rate.Mul(hours)),
		HourlyRate:  generic.RoundCurrency(rate),
		Hours:       hours,
		UsedDefault: true,
		Name:        "Overtime",
	}, nil
}
