package payroll

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
)

// WorkDaysKey is the parameter holding scheduled working days per month.
const WorkDaysKey = "MONTHLY_WORK_DAYS"

// DefaultWorkDays applies when WorkDaysKey is unset.
var DefaultWorkDays = decimal.NewFromInt(22)

// BaseSalary derives base pay from the salary-type variant:
//
//	Monthly  rate / 30 x actualWorkDays
//	Daily    rate x actualWorkDays
//	Hourly   rate x 8 x actualWorkDays
//
// totalWorkDays is the scheduled days of the period; it is validated but the
// formulas above do not depend on it.
func BaseSalary(st employee.SalaryType, actualWorkDays, totalWorkDays decimal.Decimal) (decimal.Decimal, error) {
	if err := employee.ValidateSalaryType(st); err != nil {
		return decimal.Zero, err
	}
	if actualWorkDays.IsNegative() {
		return decimal.Zero, generic.Invalid("workDays", "must not be negative, got %s", actualWorkDays)
	}
	if totalWorkDays.IsNegative() {
		return decimal.Zero, generic.Invalid("totalWorkDays", "must not be negative, got %s", totalWorkDays)
	}

	var base decimal.Decimal
	switch v := st.(type) {
	case employee.Monthly:
		base = v.Amount.Mul(actualWorkDays).Div(employee.ProrationDays)
	case employee.Daily:
		base = v.Amount.Mul(actualWorkDays)
	case employee.Hourly:
		base = v.Amount.Mul(employee.StandardWorkdayHours).Mul(actualWorkDays)
	default:
		return decimal.Zero, generic.Invalid("salaryType", "unsupported salary type %T", st)
	}
	return generic.RoundCurrency(base), nil
}
