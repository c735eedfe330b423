package payroll

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// Attendance is the number of days an employee actually worked in a pay
// period, as recorded by HR. It is independent of leave: unpaid personal
// leave is priced by the leave deduction, and paid leave stays paid.
type Attendance struct {
	EmployeeID string            `json:"employeeId"`
	Period     generic.PayPeriod `json:"period"`
	WorkDays   decimal.Decimal   `json:"workDays"`
}

func (a Attendance) Validate() error {
	if a.EmployeeID == "" {
		return generic.Invalid("employeeId", "is required")
	}
	if err := a.Period.Validate(); err != nil {
		return err
	}
	if a.WorkDays.IsNegative() {
		return generic.Invalid("workDays", "must not be negative, got %s", a.WorkDays)
	}
	return nil
}

// AttendanceSource reports days actually worked. A period with no recorded
// attendance counts every scheduled day as worked, as does a pipeline built
// without a source.
type AttendanceSource interface {
	// Attendance returns the recorded days of (employeeID, period), or nil.
	Attendance(ctx context.Context, employeeID string, period generic.PayPeriod) (*Attendance, error)
}
