// Package employee defines the read-only view of an employee that payroll consumes.
package employee

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// SALARY TYPE - Sealed sum type, exactly one rate per variant
// =============================================================================

// SalaryType is one of Monthly, Daily or Hourly.
type SalaryType interface {
	Kind() Kind
	Rate() decimal.Decimal
	// DailyRate converts the variant's rate to a per-day rate.
	DailyRate() decimal.Decimal
	sealed()
}

type Kind string

const (
	KindMonthly Kind = "monthly"
	KindDaily   Kind = "daily"
	KindHourly  Kind = "hourly"
)

// StandardWorkdayHours is the fixed length of a workday for hourly staff.
var StandardWorkdayHours = decimal.NewFromInt(8)

// ProrationDays is the fixed month length monthly salaries are prorated against.
var ProrationDays = decimal.NewFromInt(30)

type Monthly struct{ Amount decimal.Decimal }
type Daily struct{ Amount decimal.Decimal }
type Hourly struct{ Amount decimal.Decimal }

func (Monthly) Kind() Kind                   { return KindMonthly }
func (m Monthly) Rate() decimal.Decimal      { return m.Amount }
func (m Monthly) DailyRate() decimal.Decimal { return m.Amount.Div(ProrationDays) }
func (Monthly) sealed()                      {}

func (Daily) Kind() Kind                   { return KindDaily }
func (d Daily) Rate() decimal.Decimal      { return d.Amount }
func (d Daily) DailyRate() decimal.Decimal { return d.Amount }
func (Daily) sealed()                      {}

func (Hourly) Kind() Kind                   { return KindHourly }
func (h Hourly) Rate() decimal.Decimal      { return h.Amount }
func (h Hourly) DailyRate() decimal.Decimal { return h.Amount.Mul(StandardWorkdayHours) }
func (Hourly) sealed()                      {}

// NewSalaryType builds the variant named by kind.
func NewSalaryType(kind Kind, rate decimal.Decimal) (SalaryType, error) {
	switch kind {
	case KindMonthly:
		return Monthly{Amount: rate}, nil
	case KindDaily:
		return Daily{Amount: rate}, nil
	case KindHourly:
		return Hourly{Amount: rate}, nil
	default:
		return nil, generic.Invalid("salaryType", "unsupported salary type %q", kind)
	}
}

// ValidateSalaryType rejects a missing variant or a non-positive rate.
func ValidateSalaryType(st SalaryType) error {
	if st == nil {
		return generic.Invalid("salaryType", "employee has no salary type configured")
	}
	if !st.Rate().IsPositive() {
		return generic.Invalid("salaryType", "%s rate must be greater than zero, got %s", st.Kind(), st.Rate())
	}
	return nil
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID         string
	Name       string
	Department string
	SalaryType SalaryType
}

func (e Employee) String() string {
	return fmt.Sprintf("%s (%s)", e.Name, e.ID)
}

// Directory looks employees up by ID. A missing employee is (nil, nil).
type Directory interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
}

// MustGet resolves an employee or returns a NotFoundError.
func MustGet(ctx context.Context, dir Directory, id string) (*Employee, error) {
	emp, err := dir.GetEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load employee %s: %w", id, err)
	}
	if emp == nil {
		return nil, &generic.NotFoundError{Kind: "employee", ID: id}
	}
	return emp, nil
}
