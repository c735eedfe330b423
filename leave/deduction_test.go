package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
)

// fakeLedger filters like a real store would so the calculator's own
// filtering is exercised on top of it.
type fakeLedger struct {
	records []leave.Record
	err     error
}

func (f *fakeLedger) ApprovedLeave(_ context.Context, employeeID string, start, end generic.TimePoint, leaveType *leave.Type) ([]leave.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []leave.Record
	for _, r := range f.records {
		if r.EmployeeID != employeeID || r.Status != leave.StatusApproved {
			continue
		}
		if leaveType != nil && r.Type != *leaveType {
			continue
		}
		if r.StartDate.Before(start) || r.EndDate.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

var march2024 = generic.NewPayPeriod(2024, time.March)

func dailyEmployee(rate int64) employee.Employee {
	return employee.Employee{ID: "emp-1", Name: "Lin", SalaryType: employee.Daily{Amount: decimal.NewFromInt(rate)}}
}

func approved(t leave.Type, days int64, startDay int) leave.Record {
	return leave.Record{
		ID:         "lv-" + string(t),
		EmployeeID: "emp-1",
		Type:       t,
		Status:     leave.StatusApproved,
		StartDate:  generic.NewTimePoint(2024, time.March, startDay),
		EndDate:    generic.NewTimePoint(2024, time.March, startDay+int(days)-1),
		Days:       decimal.NewFromInt(days),
	}
}

func TestDeduction_PersonalLeaveIsDeducted(t *testing.T) {
	// GIVEN: 2 approved personal leave days at a daily rate of 1000
	calc := leave.NewDeductionCalculator(&fakeLedger{records: []leave.Record{approved(leave.TypePersonal, 2, 4)}})

	// WHEN: the March deduction is calculated
	got, err := calc.Calculate(context.Background(), dailyEmployee(1000), march2024)

	// THEN: 2 x 1000
	require.NoError(t, err)
	assert.Equal(t, "2000", got.Amount.String())
	assert.True(t, got.Days.Equal(decimal.NewFromInt(2)))
}

func TestDeduction_SickLeaveIsNotDeducted(t *testing.T) {
	calc := leave.NewDeductionCalculator(&fakeLedger{records: []leave.Record{approved(leave.TypeSick, 2, 4)}})

	got, err := calc.Calculate(context.Background(), dailyEmployee(1000), march2024)

	require.NoError(t, err)
	assert.True(t, got.Amount.IsZero())
}

func TestPrice_IgnoresUnapprovedAndOutOfPeriod(t *testing.T) {
	pending := approved(leave.TypePersonal, 1, 10)
	pending.Status = leave.StatusPending
	straddling := approved(leave.TypePersonal, 3, 30) // runs into April
	annual := approved(leave.TypeAnnual, 5, 11)
	counted := approved(leave.TypePersonal, 1, 20)

	got, err := leave.Price(employee.Monthly{Amount: decimal.NewFromInt(30000)}, march2024,
		[]leave.Record{pending, straddling, annual, counted})

	require.NoError(t, err)
	assert.Equal(t, "1000", got.Amount.String())
	assert.Len(t, got.Records, 1)
}

func TestPrice_HourlyUsesEightHourDay(t *testing.T) {
	got, err := leave.Price(employee.Hourly{Amount: decimal.NewFromInt(200)}, march2024,
		[]leave.Record{approved(leave.TypePersonal, 1, 5)})

	require.NoError(t, err)
	assert.Equal(t, "1600", got.Amount.String())
}

func TestPrice_MalformedRecordAborts(t *testing.T) {
	bad := approved(leave.TypePersonal, 1, 5)
	bad.Days = decimal.Zero

	_, err := leave.Price(employee.Daily{Amount: decimal.NewFromInt(1000)}, march2024, []leave.Record{bad})

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestDeduction_LedgerFailureIsSurfaced(t *testing.T) {
	calc := leave.NewDeductionCalculator(&fakeLedger{err: errors.New("ledger offline")})

	_, err := calc.Calculate(context.Background(), dailyEmployee(1000), march2024)

	assert.ErrorContains(t, err, "ledger offline")
}

func TestDeduction_MissingRateIsConfigurationError(t *testing.T) {
	calc := leave.NewDeductionCalculator(&fakeLedger{})

	_, err := calc.Calculate(context.Background(), employee.Employee{ID: "emp-1", SalaryType: employee.Daily{}}, march2024)

	assert.ErrorIs(t, err, generic.ErrValidation)
}
