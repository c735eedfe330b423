package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

// SetAttendance records or replaces the days worked in one period.
func (s *Store) SetAttendance(ctx context.Context, a payroll.Attendance) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (employee_id, year, month, work_days)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, year, month) DO UPDATE SET work_days = excluded.work_days`,
		a.EmployeeID, a.Period.Year, int(a.Period.Month), a.WorkDays.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save attendance: %w", err)
	}
	return nil
}

func (s *Store) Attendance(ctx context.Context, employeeID string, period generic.PayPeriod) (*payroll.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var days string
	err := s.db.QueryRowContext(ctx,
		"SELECT work_days FROM attendance WHERE employee_id = ? AND year = ? AND month = ?",
		employeeID, period.Year, int(period.Month),
	).Scan(&days)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	worked, err := decimal.NewFromString(days)
	if err != nil {
		return nil, fmt.Errorf("attendance %s %s: bad work days: %w", employeeID, period, err)
	}
	return &payroll.Attendance{EmployeeID: employeeID, Period: period, WorkDays: worked}, nil
}
