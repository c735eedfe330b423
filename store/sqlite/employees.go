package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// PutEmployee inserts or replaces an employee.
func (s *Store) PutEmployee(ctx context.Context, emp employee.Employee) error {
	if emp.ID == "" {
		return generic.Invalid("id", "is required")
	}
	if err := employee.ValidateSalaryType(emp.SalaryType); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, department, salary_kind, salary_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department = excluded.department,
			salary_kind = excluded.salary_kind,
			salary_rate = excluded.salary_rate
	`
	_, err := s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, nullString(emp.Department),
		string(emp.SalaryType.Kind()), emp.SalaryType.Rate().String(),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id string) (*employee.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, department, salary_kind, salary_rate FROM employees WHERE id = ?", id)
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListEmployees returns all employees ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]employee.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, department, salary_kind, salary_rate FROM employees ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []employee.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (employee.Employee, error) {
	var (
		emp        employee.Employee
		department sql.NullString
		kind, rate string
	)
	if err := row.Scan(&emp.ID, &emp.Name, &department, &kind, &rate); err != nil {
		return employee.Employee{}, err
	}
	amount, err := decimal.NewFromString(rate)
	if err != nil {
		return employee.Employee{}, fmt.Errorf("employee %s: bad salary rate %q: %w", emp.ID, rate, err)
	}
	st, err := employee.NewSalaryType(employee.Kind(kind), amount)
	if err != nil {
		return employee.Employee{}, fmt.Errorf("employee %s: %w", emp.ID, err)
	}
	emp.Department = department.String
	emp.SalaryType = st
	return emp, nil
}

// =============================================================================
// LEAVE
// =============================================================================

// AddLeave stores a leave record as reported by the leave workflow.
func (s *Store) AddLeave(ctx context.Context, r leave.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_records (id, employee_id, leave_type, status, start_date, end_date, days, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			leave_type = excluded.leave_type,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			days = excluded.days,
			reason = excluded.reason`,
		r.ID, r.EmployeeID, string(r.Type), string(r.Status),
		r.StartDate.String(), r.EndDate.String(), r.Days.String(), nullString(r.Reason),
	)
	if err != nil {
		return fmt.Errorf("failed to save leave record: %w", err)
	}
	return nil
}

// ApprovedLeave returns approved leave lying entirely inside [start, end].
func (s *Store) ApprovedLeave(ctx context.Context, employeeID string, start, end generic.TimePoint, leaveType *leave.Type) ([]leave.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, leave_type, status, start_date, end_date, days, reason
		FROM leave_records
		WHERE employee_id = ? AND status = ? AND start_date >= ? AND end_date <= ?`
	args := []any{employeeID, string(leave.StatusApproved), start.String(), end.String()}
	if leaveType != nil {
		query += " AND leave_type = ?"
		args = append(args, string(*leaveType))
	}
	query += " ORDER BY start_date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Record
	for rows.Next() {
		var (
			r                           leave.Record
			typ, status, from, to, days string
			reason                      sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &typ, &status, &from, &to, &days, &reason); err != nil {
			return nil, err
		}
		if r.StartDate, err = generic.ParseDate(from); err != nil {
			return nil, err
		}
		if r.EndDate, err = generic.ParseDate(to); err != nil {
			return nil, err
		}
		if r.Days, err = decimal.NewFromString(days); err != nil {
			return nil, fmt.Errorf("leave %s: bad days %q: %w", r.ID, days, err)
		}
		r.Type = leave.Type(typ)
		r.Status = leave.Status(status)
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}
