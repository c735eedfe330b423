package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
)

// =============================================================================
// SALARY RECORDS
// =============================================================================

const recordColumns = `id, employee_id, year, month, base_salary, total_additions, total_deductions,
	gross_salary, net_salary, rate_table_version, status, is_year_end_closed,
	approved_by, approved_at, paid_at, created_by, created_at, updated_at`

// SaveRecord upserts the record of (employee, period) with its items. The
// stored record, if any, must still be replaceable, and the rate table the
// record was priced with must still hold the same rates.
func (s *Store) SaveRecord(ctx context.Context, rec payroll.SalaryRecord, pricedWith *ratetable.RateTable) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if pricedWith != nil {
			stored, err := findRateTable(ctx, tx, pricedWith.ID)
			if err != nil {
				return err
			}
			if err := ratetable.CheckUnchanged(stored, *pricedWith); err != nil {
				return err
			}
		}
		cur, err := findRecord(ctx, tx, "employee_id = ? AND year = ? AND month = ?",
			rec.EmployeeID, rec.Period.Year, int(rec.Period.Month))
		if err != nil {
			return err
		}
		if err := payroll.CanReplace(cur); err != nil {
			return err
		}
		if cur != nil && cur.ID != rec.ID {
			if _, err := tx.ExecContext(ctx, "DELETE FROM salary_records WHERE id = ?", cur.ID); err != nil {
				return fmt.Errorf("failed to drop replaced record: %w", err)
			}
		}
		return writeRecord(ctx, tx, rec)
	})
}

func (s *Store) GetRecord(ctx context.Context, id string) (*payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findRecord(ctx, s.db, "id = ?", id)
}

func (s *Store) FindRecord(ctx context.Context, employeeID string, period generic.PayPeriod) (*payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findRecord(ctx, s.db, "employee_id = ? AND year = ? AND month = ?", employeeID, period.Year, int(period.Month))
}

func (s *Store) FindPrevious(ctx context.Context, employeeID string, period generic.PayPeriod) (*payroll.SalaryRecord, error) {
	return s.FindRecord(ctx, employeeID, period.Previous())
}

func (s *Store) ListRecordsForYear(ctx context.Context, employeeID string, year int) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRecords(ctx, s.db, "employee_id = ? AND year = ?", employeeID, year)
}

func (s *Store) ListRecordsForPeriod(ctx context.Context, period generic.PayPeriod) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRecords(ctx, s.db, "year = ? AND month = ?", period.Year, int(period.Month))
}

// UpdateRecord applies fn to the stored record and writes it back in one
// transaction.
func (s *Store) UpdateRecord(ctx context.Context, id string, fn func(*payroll.SalaryRecord) error) (*payroll.SalaryRecord, error) {
	var out *payroll.SalaryRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := findRecord(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}
		if rec == nil {
			return &generic.NotFoundError{Kind: "salary record", ID: id}
		}
		if err := fn(rec); err != nil {
			return err
		}
		if err := writeRecord(ctx, tx, *rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CloseYear marks every record of year closed, refusing while Drafts remain.
func (s *Store) CloseYear(ctx context.Context, year int, at time.Time) (int, error) {
	var closed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		recs, err := listRecords(ctx, tx, "year = ?", year)
		if err != nil {
			return err
		}
		if err := payroll.CheckYearClosable(year, recs); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE salary_records SET is_year_end_closed = 1, updated_at = ? WHERE year = ? AND is_year_end_closed = 0",
			formatTime(at), year)
		if err != nil {
			return fmt.Errorf("failed to close year: %w", err)
		}
		closed, err = res.RowsAffected()
		return err
	})
	return int(closed), err
}

// writeRecord upserts the record row and replaces its items.
func writeRecord(ctx context.Context, tx *sql.Tx, rec payroll.SalaryRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO salary_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_salary = excluded.base_salary,
			total_additions = excluded.total_additions,
			total_deductions = excluded.total_deductions,
			gross_salary = excluded.gross_salary,
			net_salary = excluded.net_salary,
			rate_table_version = excluded.rate_table_version,
			status = excluded.status,
			is_year_end_closed = excluded.is_year_end_closed,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			paid_at = excluded.paid_at,
			updated_at = excluded.updated_at`,
		rec.ID, rec.EmployeeID, rec.Period.Year, int(rec.Period.Month),
		rec.BaseSalary.String(), rec.TotalAdditions.String(), rec.TotalDeductions.String(),
		rec.GrossSalary, rec.NetSalary, rec.RateTableVersion, string(rec.Status),
		boolInt(rec.IsYearEndClosed), nullString(string(rec.ApprovedBy)),
		nullTime(rec.ApprovedAt), nullTime(rec.PaidAt), nullString(string(rec.CreatedBy)),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save salary record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM salary_items WHERE record_id = ?", rec.ID); err != nil {
		return fmt.Errorf("failed to clear salary items: %w", err)
	}
	for i, it := range rec.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO salary_items
			(record_id, position, item_code, item_name, item_type, amount, description, is_system_generated, used_default)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, it.ItemCode, it.ItemName, string(it.Type), it.Amount.String(),
			nullString(it.Description), boolInt(it.IsSystemGenerated), boolInt(it.UsedDefault),
		)
		if err != nil {
			return fmt.Errorf("failed to save salary item %s: %w", it.ItemCode, err)
		}
	}
	return nil
}

func findRecord(ctx context.Context, q querier, where string, args ...any) (*payroll.SalaryRecord, error) {
	recs, err := listRecords(ctx, q, where, args...)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// listRecords reads matching records, then their items. Rows are closed
// before items are queried so a single-connection pool never blocks.
func listRecords(ctx context.Context, q querier, where string, args ...any) ([]payroll.SalaryRecord, error) {
	recs, err := queryRecordRows(ctx, q, where, args...)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Items, err = loadItems(ctx, q, recs[i].ID); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func queryRecordRows(ctx context.Context, q querier, where string, args ...any) ([]payroll.SalaryRecord, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM salary_records WHERE "+where+" ORDER BY year, month, employee_id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.SalaryRecord
	for rows.Next() {
		var (
			r                            payroll.SalaryRecord
			month, closed                int
			base, additions, deductions  string
			status, createdAt, updatedAt string
			approvedBy, createdBy        sql.NullString
			approvedAt, paidAt           sql.NullString
		)
		err := rows.Scan(&r.ID, &r.EmployeeID, &r.Period.Year, &month, &base, &additions, &deductions,
			&r.GrossSalary, &r.NetSalary, &r.RateTableVersion, &status, &closed,
			&approvedBy, &approvedAt, &paidAt, &createdBy, &createdAt, &updatedAt)
		if err != nil {
			return nil, err
		}
		r.Period.Month = time.Month(month)
		r.Status = payroll.Status(status)
		r.IsYearEndClosed = closed != 0
		r.ApprovedBy = generic.Actor(approvedBy.String)
		r.CreatedBy = generic.Actor(createdBy.String)

		if r.BaseSalary, err = decimal.NewFromString(base); err != nil {
			return nil, fmt.Errorf("record %s: bad base salary: %w", r.ID, err)
		}
		if r.TotalAdditions, err = decimal.NewFromString(additions); err != nil {
			return nil, fmt.Errorf("record %s: bad additions: %w", r.ID, err)
		}
		if r.TotalDeductions, err = decimal.NewFromString(deductions); err != nil {
			return nil, fmt.Errorf("record %s: bad deductions: %w", r.ID, err)
		}
		if r.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
			return nil, err
		}
		if r.PaidAt, err = parseNullTime(paidAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadItems(ctx context.Context, q querier, recordID string) ([]payroll.SalaryItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_code, item_name, item_type, amount, description, is_system_generated, used_default
		FROM salary_items WHERE record_id = ? ORDER BY position`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.SalaryItem
	for rows.Next() {
		var (
			it           payroll.SalaryItem
			typ, amount  string
			description  sql.NullString
			system, dflt int
		)
		if err := rows.Scan(&it.ItemCode, &it.ItemName, &typ, &amount, &description, &system, &dflt); err != nil {
			return nil, err
		}
		if it.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("item %s of %s: bad amount: %w", it.ItemCode, recordID, err)
		}
		it.Type = salaryitem.ItemType(typ)
		it.Description = description.String
		it.IsSystemGenerated = system != 0
		it.UsedDefault = dflt != 0
		out = append(out, it)
	}
	return out, rows.Err()
}
