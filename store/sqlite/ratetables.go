package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/ratetable"
)

// =============================================================================
// RATE TABLES
// =============================================================================

const rateTableColumns = `id, version, effective_date, expiry_date, labor_insurance_rate,
	health_insurance_rate, source, description, created_by, created_at, updated_at`

// InsertRateTable stores rt after checking version uniqueness and window
// overlap inside the same transaction.
func (s *Store) InsertRateTable(ctx context.Context, rt ratetable.RateTable) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := listRateTables(ctx, tx)
		if err != nil {
			return err
		}
		if err := ratetable.CheckVersionUnique(existing, rt); err != nil {
			return err
		}
		if err := ratetable.CheckOverlap(existing, rt); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rate_tables (`+rateTableColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rt.ID, rt.Version, rt.EffectiveDate.String(), nullDate(rt.ExpiryDate),
			rt.LaborInsuranceRate.String(), rt.HealthInsuranceRate.String(),
			string(rt.Source), nullString(rt.Description), nullString(string(rt.CreatedBy)),
			formatTime(rt.CreatedAt), formatTime(rt.UpdatedAt),
		)
		if isUniqueConstraintError(err) {
			return &generic.ConflictError{Kind: "rate table", Existing: rt.Version, Message: "version already exists"}
		}
		if err != nil {
			return fmt.Errorf("failed to insert rate table: %w", err)
		}
		return nil
	})
}

// UpdateRateTable replaces an existing table, re-checking overlap against
// every other table.
func (s *Store) UpdateRateTable(ctx context.Context, rt ratetable.RateTable) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := findRateTable(ctx, tx, rt.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return &generic.NotFoundError{Kind: "rate table", ID: rt.ID}
		}
		if err := ensureUnpinned(ctx, tx, cur.Version); err != nil {
			return err
		}

		existing, err := listRateTables(ctx, tx)
		if err != nil {
			return err
		}
		if err := ratetable.CheckVersionUnique(existing, rt); err != nil {
			return err
		}
		if err := ratetable.CheckOverlap(existing, rt); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE rate_tables SET
				version = ?, effective_date = ?, expiry_date = ?,
				labor_insurance_rate = ?, health_insurance_rate = ?,
				source = ?, description = ?, updated_at = ?
			WHERE id = ?`,
			rt.Version, rt.EffectiveDate.String(), nullDate(rt.ExpiryDate),
			rt.LaborInsuranceRate.String(), rt.HealthInsuranceRate.String(),
			string(rt.Source), nullString(rt.Description), formatTime(rt.UpdatedAt),
			rt.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update rate table: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &generic.NotFoundError{Kind: "rate table", ID: rt.ID}
		}
		return nil
	})
}

// DeleteRateTable removes a table unless its version is pinned.
func (s *Store) DeleteRateTable(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := findRateTable(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return &generic.NotFoundError{Kind: "rate table", ID: id}
		}
		if err := ensureUnpinned(ctx, tx, cur.Version); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM rate_tables WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete rate table: %w", err)
		}
		return nil
	})
}

func (s *Store) GetRateTable(ctx context.Context, id string) (*ratetable.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findRateTable(ctx, s.db, id)
}

func (s *Store) ListRateTables(ctx context.Context) ([]ratetable.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRateTables(ctx, s.db)
}

// RateTableInUse reports whether any salary record pins version.
func (s *Store) RateTableInUse(ctx context.Context, version string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rateTableInUse(ctx, s.db, version)
}

func rateTableInUse(ctx context.Context, q querier, version string) (bool, error) {
	var inUse bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM salary_records WHERE rate_table_version = ?)", version,
	).Scan(&inUse)
	return inUse, err
}

func ensureUnpinned(ctx context.Context, q querier, version string) error {
	inUse, err := rateTableInUse(ctx, q, version)
	if err != nil {
		return fmt.Errorf("failed to check rate table usage: %w", err)
	}
	if inUse {
		return ratetable.PinnedError(version)
	}
	return nil
}

func findRateTable(ctx context.Context, q querier, id string) (*ratetable.RateTable, error) {
	row := q.QueryRowContext(ctx, "SELECT "+rateTableColumns+" FROM rate_tables WHERE id = ?", id)
	rt, err := scanRateTable(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func listRateTables(ctx context.Context, q querier) ([]ratetable.RateTable, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+rateTableColumns+" FROM rate_tables ORDER BY effective_date, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ratetable.RateTable
	for rows.Next() {
		rt, err := scanRateTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func scanRateTable(row scanner) (ratetable.RateTable, error) {
	var (
		rt                         ratetable.RateTable
		effective, labor, health   string
		source, createdAt, updated string
		expiry, description, by    sql.NullString
	)
	err := row.Scan(&rt.ID, &rt.Version, &effective, &expiry, &labor, &health,
		&source, &description, &by, &createdAt, &updated)
	if err != nil {
		return ratetable.RateTable{}, err
	}

	if rt.EffectiveDate, err = generic.ParseDate(effective); err != nil {
		return ratetable.RateTable{}, err
	}
	if rt.ExpiryDate, err = parseNullDate(expiry); err != nil {
		return ratetable.RateTable{}, err
	}
	if rt.LaborInsuranceRate, err = decimal.NewFromString(labor); err != nil {
		return ratetable.RateTable{}, fmt.Errorf("rate table %s: bad labor rate: %w", rt.ID, err)
	}
	if rt.HealthInsuranceRate, err = decimal.NewFromString(health); err != nil {
		return ratetable.RateTable{}, fmt.Errorf("rate table %s: bad health rate: %w", rt.ID, err)
	}
	if rt.CreatedAt, err = parseTime(createdAt); err != nil {
		return ratetable.RateTable{}, err
	}
	if rt.UpdatedAt, err = parseTime(updated); err != nil {
		return ratetable.RateTable{}, err
	}
	rt.Source = ratetable.Source(source)
	rt.Description = description.String
	rt.CreatedBy = generic.Actor(by.String)
	return rt, nil
}
