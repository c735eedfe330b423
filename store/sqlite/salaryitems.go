package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/salaryitem"
)

// =============================================================================
// SALARY ITEM DEFINITIONS
// =============================================================================

const definitionColumns = `id, item_code, item_name, item_type, calculation_method, amount,
	hourly_rate, percentage_rate, is_active, effective_date, expiry_date, description,
	created_by, created_at, updated_at`

// InsertDefinition stores a new version. A second version of the same code
// starting on the same day is a ConflictError.
func (s *Store) InsertDefinition(ctx context.Context, d salaryitem.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO salary_item_definitions (`+definitionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ItemCode, d.ItemName, string(d.Type), string(d.Method),
		nullDecimal(d.Amount), nullDecimal(d.HourlyRate), nullDecimal(d.PercentageRate),
		boolInt(d.IsActive), d.EffectiveDate.String(), nullDate(d.ExpiryDate),
		nullString(d.Description), nullString(string(d.CreatedBy)),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return &generic.ConflictError{Kind: "salary item", Existing: d.ItemCode,
			Message: "a version already starts on " + d.EffectiveDate.String()}
	}
	if err != nil {
		return fmt.Errorf("failed to insert salary item: %w", err)
	}
	return nil
}

func (s *Store) UpdateDefinition(ctx context.Context, d salaryitem.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE salary_item_definitions SET
			item_name = ?, item_type = ?, calculation_method = ?,
			amount = ?, hourly_rate = ?, percentage_rate = ?,
			is_active = ?, expiry_date = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		d.ItemName, string(d.Type), string(d.Method),
		nullDecimal(d.Amount), nullDecimal(d.HourlyRate), nullDecimal(d.PercentageRate),
		boolInt(d.IsActive), nullDate(d.ExpiryDate), nullString(d.Description), formatTime(d.UpdatedAt),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update salary item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "salary item", ID: d.ID}
	}
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*salaryitem.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+definitionColumns+" FROM salary_item_definitions WHERE id = ?", id)
	d, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDefinitions returns every version of code, or all definitions when
// code is empty.
func (s *Store) ListDefinitions(ctx context.Context, code string) ([]salaryitem.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + definitionColumns + " FROM salary_item_definitions"
	var args []any
	if code != "" {
		query += " WHERE item_code = ?"
		args = append(args, code)
	}
	query += " ORDER BY item_code, effective_date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []salaryitem.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDefinition(row scanner) (salaryitem.Definition, error) {
	var (
		d                            salaryitem.Definition
		typ, method, effective       string
		createdAt, updatedAt         string
		active                       int
		amount, hourly, percentage   sql.NullString
		expiry, description, creator sql.NullString
	)
	err := row.Scan(&d.ID, &d.ItemCode, &d.ItemName, &typ, &method, &amount, &hourly, &percentage,
		&active, &effective, &expiry, &description, &creator, &createdAt, &updatedAt)
	if err != nil {
		return salaryitem.Definition{}, err
	}

	d.Type = salaryitem.ItemType(typ)
	d.Method = salaryitem.Method(method)
	d.IsActive = active != 0
	d.Description = description.String
	d.CreatedBy = generic.Actor(creator.String)
	if d.Amount, err = parseNullDecimal(amount); err != nil {
		return salaryitem.Definition{}, err
	}
	if d.HourlyRate, err = parseNullDecimal(hourly); err != nil {
		return salaryitem.Definition{}, err
	}
	if d.PercentageRate, err = parseNullDecimal(percentage); err != nil {
		return salaryitem.Definition{}, err
	}
	if d.EffectiveDate, err = generic.ParseDate(effective); err != nil {
		return salaryitem.Definition{}, err
	}
	if d.ExpiryDate, err = parseNullDate(expiry); err != nil {
		return salaryitem.Definition{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return salaryitem.Definition{}, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return salaryitem.Definition{}, err
	}
	return d, nil
}
