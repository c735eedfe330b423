package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// SYSTEM PARAMETERS
// =============================================================================

// SetParameter adds a version of key, replacing one with the same effective date.
func (s *Store) SetParameter(ctx context.Context, p generic.Parameter) error {
	if p.Key == "" {
		return generic.Invalid("key", "is required")
	}
	if err := p.ValidityWindow().Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_parameters (key, effective_date, expiry_date, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key, effective_date) DO UPDATE SET
			expiry_date = excluded.expiry_date,
			value = excluded.value`,
		p.Key, p.Effective.String(), nullDate(p.Expiry), p.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to save parameter %s: %w", p.Key, err)
	}
	return nil
}

// Parameter returns the version of key in force at asOf.
func (s *Store) Parameter(ctx context.Context, key string, asOf generic.TimePoint) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT effective_date, expiry_date, value FROM system_parameters WHERE key = ? AND effective_date <= ?",
		key, asOf.String())
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	var versions []generic.Parameter
	for rows.Next() {
		var (
			p         = generic.Parameter{Key: key}
			effective string
			expiry    sql.NullString
		)
		if err := rows.Scan(&effective, &expiry, &p.Value); err != nil {
			return "", false, err
		}
		if p.Effective, err = generic.ParseDate(effective); err != nil {
			return "", false, err
		}
		if p.Expiry, err = parseNullDate(expiry); err != nil {
			return "", false, err
		}
		versions = append(versions, p)
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}

	p, ok := generic.Resolve(versions, asOf)
	if !ok {
		return "", false, nil
	}
	return p.Value, true, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// Append adds an audit entry. Entries are never updated or deleted.
func (s *Store) Append(ctx context.Context, e generic.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, subject, subject_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), string(e.ActorID), string(e.Action), e.Subject, e.SubjectID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching f in insertion order.
func (s *Store) Query(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, timestamp, actor_id, action, subject, subject_id, payload_json FROM audit_log WHERE 1=1"
	var args []any
	if f.Subject != "" {
		query += " AND subject = ?"
		args = append(args, f.Subject)
	}
	if f.SubjectID != "" {
		query += " AND subject_id = ?"
		args = append(args, f.SubjectID)
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e                 generic.AuditEntry
			ts, actor, action string
			payload           sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &actor, &action, &e.Subject, &e.SubjectID, &payload); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		e.ActorID = generic.Actor(actor)
		e.Action = generic.AuditAction(action)
		if payload.Valid && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit entry %s: bad payload: %w", e.ID, err)
			}
		}
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}
