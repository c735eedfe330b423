/*
store.go - Persistence contracts shared across payroll components

PURPOSE:
  Defines the interfaces between calculation logic and the database that
  are not owned by a single component: the audit log and the effective-dated
  system parameter store. Component-specific stores live next to their
  components (ratetable.Store, salaryitem.Store, payroll.RecordStore).

CONVENTIONS:
  - Reads of a missing row return (nil, nil) or (value, false, nil); the
    service layer turns that into a NotFoundError.
  - Writes that would break an invariant return the structured errors from
    errors.go, never a driver error.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - store/memory: in-memory for tests and dev

SEE ALSO:
  - store/sqlite/sqlite.go: Concrete implementation
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// SYSTEM PARAMETERS - Effective-dated key/value configuration
// =============================================================================

// Parameter is one version of a keyed system setting.
type Parameter struct {
	Key       string
	Value     string
	Effective TimePoint
	Expiry    *TimePoint
}

func (p Parameter) ValidityWindow() Window { return Window{Effective: p.Effective, Expiry: p.Expiry} }

// ParameterStore resolves a setting as of a date.
type ParameterStore interface {
	// Parameter returns the value in force at asOf, or ok=false when unset.
	Parameter(ctx context.Context, key string, asOf TimePoint) (value string, ok bool, err error)
}

// =============================================================================
// AUDIT LOG - Who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   Actor          `json:"actorId"`
	Action    AuditAction    `json:"action"`
	Subject   string         `json:"subject"` // "rate_table", "salary_item", "salary_record"
	SubjectID string         `json:"subjectId"`
	Payload   map[string]any `json:"payload,omitempty"` // action-specific data
}

type AuditAction string

const (
	AuditRateTableCreated     AuditAction = "rate_table_created"
	AuditRateTableUpdated     AuditAction = "rate_table_updated"
	AuditRateTableDeleted     AuditAction = "rate_table_deleted"
	AuditSalaryItemCreated    AuditAction = "salary_item_created"
	AuditSalaryItemUpdated    AuditAction = "salary_item_updated"
	AuditSalaryItemDeactivate AuditAction = "salary_item_deactivated"
	AuditSalaryCalculated     AuditAction = "salary_calculated"
	AuditRecordApproved       AuditAction = "record_approved"
	AuditRecordPaid           AuditAction = "record_paid"
	AuditYearClosed           AuditAction = "year_closed"
	AuditStatutoryDefaultUsed AuditAction = "statutory_default_used"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	Subject   string
	SubjectID string
	ActorID   *Actor
	Actions   []AuditAction
	From      *time.Time
	To        *time.Time
}

// Matches applies the filter in memory.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		hit := false
		for _, a := range f.Actions {
			if a == e.Action {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// NopAudit discards entries. Used when no audit log is wired.
type NopAudit struct{}

func (NopAudit) Append(context.Context, AuditEntry) error { return nil }
func (NopAudit) Query(context.Context, AuditFilter) ([]AuditEntry, error) {
	return nil, nil
}
