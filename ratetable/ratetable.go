/*
ratetable.go - Statutory insurance rate tables with effective windows

PURPOSE:
  A RateTable carries the labor and health insurance rates that apply over
  an effective window. Windows never overlap, so "the rate in force on date
  D" is always unique.

INVARIANTS:
  - 0 <= LaborInsuranceRate <= 1 and 0 <= HealthInsuranceRate <= 1
  - ExpiryDate, if set, is not before EffectiveDate
  - No two stored tables have overlapping windows (closed intervals, nil
    expiry = open-ended)
  - Version is unique; a version pinned by a salary record is immutable
  - A record is only saved if the table it was priced with is unchanged

CONCURRENCY:
  The overlap check and the insert are one atomic step inside the Store
  (CheckOverlap is called under the store's writer lock and transaction),
  so two concurrent creators cannot both pass validation.

SEE ALSO:
  - registry.go: Create/Update/EffectiveAsOf
  - import.go: JSON and CSV file import
  - generic/window.go: interval arithmetic
*/
package ratetable

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

type Source string

const (
	SourceManual Source = "Manual"
	SourceFile   Source = "File"
)

// RateTable is one version of the statutory insurance rates.
type RateTable struct {
	ID                  string             `json:"id"`
	Version             string             `json:"version"`
	EffectiveDate       generic.TimePoint  `json:"effectiveDate"`
	ExpiryDate          *generic.TimePoint `json:"expiryDate,omitempty"`
	LaborInsuranceRate  decimal.Decimal    `json:"laborInsuranceRate"`
	HealthInsuranceRate decimal.Decimal    `json:"healthInsuranceRate"`
	Source              Source             `json:"source"`
	Description         string             `json:"description,omitempty"`
	CreatedBy           generic.Actor      `json:"createdBy,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

func (rt RateTable) ValidityWindow() generic.Window {
	return generic.NewWindow(rt.EffectiveDate, rt.ExpiryDate)
}

// Validate checks field ranges. It does not look at other tables.
func (rt RateTable) Validate() error {
	if strings.TrimSpace(rt.Version) == "" {
		return generic.Invalid("version", "is required")
	}
	if err := validRate("laborInsuranceRate", rt.LaborInsuranceRate); err != nil {
		return err
	}
	if err := validRate("healthInsuranceRate", rt.HealthInsuranceRate); err != nil {
		return err
	}
	return rt.ValidityWindow().Validate()
}

func validRate(field string, r decimal.Decimal) error {
	if r.IsNegative() || r.GreaterThan(generic.One) {
		return generic.Invalid(field, "must be between 0 and 1, got %s", r)
	}
	return nil
}

// CheckOverlap returns a ConflictError naming the first existing table whose
// window overlaps candidate's. Rows with candidate's own ID are skipped so an
// update never collides with itself. Stores call this inside their write lock.
func CheckOverlap(existing []RateTable, candidate RateTable) error {
	hit, ok := generic.FirstOverlap(existing, candidate.ValidityWindow(), func(rt RateTable) bool {
		return candidate.ID != "" && rt.ID == candidate.ID
	})
	if !ok {
		return nil
	}
	return &generic.ConflictError{
		Kind:     "rate table",
		Existing: hit.Version,
		Message: fmt.Sprintf("window %s overlaps existing window %s",
			candidate.ValidityWindow(), hit.ValidityWindow()),
	}
}

// CheckVersionUnique rejects a second table with the same version label.
func CheckVersionUnique(existing []RateTable, candidate RateTable) error {
	for _, rt := range existing {
		if rt.ID != candidate.ID && rt.Version == candidate.Version {
			return &generic.ConflictError{Kind: "rate table", Existing: rt.Version, Message: "version already exists"}
		}
	}
	return nil
}

// ErrChanged is returned when a table was edited or removed between the
// moment a calculation resolved it and the moment its record is saved.
var ErrChanged error = &generic.ConflictError{Kind: "rate table", Message: "changed after it was resolved"}

// PinnedError refuses a mutation of a version that a salary record pins.
func PinnedError(version string) error {
	return &generic.ConflictError{
		Kind:     "rate table",
		Existing: version,
		Message:  "version is pinned by a salary record and can no longer change",
	}
}

// SameRates reports whether stored still prices exactly like resolved: same
// identity, version, rates and window.
func (rt RateTable) SameRates(resolved RateTable) bool {
	if rt.ID != resolved.ID || rt.Version != resolved.Version {
		return false
	}
	if !rt.LaborInsuranceRate.Equal(resolved.LaborInsuranceRate) || !rt.HealthInsuranceRate.Equal(resolved.HealthInsuranceRate) {
		return false
	}
	return rt.ValidityWindow().String() == resolved.ValidityWindow().String()
}

// CheckUnchanged compares the stored row against the snapshot a calculation
// priced with. A nil stored row means the table was deleted. Stores call this
// inside the write that pins the version.
func CheckUnchanged(stored *RateTable, resolved RateTable) error {
	if stored == nil || !stored.SameRates(resolved) {
		return fmt.Errorf("rate table %s: %w", resolved.Version, ErrChanged)
	}
	return nil
}

// Store persists rate tables. Insert and Update must run CheckOverlap and
// CheckVersionUnique atomically with the write. Update and Delete must
// refuse, with PinnedError and under the same lock, a table whose stored
// version a salary record pins.
type Store interface {
	InsertRateTable(ctx context.Context, rt RateTable) error
	UpdateRateTable(ctx context.Context, rt RateTable) error
	DeleteRateTable(ctx context.Context, id string) error
	GetRateTable(ctx context.Context, id string) (*RateTable, error)
	// ListRateTables returns every table ordered by effective date ascending.
	ListRateTables(ctx context.Context) ([]RateTable, error)
}
