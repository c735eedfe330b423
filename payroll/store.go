package payroll

import (
	"context"
	"time"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
)

// RecordStore persists salary records together with their items. Missing
// records are (nil, nil).
type RecordStore interface {
	// SaveRecord upserts the record of (EmployeeID, Period) and replaces its
	// items in one atomic write. It must call CanReplace on the stored record
	// and, when pricedWith is set, ratetable.CheckUnchanged on the stored
	// table under the same lock.
	SaveRecord(ctx context.Context, rec SalaryRecord, pricedWith *ratetable.RateTable) error
	GetRecord(ctx context.Context, id string) (*SalaryRecord, error)
	FindRecord(ctx context.Context, employeeID string, period generic.PayPeriod) (*SalaryRecord, error)
	// FindPrevious returns the record of the pay period immediately before period.
	FindPrevious(ctx context.Context, employeeID string, period generic.PayPeriod) (*SalaryRecord, error)
	// ListRecordsForYear returns an employee's records of one year, by period.
	ListRecordsForYear(ctx context.Context, employeeID string, year int) ([]SalaryRecord, error)
	ListRecordsForPeriod(ctx context.Context, period generic.PayPeriod) ([]SalaryRecord, error)
	// UpdateRecord loads, mutates and saves a record atomically.
	UpdateRecord(ctx context.Context, id string, fn func(*SalaryRecord) error) (*SalaryRecord, error)
	// CloseYear runs CheckYearClosable and sets IsYearEndClosed on every
	// record of year atomically, returning how many records were closed.
	CloseYear(ctx context.Context, year int, at time.Time) (int, error)
}

// ItemCatalog resolves pay item definitions as of a date.
type ItemCatalog interface {
	Resolve(ctx context.Context, code string, asOf generic.TimePoint) (*salaryitem.Definition, error)
}
