// Package leave models approved leave as payroll sees it and derives the
// unpaid-leave deduction for a pay period.
package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

// Type is the kind of leave taken.
type Type string

const (
	TypePersonal Type = "personal" // unpaid, deducted from pay
	TypeSick     Type = "sick"
	TypeAnnual   Type = "annual"
)

// Paid reports whether the leave is already covered by salary.
func (t Type) Paid() bool { return t != TypePersonal }

func (t Type) Valid() bool {
	switch t {
	case TypePersonal, TypeSick, TypeAnnual:
		return true
	}
	return false
}

type Status string

const (
	StatusPending             Status = "pending"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
)

// Record is one leave request as stored by the leave workflow.
type Record struct {
	ID         string
	EmployeeID string
	Type       Type
	Status     Status
	StartDate  generic.TimePoint
	EndDate    generic.TimePoint
	Days       decimal.Decimal
	Reason     string
}

// Span returns the closed date range of the leave.
func (r Record) Span() generic.Period {
	return generic.Period{Start: r.StartDate, End: r.EndDate}
}

// Validate rejects records that cannot be priced. A malformed record must
// abort the payroll run instead of producing a silent zero.
func (r Record) Validate() error {
	if !r.Type.Valid() {
		return generic.Invalid("leave.type", "record %s has unknown leave type %q", r.ID, r.Type)
	}
	if !r.Days.IsPositive() {
		return generic.Invalid("leave.days", "record %s has non-positive days %s", r.ID, r.Days)
	}
	if r.EndDate.Before(r.StartDate) {
		return generic.Invalid("leave.endDate", "record %s ends before it starts", r.ID)
	}
	return nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s %s days %s", r.EmployeeID, r.Type, r.Days, r.Span())
}

// Ledger returns approved leave lying entirely inside [start, end]. A nil
// type returns every leave type.
type Ledger interface {
	ApprovedLeave(ctx context.Context, employeeID string, start, end generic.TimePoint, leaveType *Type) ([]Record, error)
}
