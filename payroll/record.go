/*
Package payroll assembles salary records.

PURPOSE:
  The pipeline turns an employee, a pay period and the effective-dated
  configuration in force for that period into one itemized SalaryRecord.
  Every computed deduction is documented by a synthetic line item, the rate
  table version used is pinned on the record, and gross/net are sealed
  before they reach the store.

KEY CONCEPTS IN THIS FILE (record.go):
  - SalaryRecord: one employee, one pay period, owns its SalaryItems
  - Status: Draft -> Approved -> Paid, forward only
  - IsYearEndClosed: terminal lock, forbids any further change

LIFECYCLE:
  Calculate    creates or replaces the Draft of (employee, period)
  Approve      Draft    -> Approved
  MarkPaid     Approved -> Paid
  CloseYear    sets IsYearEndClosed on every record of a year
  Reopening is not supported; a correction is a new record.

SEE ALSO:
  - pipeline.go: Calculate
  - lifecycle.go: status transitions
  - store.go: RecordStore contract
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/salaryitem"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft    Status = "Draft"
	StatusApproved Status = "Approved"
	StatusPaid     Status = "Paid"
)

// next is the only forward transition from each status.
var next = map[Status]Status{
	StatusDraft:    StatusApproved,
	StatusApproved: StatusPaid,
}

func (s Status) CanAdvanceTo(to Status) bool { return next[s] == to }

// =============================================================================
// LINE ITEMS
// =============================================================================

// Codes of the line items the pipeline synthesizes.
const (
	CodeLaborInsurance  = "LABOR_INS"
	CodeHealthInsurance = "HEALTH_INS"
	CodeLeaveDeduction  = "LEAVE_DEDUCTION"
	CodeIncomeTax       = "INCOME_TAX"
	CodeOvertime        = "OVERTIME"
)

// IsSyntheticCode reports whether code is one of the four computed deductions.
func IsSyntheticCode(code string) bool {
	switch code {
	case CodeLaborInsurance, CodeHealthInsurance, CodeLeaveDeduction, CodeIncomeTax:
		return true
	}
	return false
}

// SalaryItem is one line of a salary record.
type SalaryItem struct {
	ItemCode          string              `json:"itemCode"`
	ItemName          string              `json:"itemName"`
	Type              salaryitem.ItemType `json:"type"`
	Amount            decimal.Decimal     `json:"amount"`
	Description       string              `json:"description"`
	IsSystemGenerated bool                `json:"isSystemGenerated"`
	UsedDefault       bool                `json:"usedDefault"`
}

// =============================================================================
// SALARY RECORD
// =============================================================================

// SalaryRecord is the pay of one employee for one period. Gross and net are
// sealed; use Pipeline.Reveal to read them.
type SalaryRecord struct {
	ID               string            `json:"id"`
	EmployeeID       string            `json:"employeeId"`
	Period           generic.PayPeriod `json:"period"`
	BaseSalary       decimal.Decimal   `json:"baseSalary"`
	TotalAdditions   decimal.Decimal   `json:"totalAdditions"`
	TotalDeductions  decimal.Decimal   `json:"totalDeductions"`
	GrossSalary      []byte            `json:"-"`
	NetSalary        []byte            `json:"-"`
	RateTableVersion string            `json:"rateTableVersion"`
	Status           Status            `json:"status"`
	IsYearEndClosed  bool              `json:"isYearEndClosed"`
	ApprovedBy       generic.Actor     `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time        `json:"approvedAt,omitempty"`
	PaidAt           *time.Time        `json:"paidAt,omitempty"`
	CreatedBy        generic.Actor     `json:"createdBy,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Items            []SalaryItem      `json:"items"`
}

// Item returns the first line with code.
func (r SalaryRecord) Item(code string) (SalaryItem, bool) {
	for _, it := range r.Items {
		if it.ItemCode == code {
			return it, true
		}
	}
	return SalaryItem{}, false
}

// CanReplace reports whether a new calculation may overwrite existing. Only
// an open Draft may be recomputed. Stores call this inside their write lock.
func CanReplace(existing *SalaryRecord) error {
	if existing == nil {
		return nil
	}
	if existing.IsYearEndClosed {
		return &generic.StateError{RecordID: existing.ID, From: string(existing.Status), To: string(StatusDraft), Reason: "year-end closed"}
	}
	if existing.Status != StatusDraft {
		return &generic.StateError{RecordID: existing.ID, From: string(existing.Status), To: string(StatusDraft),
			Reason: "transitions are forward-only; create a correction instead"}
	}
	return nil
}

// advance applies a forward transition in place.
func (r *SalaryRecord) advance(to Status, actor generic.Actor, at time.Time) error {
	if r.IsYearEndClosed {
		return &generic.StateError{RecordID: r.ID, From: string(r.Status), To: string(to), Reason: "year-end closed"}
	}
	if !r.Status.CanAdvanceTo(to) {
		return &generic.StateError{RecordID: r.ID, From: string(r.Status), To: string(to)}
	}
	r.Status = to
	r.UpdatedAt = at
	switch to {
	case StatusApproved:
		r.ApprovedBy = actor
		r.ApprovedAt = &at
	case StatusPaid:
		r.PaidAt = &at
	}
	return nil
}

// CheckYearClosable refuses to close a year while Draft records remain.
func CheckYearClosable(year int, records []SalaryRecord) error {
	drafts := 0
	for _, r := range records {
		if r.Period.Year == year && r.Status == StatusDraft {
			drafts++
		}
	}
	if drafts > 0 {
		return &generic.ConflictError{
			Kind:    "year-end close",
			Message: fmt.Sprintf("%d draft record(s) remain for %d", drafts, year),
		}
	}
	return nil
}
