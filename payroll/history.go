package payroll

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/salaryitem"
	"github.com/warp/payroll-engine/vault"
)

// Field names used in vault scopes.
const (
	fieldGross = "gross"
	fieldNet   = "net"
)

// recordHistory answers year-to-date questions from stored records. Drafts
// are excluded: only approved or paid pay counts as income or withholding.
type recordHistory struct {
	records RecordStore
	sealer  vault.Sealer
}

func (h recordHistory) settled(ctx context.Context, employeeID string, year int) ([]SalaryRecord, error) {
	all, err := h.records.ListRecordsForYear(ctx, employeeID, year)
	if err != nil {
		return nil, fmt.Errorf("list %d records for %s: %w", year, employeeID, err)
	}
	out := all[:0:0]
	for _, r := range all {
		if r.Status != StatusDraft {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h recordHistory) IncomeToDate(ctx context.Context, employeeID string, period generic.PayPeriod) (decimal.Decimal, error) {
	recs, err := h.settled(ctx, employeeID, period.Year)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range recs {
		if period.Before(r.Period) {
			continue
		}
		gross, err := openAmount(h.sealer, r, fieldGross)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(gross)
	}
	return total, nil
}

func (h recordHistory) WithheldBefore(ctx context.Context, employeeID string, period generic.PayPeriod) (decimal.Decimal, error) {
	recs, err := h.settled(ctx, employeeID, period.Year)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range recs {
		if !r.Period.Before(period) {
			continue
		}
		for _, it := range r.Items {
			if it.ItemCode == CodeIncomeTax && it.Type == salaryitem.TypeDeduction {
				total = total.Add(it.Amount)
			}
		}
	}
	return total, nil
}

func sealScope(r SalaryRecord, field string) string {
	return vault.Scope(r.EmployeeID, r.Period.String(), field)
}

func openAmount(s vault.Sealer, r SalaryRecord, field string) (decimal.Decimal, error) {
	sealed := r.GrossSalary
	if field == fieldNet {
		sealed = r.NetSalary
	}
	amount, err := s.Open(sealScope(r, field), sealed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("open %s salary of record %s: %w", field, r.ID, err)
	}
	return amount, nil
}
