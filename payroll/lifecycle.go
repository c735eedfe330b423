package payroll

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
)

// Approve moves a Draft record to Approved.
func (p *Pipeline) Approve(ctx context.Context, id string, actor generic.Actor) (SalaryRecord, error) {
	return p.advance(ctx, id, StatusApproved, actor, generic.AuditRecordApproved)
}

// MarkPaid moves an Approved record to Paid.
func (p *Pipeline) MarkPaid(ctx context.Context, id string, actor generic.Actor) (SalaryRecord, error) {
	return p.advance(ctx, id, StatusPaid, actor, generic.AuditRecordPaid)
}

func (p *Pipeline) advance(ctx context.Context, id string, to Status, actor generic.Actor, action generic.AuditAction) (SalaryRecord, error) {
	if id == "" {
		return SalaryRecord{}, generic.Invalid("id", "is required")
	}
	at := p.now().UTC()
	rec, err := p.records.UpdateRecord(ctx, id, func(r *SalaryRecord) error {
		return r.advance(to, actor, at)
	})
	if err != nil {
		return SalaryRecord{}, err
	}
	if rec == nil {
		return SalaryRecord{}, &generic.NotFoundError{Kind: "salary record", ID: id}
	}

	p.log.Info("salary record advanced",
		zap.String("record_id", rec.ID),
		zap.String("employee_id", rec.EmployeeID),
		zap.Stringer("period", rec.Period),
		zap.String("status", string(rec.Status)))
	p.record(ctx, actor, action, *rec, map[string]any{"status": string(rec.Status)})
	return *rec, nil
}

// CloseYear locks every record of year. It refuses while Drafts remain;
// afterwards no record of that year can be recalculated or advanced.
func (p *Pipeline) CloseYear(ctx context.Context, year int, actor generic.Actor) (int, error) {
	if year < 1 {
		return 0, generic.Invalid("year", "must be positive, got %d", year)
	}
	closed, err := p.records.CloseYear(ctx, year, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("close year %d: %w", year, err)
	}

	p.log.Info("year-end closed", zap.Int("year", year), zap.Int("records", closed))
	p.record(ctx, actor, generic.AuditYearClosed, SalaryRecord{ID: fmt.Sprint(year)}, map[string]any{
		"year":    year,
		"records": closed,
	})
	return closed, nil
}
