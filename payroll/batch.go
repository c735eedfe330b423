package payroll

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-engine/generic"
)

// BatchResult is the outcome for one employee of a batch run.
type BatchResult struct {
	EmployeeID string
	Record     *SalaryRecord
	Err        error
}

// CalculateBatch prices many employees for one period. Each employee is an
// independent calculation: a failure is reported in its result and does not
// stop the others. Results keep the order of employeeIDs.
func (p *Pipeline) CalculateBatch(ctx context.Context, employeeIDs []string, period generic.PayPeriod, copyPrevious bool, actor generic.Actor) ([]BatchResult, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	results := make([]BatchResult, len(employeeIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.batchLimit)
	for i, id := range employeeIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = BatchResult{EmployeeID: id, Err: err}
				return nil
			}
			rec, err := p.Calculate(gctx, Request{
				EmployeeID:        id,
				Period:            period,
				CopyPreviousMonth: copyPrevious,
				Actor:             actor,
			})
			if err != nil {
				results[i] = BatchResult{EmployeeID: id, Err: err}
				return nil
			}
			results[i] = BatchResult{EmployeeID: id, Record: &rec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.log.Info("batch calculated",
		zap.Stringer("period", period),
		zap.Int("employees", len(employeeIDs)),
		zap.Int("failed", failed))
	return results, nil
}
