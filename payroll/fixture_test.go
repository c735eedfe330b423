package payroll_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/insurance"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
	"github.com/warp/payroll-engine/store/memory"
	"github.com/warp/payroll-engine/tax"
	"github.com/warp/payroll-engine/vault"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func period(s string) generic.PayPeriod {
	p, err := generic.ParsePayPeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

const hr generic.Actor = "hr-admin"

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	rates    *ratetable.Registry
	catalog  *salaryitem.Catalog
	pipeline *payroll.Pipeline
	sealer   *vault.AESGCM
}

type fixtureOpts struct {
	noRateTable      bool
	statutoryDefault bool
	wrapCatalog      func(payroll.ItemCatalog) payroll.ItemCatalog
}

// newFixture wires a pipeline over the memory store with:
//   - E1: monthly 30,000
//   - MONTHLY_WORK_DAYS = 30 so a full month pays the full monthly salary
//   - rate table 2024 (labor 11.5%, health 5.17%) from 2024-01-01, open-ended
func newFixture(t *testing.T, opts ...func(*fixtureOpts)) *fixture {
	t.Helper()
	var o fixtureOpts
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	s := memory.New()
	clock := func() time.Time { return time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC) }
	var n atomic.Int64
	ids := func() string { return fmt.Sprintf("id-%04d", n.Add(1)) }

	rates := ratetable.NewRegistry(s, ratetable.WithAudit(s), ratetable.WithClock(clock), ratetable.WithIDs(ids))
	catalog := salaryitem.NewCatalog(s, salaryitem.WithAudit(s), salaryitem.WithClock(clock), salaryitem.WithIDs(ids))
	sealer, err := vault.New([]byte("fixture-secret-0123456789"))
	require.NoError(t, err)

	var items payroll.ItemCatalog = catalog
	if o.wrapCatalog != nil {
		items = o.wrapCatalog(catalog)
	}
	p, err := payroll.New(payroll.Dependencies{
		Employees:  s,
		Leave:      s,
		Catalog:    items,
		Insurance:  insurance.NewCalculator(rates, insurance.WithStatutoryDefault(o.statutoryDefault)),
		Tax:        tax.NewCalculator(tax.WithParameters(s)),
		Records:    s,
		Sealer:     sealer,
		Parameters: s,
		Attendance: s,
	}, payroll.WithAudit(s), payroll.WithClock(clock), payroll.WithIDs(ids))
	require.NoError(t, err)

	require.NoError(t, s.PutEmployee(ctx, employee.Employee{
		ID: "E1", Name: "Ada", Department: "R&D", SalaryType: employee.Monthly{Amount: d("30000")},
	}))
	require.NoError(t, s.SetParameter(ctx, generic.Parameter{
		Key: payroll.WorkDaysKey, Value: "30", Effective: date("2020-01-01"),
	}))
	if !o.noRateTable {
		_, err = rates.Create(ctx, ratetable.RateTable{
			Version:             "2024",
			EffectiveDate:       date("2024-01-01"),
			LaborInsuranceRate:  d("0.115"),
			HealthInsuranceRate: d("0.0517"),
		}, hr)
		require.NoError(t, err)
	}

	return &fixture{ctx: ctx, store: s, rates: rates, catalog: catalog, pipeline: p, sealer: sealer}
}

func withoutRateTable(o *fixtureOpts)     { o.noRateTable = true }
func withStatutoryDefault(o *fixtureOpts) { o.statutoryDefault = true }

// withCatalog routes the pipeline's item lookups through wrap.
func withCatalog(wrap func(payroll.ItemCatalog) payroll.ItemCatalog) func(*fixtureOpts) {
	return func(o *fixtureOpts) { o.wrapCatalog = wrap }
}

func (f *fixture) calculate(t *testing.T, req payroll.Request) payroll.SalaryRecord {
	t.Helper()
	if req.Actor == "" {
		req.Actor = hr
	}
	rec, err := f.pipeline.Calculate(f.ctx, req)
	require.NoError(t, err)
	return rec
}

func (f *fixture) reveal(t *testing.T, rec payroll.SalaryRecord) (gross, net string) {
	t.Helper()
	g, n, err := f.pipeline.Reveal(rec)
	require.NoError(t, err)
	return g.String(), n.String()
}

// settle calculates and approves a month.
func (f *fixture) settle(t *testing.T, employeeID, p string) payroll.SalaryRecord {
	t.Helper()
	rec := f.calculate(t, payroll.Request{EmployeeID: employeeID, Period: period(p)})
	rec, err := f.pipeline.Approve(f.ctx, rec.ID, hr)
	require.NoError(t, err)
	return rec
}

func itemAmounts(rec payroll.SalaryRecord) map[string]string {
	out := make(map[string]string, len(rec.Items))
	for _, it := range rec.Items {
		out[it.ItemCode] = it.Amount.String()
	}
	return out
}
