package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/insurance"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
	"github.com/warp/payroll-engine/tax"
	"github.com/warp/payroll-engine/vault"
)

// =============================================================================
// CONSTRUCTION
// =============================================================================

// Dependencies are the collaborators of a Pipeline. Parameters and
// Attendance are optional.
type Dependencies struct {
	Employees  employee.Directory
	Leave      leave.Ledger
	Catalog    ItemCatalog
	Insurance  *insurance.Calculator
	Tax        *tax.Calculator
	Records    RecordStore
	Sealer     vault.Sealer
	Parameters generic.ParameterStore
	Attendance AttendanceSource
}

// Pipeline computes, stores and advances salary records.
type Pipeline struct {
	employees  employee.Directory
	leave      *leave.DeductionCalculator
	catalog    ItemCatalog
	insurance  *insurance.Calculator
	tax        *tax.Calculator
	records    RecordStore
	sealer     vault.Sealer
	params     generic.ParameterStore
	attendance AttendanceSource
	history    recordHistory

	audit      generic.AuditLog
	log        *zap.Logger
	now        func() time.Time
	newID      generic.IDGenerator
	batchLimit int
	printer    *message.Printer
}

type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option        { return func(p *Pipeline) { p.log = l } }
func WithAudit(a generic.AuditLog) Option    { return func(p *Pipeline) { p.audit = a } }
func WithClock(now func() time.Time) Option  { return func(p *Pipeline) { p.now = now } }
func WithIDs(gen generic.IDGenerator) Option { return func(p *Pipeline) { p.newID = gen } }

// WithBatchConcurrency bounds how many employees CalculateBatch prices at once.
func WithBatchConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchLimit = n
		}
	}
}

func New(deps Dependencies, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Employees == nil:
		return nil, errors.New("payroll: employee directory is required")
	case deps.Leave == nil:
		return nil, errors.New("payroll: leave ledger is required")
	case deps.Catalog == nil:
		return nil, errors.New("payroll: item catalog is required")
	case deps.Insurance == nil:
		return nil, errors.New("payroll: insurance calculator is required")
	case deps.Tax == nil:
		return nil, errors.New("payroll: tax calculator is required")
	case deps.Records == nil:
		return nil, errors.New("payroll: record store is required")
	case deps.Sealer == nil:
		return nil, errors.New("payroll: sealer is required")
	}

	p := &Pipeline{
		employees:  deps.Employees,
		leave:      leave.NewDeductionCalculator(deps.Leave),
		catalog:    deps.Catalog,
		insurance:  deps.Insurance,
		tax:        deps.Tax,
		records:    deps.Records,
		sealer:     deps.Sealer,
		params:     deps.Parameters,
		attendance: deps.Attendance,
		history:    recordHistory{records: deps.Records, sealer: deps.Sealer},
		audit:      generic.NopAudit{},
		log:        zap.NewNop(),
		now:        time.Now,
		newID:      uuid.NewString,
		batchLimit: 4,
		printer:    message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// =============================================================================
// REQUEST
// =============================================================================

// ItemInput asks for a catalog item on this month's record. Quantity is
// hours for Hourly items and ignored otherwise.
type ItemInput struct {
	Code     string          `json:"code"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Request describes one calculation.
type Request struct {
	EmployeeID        string
	Period            generic.PayPeriod
	CopyPreviousMonth bool
	OvertimeHours     decimal.Decimal
	Items             []ItemInput
	Actor             generic.Actor
}

func (r Request) Validate() error {
	if r.EmployeeID == "" {
		return generic.Invalid("employeeId", "is required")
	}
	if err := r.Period.Validate(); err != nil {
		return err
	}
	if r.OvertimeHours.IsNegative() {
		return generic.Invalid("overtimeHours", "must not be negative, got %s", r.OvertimeHours)
	}
	for i, in := range r.Items {
		if in.Code == "" {
			return generic.Invalid(fmt.Sprintf("items[%d].code", i), "is required")
		}
		if IsSyntheticCode(in.Code) || in.Code == CodeOvertime {
			return generic.Invalid(fmt.Sprintf("items[%d].code", i), "%s is computed, not entered", in.Code)
		}
		if in.Quantity.IsNegative() {
			return generic.Invalid(fmt.Sprintf("items[%d].quantity", i), "must not be negative, got %s", in.Quantity)
		}
	}
	return nil
}

// =============================================================================
// CALCULATE
// =============================================================================

// Calculate prices one employee for one pay period and stores the result as
// a Draft. Every effective-dated read uses the first day of the period.
// Recalculating an open Draft replaces it under the same ID; an Approved,
// Paid or year-end closed record is never touched.
//
//  1. resolve employee, existing record, work days, insurance rates
//  2. base salary from the salary-type variant
//  3. copied-forward items, requested items, overtime
//  4. unpaid personal leave
//  5. gross = base + additions - leave
//  6. labor and health premiums on the insured salary bracket
//  7. income tax withholding from year-to-date history
//  8. net = gross - (manual deductions + premiums + leave + tax)
//  9. synthetic items for every non-zero computed deduction
//  10. seal gross/net, save, audit
//
// The save fails with ratetable.ErrChanged if the rate table was edited
// after step 1; the calculation is then redone against the new rates, up to
// maxRateAttempts times.
func (p *Pipeline) Calculate(ctx context.Context, req Request) (SalaryRecord, error) {
	if err := req.Validate(); err != nil {
		return SalaryRecord{}, err
	}
	for attempt := 1; ; attempt++ {
		rec, err := p.calculate(ctx, req)
		if err == nil || !errors.Is(err, ratetable.ErrChanged) || attempt == maxRateAttempts {
			return rec, err
		}
		p.log.Warn("rate table changed during calculation, recalculating",
			zap.String("employee_id", req.EmployeeID),
			zap.Stringer("period", req.Period),
			zap.Int("attempt", attempt))
	}
}

const maxRateAttempts = 3

func (p *Pipeline) calculate(ctx context.Context, req Request) (SalaryRecord, error) {
	log := p.log.With(zap.String("employee_id", req.EmployeeID), zap.Stringer("period", req.Period))
	asOf := req.Period.AsOf()

	emp, err := employee.MustGet(ctx, p.employees, req.EmployeeID)
	if err != nil {
		return SalaryRecord{}, err
	}
	if err := employee.ValidateSalaryType(emp.SalaryType); err != nil {
		return SalaryRecord{}, err
	}
	existing, err := p.records.FindRecord(ctx, emp.ID, req.Period)
	if err != nil {
		return SalaryRecord{}, fmt.Errorf("find existing record: %w", err)
	}
	if err := CanReplace(existing); err != nil {
		return SalaryRecord{}, err
	}

	scheduled, actual, err := p.workDays(ctx, emp.ID, req.Period)
	if err != nil {
		return SalaryRecord{}, err
	}
	rates, err := p.insurance.Resolve(ctx, req.Period)
	if err != nil {
		return SalaryRecord{}, err
	}

	base, err := BaseSalary(emp.SalaryType, actual, scheduled)
	if err != nil {
		return SalaryRecord{}, err
	}

	items, err := p.collectItems(ctx, *emp, req, base)
	if err != nil {
		return SalaryRecord{}, err
	}

	leaveDed, err := p.leave.Calculate(ctx, *emp, req.Period)
	if err != nil {
		return SalaryRecord{}, err
	}

	additions, manualDeductions := decimal.Zero, decimal.Zero
	for _, it := range items {
		if it.Type == salaryitem.TypeAddition {
			additions = additions.Add(it.Amount)
		} else {
			manualDeductions = manualDeductions.Add(it.Amount)
		}
	}

	gross := base.Add(additions).Sub(leaveDed.Amount)
	if gross.IsNegative() {
		return SalaryRecord{}, generic.Invalid("grossSalary",
			"base %s plus additions %s less leave %s is negative", base, additions, leaveDed.Amount)
	}

	labor, health, err := insurance.Price(gross, rates)
	if err != nil {
		return SalaryRecord{}, err
	}
	wh, err := p.tax.WithholdingForPeriod(ctx, p.history, emp.ID, gross, req.Period)
	if err != nil {
		return SalaryRecord{}, err
	}

	totalDeductions := generic.Sum(manualDeductions, labor.Amount, health.Amount, leaveDed.Amount, wh.Amount)
	net := gross.Sub(totalDeductions)

	items = append(items, p.syntheticItems(labor, health, leaveDed, wh)...)

	now := p.now().UTC()
	rec := SalaryRecord{
		ID:               p.newID(),
		EmployeeID:       emp.ID,
		Period:           req.Period,
		BaseSalary:       base,
		TotalAdditions:   additions,
		TotalDeductions:  totalDeductions,
		RateTableVersion: rates.Version,
		Status:           StatusDraft,
		CreatedBy:        req.Actor,
		CreatedAt:        now,
		UpdatedAt:        now,
		Items:            items,
	}
	if existing != nil {
		rec.ID = existing.ID
		rec.CreatedBy = existing.CreatedBy
		rec.CreatedAt = existing.CreatedAt
	}
	if rec.GrossSalary, err = p.sealer.Seal(sealScope(rec, fieldGross), gross); err != nil {
		return SalaryRecord{}, fmt.Errorf("seal gross salary: %w", err)
	}
	if rec.NetSalary, err = p.sealer.Seal(sealScope(rec, fieldNet), net); err != nil {
		return SalaryRecord{}, fmt.Errorf("seal net salary: %w", err)
	}

	if err := p.records.SaveRecord(ctx, rec, rates.Table); err != nil {
		return SalaryRecord{}, fmt.Errorf("save salary record: %w", err)
	}

	log.Info("salary calculated",
		zap.String("record_id", rec.ID),
		zap.String("base", base.String()),
		zap.String("additions", additions.String()),
		zap.String("deductions", totalDeductions.String()),
		zap.String("rate_table", rates.Version),
		zap.Bool("replaced", existing != nil))

	p.record(ctx, req.Actor, generic.AuditSalaryCalculated, rec, map[string]any{
		"period":           rec.Period.String(),
		"rateTableVersion": rec.RateTableVersion,
		"replaced":         existing != nil,
	})
	if rates.UsedDefault {
		log.Warn("statutory default insurance rates used", zap.String("as_of", asOf.String()))
		p.record(ctx, req.Actor, generic.AuditStatutoryDefaultUsed, rec, map[string]any{
			"asOf": asOf.String(),
		})
	}
	return rec, nil
}

// workDays returns the scheduled days of the period and the days actually
// worked. Without recorded attendance every scheduled day counts as worked.
func (p *Pipeline) workDays(ctx context.Context, employeeID string, period generic.PayPeriod) (scheduled, actual decimal.Decimal, err error) {
	scheduled, _, err = generic.DecimalParameter(ctx, p.params, WorkDaysKey, period.AsOf(), DefaultWorkDays)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if p.attendance == nil {
		return scheduled, scheduled, nil
	}
	att, err := p.attendance.Attendance(ctx, employeeID, period)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("attendance for %s: %w", employeeID, err)
	}
	if att == nil {
		return scheduled, scheduled, nil
	}
	if att.WorkDays.GreaterThan(scheduled) {
		return decimal.Zero, decimal.Zero, generic.Invalid("workDays",
			"%s days recorded for %s exceed the %s scheduled", att.WorkDays, period, scheduled)
	}
	return scheduled, att.WorkDays, nil
}

// collectItems builds the non-synthetic lines in order: items copied from
// the previous month, requested items (replacing a copied line of the same
// code) and overtime.
func (p *Pipeline) collectItems(ctx context.Context, emp employee.Employee, req Request, base decimal.Decimal) ([]SalaryItem, error) {
	var items []SalaryItem
	index := make(map[string]int)
	put := func(it SalaryItem) {
		if i, ok := index[it.ItemCode]; ok {
			items[i] = it
			return
		}
		index[it.ItemCode] = len(items)
		items = append(items, it)
	}

	if req.CopyPreviousMonth {
		prev, err := p.records.FindPrevious(ctx, emp.ID, req.Period)
		if err != nil {
			return nil, fmt.Errorf("find previous record: %w", err)
		}
		if prev != nil {
			for _, it := range prev.Items {
				if it.IsSystemGenerated || IsSyntheticCode(it.ItemCode) {
					continue
				}
				it.Description = copiedDescription(prev.Period, it.Description)
				put(it)
			}
		}
	}

	asOf := req.Period.AsOf()
	for i, in := range req.Items {
		def, err := p.catalog.Resolve(ctx, in.Code, asOf)
		if err != nil {
			return nil, err
		}
		if def == nil {
			return nil, &generic.NotFoundError{Kind: "salary item in force on " + asOf.String(), ID: in.Code}
		}
		if def.Method == salaryitem.MethodHourly && !in.Quantity.IsPositive() {
			return nil, generic.Invalid(fmt.Sprintf("items[%d].quantity", i),
				"hourly item %s needs a positive number of hours, got %s", def.ItemCode, in.Quantity)
		}
		put(SalaryItem{
			ItemCode:    def.ItemCode,
			ItemName:    def.ItemName,
			Type:        def.Type,
			Amount:      def.Compute(in.Quantity, base),
			Description: p.describeItem(*def, in.Quantity, base),
		})
	}

	if req.OvertimeHours.IsPositive() {
		ot, err := priceOvertime(ctx, p.catalog, emp, req.Period, req.OvertimeHours)
		if err != nil {
			return nil, err
		}
		put(SalaryItem{
			ItemCode:          CodeOvertime,
			ItemName:          ot.Name,
			Type:              salaryitem.TypeAddition,
			Amount:            ot.Amount,
			Description:       p.printer.Sprintf("%s hours at %s per hour", ot.Hours.String(), ot.HourlyRate.StringFixed(2)),
			IsSystemGenerated: true,
			UsedDefault:       ot.UsedDefault,
		})
	}
	return items, nil
}

const copiedPrefix = "Copied from "

// copiedDescription marks a line carried forward from period. A line that was
// itself carried forward keeps only the newest marker.
func copiedDescription(period generic.PayPeriod, description string) string {
	if rest, ok := strings.CutPrefix(description, copiedPrefix); ok {
		if _, original, found := strings.Cut(rest, ": "); found {
			description = original
		}
	}
	return copiedPrefix + period.String() + ": " + description
}

func (p *Pipeline) describeItem(def salaryitem.Definition, quantity, base decimal.Decimal) string {
	switch def.Method {
	case salaryitem.MethodHourly:
		return p.printer.Sprintf("%s hours at %s per hour", quantity.String(), def.HourlyRate.StringFixed(2))
	case salaryitem.MethodPercentage:
		return p.printer.Sprintf("%s%% of base salary %d", percent(*def.PercentageRate), base.IntPart())
	}
	if def.Description != "" {
		return def.Description
	}
	return def.ItemName
}

// syntheticItems documents every non-zero computed deduction.
func (p *Pipeline) syntheticItems(labor, health insurance.Contribution, leaveDed leave.Deduction, wh tax.Withholding) []SalaryItem {
	var out []SalaryItem
	add := func(code, name, desc string, amount decimal.Decimal, usedDefault bool) {
		if !amount.IsPositive() {
			return
		}
		out = append(out, SalaryItem{
			ItemCode:          code,
			ItemName:          name,
			Type:              salaryitem.TypeDeduction,
			Amount:            amount,
			Description:       desc,
			IsSystemGenerated: true,
			UsedDefault:       usedDefault,
		})
	}

	add(CodeLaborInsurance, "Labor insurance", p.describeContribution(labor), labor.Amount, labor.UsedDefault)
	add(CodeHealthInsurance, "Health insurance", p.describeContribution(health), health.Amount, health.UsedDefault)
	add(CodeLeaveDeduction, "Unpaid leave",
		p.printer.Sprintf("%s day(s) of personal leave at %s per day", leaveDed.Days.String(), leaveDed.DailyRate.StringFixed(2)),
		leaveDed.Amount, false)
	add(CodeIncomeTax, "Income tax",
		p.printer.Sprintf("Taxable income to date %d at marginal rate %s%%, projected %d less withheld %d over %d month(s)",
			wh.TaxableIncome.IntPart(), wh.MarginalRate.String(), wh.ProjectedTax.IntPart(), wh.WithheldToDate.IntPart(), wh.Divisor),
		wh.Amount, false)
	return out
}

func (p *Pipeline) describeContribution(c insurance.Contribution) string {
	return p.printer.Sprintf("Insured salary %d at %s%%, employee share %s%% (rate table %s)",
		c.InsurableBase.IntPart(), percent(c.Rate), percent(c.Share), c.Version)
}

func percent(rate decimal.Decimal) string {
	return rate.Mul(generic.Hundred).String()
}

// =============================================================================
// READ SIDE
// =============================================================================

// Reveal opens the sealed gross and net salary of rec.
func (p *Pipeline) Reveal(rec SalaryRecord) (gross, net decimal.Decimal, err error) {
	if gross, err = openAmount(p.sealer, rec, fieldGross); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if net, err = openAmount(p.sealer, rec, fieldNet); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return gross, net, nil
}

func (p *Pipeline) GetRecord(ctx context.Context, id string) (SalaryRecord, error) {
	rec, err := p.records.GetRecord(ctx, id)
	if err != nil {
		return SalaryRecord{}, fmt.Errorf("get record %s: %w", id, err)
	}
	if rec == nil {
		return SalaryRecord{}, &generic.NotFoundError{Kind: "salary record", ID: id}
	}
	return *rec, nil
}

func (p *Pipeline) ListRecords(ctx context.Context, period generic.PayPeriod) ([]SalaryRecord, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return p.records.ListRecordsForPeriod(ctx, period)
}

func (p *Pipeline) record(ctx context.Context, actor generic.Actor, action generic.AuditAction, rec SalaryRecord, payload map[string]any) {
	if actor == "" {
		actor = generic.ActorSystem
	}
	entry := generic.AuditEntry{
		ID:        p.newID(),
		Timestamp: p.now().UTC(),
		ActorID:   actor,
		Action:    action,
		Subject:   "salary_record",
		SubjectID: rec.ID,
		Payload:   payload,
	}
	if err := p.audit.Append(ctx, entry); err != nil {
		p.log.Error("append audit entry", zap.String("action", string(action)), zap.Error(err))
	}
}
