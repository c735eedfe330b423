package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/insurance"
	"github.com/warp/payroll-engine/leave"
)

// =============================================================================
// PREVIEW HANDLERS
// =============================================================================
//
// Each preview runs one pipeline step against the configuration in force
// for the period. Nothing is stored.

func (h *Handler) PreviewBaseSalary(w http.ResponseWriter, r *http.Request) {
	var req BaseSalaryPreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod("period", req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	amount, err := h.Payroll.CalculateBaseSalary(r.Context(), req.EmployeeID, period, req.WorkDays, req.TotalWorkDays)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountDTO{Amount: amount})
}

func (h *Handler) PreviewLeaveDeduction(w http.ResponseWriter, r *http.Request) {
	var req EmployeePeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod("period", req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	ded, err := h.Payroll.CalculateLeaveDeduction(r.Context(), req.EmployeeID, period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDeductionDTO(ded))
}

func (h *Handler) PreviewOvertime(w http.ResponseWriter, r *http.Request) {
	var req OvertimePreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod("period", req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	pay, err := h.Payroll.CalculateOvertimePay(r.Context(), req.EmployeeID, period, req.Hours)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OvertimeDTO{
		Amount:      pay.Amount,
		HourlyRate:  pay.HourlyRate,
		Hours:       pay.Hours,
		UsedDefault: pay.UsedDefault,
	})
}

func (h *Handler) PreviewIncomeTax(w http.ResponseWriter, r *http.Request) {
	var req IncomeTaxPreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod("period", req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	wh, err := h.Payroll.CalculateIncomeTax(r.Context(), req.GrossSalary, req.EmployeeID, period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WithholdingDTO{
		Amount:            wh.Amount,
		IncomeToDate:      wh.IncomeToDate,
		StandardDeduction: wh.StandardDeduction,
		PersonalExemption: wh.PersonalExemption,
		TaxableIncome:     wh.TaxableIncome,
		ProjectedTax:      wh.ProjectedTax,
		WithheldToDate:    wh.WithheldToDate,
		Divisor:           wh.Divisor,
		MarginalRate:      wh.MarginalRate,
	})
}

func (h *Handler) PreviewLaborInsurance(w http.ResponseWriter, r *http.Request) {
	h.previewInsurance(w, r, h.Insurance.LaborInsurance)
}

func (h *Handler) PreviewHealthInsurance(w http.ResponseWriter, r *http.Request) {
	h.previewInsurance(w, r, h.Insurance.HealthInsurance)
}

func (h *Handler) previewInsurance(w http.ResponseWriter, r *http.Request, price func(ctx context.Context, salary decimal.Decimal, period generic.PayPeriod) (insurance.Contribution, error)) {
	var req InsurancePreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod("period", req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	c, err := price(r.Context(), req.Salary, period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContributionDTO{
		Amount:        c.Amount,
		InsurableBase: c.InsurableBase,
		Rate:          c.Rate,
		Share:         c.Share,
		Version:       c.Version,
		UsedDefault:   c.UsedDefault,
	})
}

// PreviewProgressiveTax applies the schedule of the requested year, or the
// default schedule, to an annual income.
func (h *Handler) PreviewProgressiveTax(w http.ResponseWriter, r *http.Request) {
	var req ProgressiveTaxRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := h.Tax.CalculateProgressiveTax(req.Year, req.AnnualIncome, req.Deductions, req.Exemptions)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProgressiveTaxDTO{
		Amount:          amount,
		Year:            req.Year,
		DefaultSchedule: !h.Tax.HasSchedule(req.Year),
	})
}

func toLeaveDeductionDTO(d leave.Deduction) LeaveDeductionDTO {
	ids := make([]string, len(d.Records))
	for i, rec := range d.Records {
		ids[i] = rec.ID
	}
	return LeaveDeductionDTO{Amount: d.Amount, Days: d.Days, DailyRate: d.DailyRate, Records: ids}
}
