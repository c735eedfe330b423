package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// CalculateSalary prices one employee for one period and stores a Draft.
func (h *Handler) CalculateSalary(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod("period", req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	items := make([]payroll.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = payroll.ItemInput{Code: it.Code, Quantity: it.Quantity}
	}

	rec, err := h.Payroll.Calculate(r.Context(), payroll.Request{
		EmployeeID:        req.EmployeeID,
		Period:            period,
		CopyPreviousMonth: req.CopyPreviousMonth,
		OvertimeHours:     req.OvertimeHours,
		Items:             items,
		Actor:             actorOf(r),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeRecord(w, r, http.StatusCreated, rec)
}

// CalculateBatch prices many employees. The response lists one result per
// employee in request order; a failed employee does not fail the batch.
func (h *Handler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod("period", req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	results, err := h.Payroll.CalculateBatch(r.Context(), req.EmployeeIDs, period, req.CopyPreviousMonth, actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]BatchResultDTO, len(results))
	for i, res := range results {
		dtos[i] = BatchResultDTO{EmployeeID: res.EmployeeID}
		if res.Err != nil {
			_, resp := errorResponse(res.Err)
			dtos[i].Error = &resp
			continue
		}
		dto, err := h.toRecordDTO(*res.Record)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		dtos[i].Record = &dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListRecords returns the records of ?period=YYYY-MM.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod("period", r.URL.Query().Get("period"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	records, err := h.Payroll.ListRecords(r.Context(), period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]SalaryRecordDTO, 0, len(records))
	for _, rec := range records {
		dto, err := h.toRecordDTO(rec)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Payroll.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeRecord(w, r, http.StatusOK, rec)
}

// ApproveRecord moves a Draft to Approved.
func (h *Handler) ApproveRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Payroll.Approve(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeRecord(w, r, http.StatusOK, rec)
}

// PayRecord moves an Approved record to Paid.
func (h *Handler) PayRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Payroll.MarkPaid(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeRecord(w, r, http.StatusOK, rec)
}

// CloseYear locks a year's records. Refused with 409 while Drafts remain.
func (h *Handler) CloseYear(w http.ResponseWriter, r *http.Request) {
	var req CloseYearRequest
	if !h.decode(w, r, &req) {
		return
	}
	closed, err := h.Payroll.CloseYear(r.Context(), req.Year, actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CloseYearResponse{Year: req.Year, Closed: closed})
}

func (h *Handler) writeRecord(w http.ResponseWriter, r *http.Request, status int, rec payroll.SalaryRecord) {
	dto, err := h.toRecordDTO(rec)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, dto)
}

func (h *Handler) toRecordDTO(rec payroll.SalaryRecord) (SalaryRecordDTO, error) {
	gross, net, err := h.Payroll.Reveal(rec)
	if err != nil {
		return SalaryRecordDTO{}, err
	}
	items := make([]SalaryItemDTO, len(rec.Items))
	for i, it := range rec.Items {
		items[i] = SalaryItemDTO{
			ItemCode:          it.ItemCode,
			ItemName:          it.ItemName,
			Type:              it.Type,
			Amount:            it.Amount,
			Description:       it.Description,
			IsSystemGenerated: it.IsSystemGenerated,
			UsedDefault:       it.UsedDefault,
		}
	}
	return SalaryRecordDTO{
		ID:               rec.ID,
		EmployeeID:       rec.EmployeeID,
		Period:           rec.Period.String(),
		BaseSalary:       rec.BaseSalary,
		TotalAdditions:   rec.TotalAdditions,
		TotalDeductions:  rec.TotalDeductions,
		GrossSalary:      gross,
		NetSalary:        net,
		RateTableVersion: rec.RateTableVersion,
		Status:           rec.Status,
		IsYearEndClosed:  rec.IsYearEndClosed,
		ApprovedBy:       rec.ApprovedBy,
		ApprovedAt:       rec.ApprovedAt,
		PaidAt:           rec.PaidAt,
		CreatedBy:        rec.CreatedBy,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		Items:            items,
	}, nil
}
