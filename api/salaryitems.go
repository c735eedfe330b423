package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/salaryitem"
)

// =============================================================================
// SALARY ITEM HANDLERS
// =============================================================================

// ListSalaryItems returns the definitions in force on ?asOf= (today when
// absent), optionally filtered by ?type=Addition|Deduction.
func (h *Handler) ListSalaryItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf := generic.FromTime(time.Now())
	if raw := q.Get("asOf"); raw != "" {
		var err error
		if asOf, err = parseDate("asOf", raw); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	var (
		defs []salaryitem.Definition
		err  error
	)
	if raw := q.Get("type"); raw != "" {
		t := salaryitem.ItemType(raw)
		if !t.Valid() {
			writeDomainError(w, r, generic.Invalid("type", "must be Addition or Deduction, got %q", raw))
			return
		}
		defs, err = h.Catalog.ListByType(r.Context(), t, asOf)
	} else {
		defs, err = h.Catalog.ListActive(r.Context(), asOf)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if defs == nil {
		defs = []salaryitem.Definition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// CreateSalaryItem stores a new definition version.
func (h *Handler) CreateSalaryItem(w http.ResponseWriter, r *http.Request) {
	d, ok := h.decodeDefinition(w, r)
	if !ok {
		return
	}
	created, err := h.Catalog.Create(r.Context(), d, actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetSalaryItem(w http.ResponseWriter, r *http.Request) {
	d, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UpdateSalaryItem changes a version in place. Code and effective date must
// match the stored version.
func (h *Handler) UpdateSalaryItem(w http.ResponseWriter, r *http.Request) {
	d, ok := h.decodeDefinition(w, r)
	if !ok {
		return
	}
	updated, err := h.Catalog.Update(r.Context(), chi.URLParam(r, "id"), d, actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeactivateSalaryItem(w http.ResponseWriter, r *http.Request) {
	d, err := h.Catalog.Deactivate(r.Context(), chi.URLParam(r, "id"), actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SalaryItemHistory returns every version of a code, newest first.
func (h *Handler) SalaryItemHistory(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	versions, err := h.Catalog.History(r.Context(), code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if len(versions) == 0 {
		writeDomainError(w, r, &generic.NotFoundError{Kind: "salary item", ID: code})
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *Handler) decodeDefinition(w http.ResponseWriter, r *http.Request) (salaryitem.Definition, bool) {
	var req SalaryItemRequest
	if !h.decode(w, r, &req) {
		return salaryitem.Definition{}, false
	}
	effective, err := parseDate("effectiveDate", req.EffectiveDate)
	if err != nil {
		writeDomainError(w, r, err)
		return salaryitem.Definition{}, false
	}
	expiry, err := parseOptionalDate("expiryDate", req.ExpiryDate)
	if err != nil {
		writeDomainError(w, r, err)
		return salaryitem.Definition{}, false
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return salaryitem.Definition{
		ItemCode: strings.ToUpper(req.ItemCode),
		ItemName: req.ItemName,
		Type:     salaryitem.ItemType(req.Type),
		Calculation: salaryitem.Calculation{
			Method:         salaryitem.Method(req.Method),
			Amount:         req.Amount,
			HourlyRate:     req.HourlyRate,
			PercentageRate: req.PercentageRate,
		},
		IsActive:      active,
		EffectiveDate: effective,
		ExpiryDate:    expiry,
		Description:   req.Description,
	}, true
}
