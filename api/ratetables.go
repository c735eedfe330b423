package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/ratetable"
)

// maxImportBytes caps rate table uploads.
const maxImportBytes = 1 << 20

// =============================================================================
// RATE TABLE HANDLERS
// =============================================================================

// ListRateTables returns every version, oldest effective date first.
func (h *Handler) ListRateTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Rates.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if tables == nil {
		tables = []ratetable.RateTable{}
	}
	writeJSON(w, http.StatusOK, tables)
}

// CreateRateTable stores a manually entered version.
func (h *Handler) CreateRateTable(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.decodeRateTable(w, r)
	if !ok {
		return
	}
	rt.Source = ratetable.SourceManual
	created, err := h.Rates.Create(r.Context(), rt, actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetRateTable returns one version by ID.
func (h *Handler) GetRateTable(w http.ResponseWriter, r *http.Request) {
	rt, err := h.Rates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// UpdateRateTable replaces the rates and window of a version that no salary
// record has pinned.
func (h *Handler) UpdateRateTable(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.decodeRateTable(w, r)
	if !ok {
		return
	}
	updated, err := h.Rates.Update(r.Context(), chi.URLParam(r, "id"), rt, actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRateTable removes a version that no salary record has pinned.
func (h *Handler) DeleteRateTable(w http.ResponseWriter, r *http.Request) {
	if err := h.Rates.Delete(r.Context(), chi.URLParam(r, "id"), actorOf(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EffectiveRateTable returns the version in force on ?date=YYYY-MM-DD.
func (h *Handler) EffectiveRateTable(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeDomainError(w, r, generic.Invalid("date", "is required"))
		return
	}
	date, err := parseDate("date", raw)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	rt, err := h.Rates.EffectiveAsOf(r.Context(), date)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rt == nil {
		writeDomainError(w, r, &generic.ConfigurationGapError{What: "rate table", AsOf: date})
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// ImportRateTable creates a version from an uploaded JSON or CSV body. The
// format comes from ?format=, or from the Content-Type when absent.
func (h *Handler) ImportRateTable(w http.ResponseWriter, r *http.Request) {
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Could not read upload", err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = formatFromContentType(r.Header.Get("Content-Type"))
	}
	rt, err := h.Rates.ImportFromFile(r.Context(), content, format, actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func formatFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "csv"):
		return "csv"
	case strings.Contains(ct, "json"):
		return "json"
	}
	return ""
}

func (h *Handler) decodeRateTable(w http.ResponseWriter, r *http.Request) (ratetable.RateTable, bool) {
	var req RateTableRequest
	if !h.decode(w, r, &req) {
		return ratetable.RateTable{}, false
	}
	effective, err := parseDate("effectiveDate", req.EffectiveDate)
	if err != nil {
		writeDomainError(w, r, err)
		return ratetable.RateTable{}, false
	}
	expiry, err := parseOptionalDate("expiryDate", req.ExpiryDate)
	if err != nil {
		writeDomainError(w, r, err)
		return ratetable.RateTable{}, false
	}
	return ratetable.RateTable{
		Version:             req.Version,
		EffectiveDate:       effective,
		ExpiryDate:          expiry,
		LaborInsuranceRate:  req.LaborInsuranceRate,
		HealthInsuranceRate: req.HealthInsuranceRate,
		Description:         req.Description,
	}, true
}
