/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the domain services.

ENDPOINTS:
  Rate tables (ratetables.go):
    GET    /api/rate-tables                 List all versions
    POST   /api/rate-tables                 Create a version
    GET    /api/rate-tables/effective?date= Version in force on a date
    POST   /api/rate-tables/import?format=  Import a JSON or CSV file
    GET    /api/rate-tables/{id}            Get one version
    PUT    /api/rate-tables/{id}            Update an unpinned version
    DELETE /api/rate-tables/{id}            Delete an unpinned version

  Salary items (salaryitems.go):
    GET    /api/salary-items?asOf=&type=    Definitions in force
    POST   /api/salary-items                Create a definition
    GET    /api/salary-items/{id}           Get one definition
    PUT    /api/salary-items/{id}           Update a definition
    POST   /api/salary-items/{id}/deactivate
    GET    /api/salary-items/history/{code} Every version of a code

  Payroll (payroll.go):
    POST   /api/payroll/calculate           Calculate one employee
    POST   /api/payroll/batch               Calculate many employees
    GET    /api/payroll/records?period=     Records of a period
    GET    /api/payroll/records/{id}        One record, gross and net opened
    POST   /api/payroll/records/{id}/approve
    POST   /api/payroll/records/{id}/pay
    POST   /api/payroll/close-year

  Previews (calculations.go):
    POST   /api/calculations/{base-salary,leave-deduction,overtime,income-tax,
                              labor-insurance,health-insurance,progressive-tax}

  Seeding and audit (this file):
    GET    /api/employees                   List employees
    PUT    /api/employees                   Create or replace an employee
    POST   /api/employees/{id}/leave        Record a leave request
    PUT    /api/employees/{id}/attendance   Record days worked in a period
    PUT    /api/parameters                  Set a system parameter version
    GET    /api/audit?subject=&subjectId=   Audit trail

ACTOR:
  Mutations are attributed to the X-Actor request header, or "api" when
  the header is absent.

ERROR HANDLING:
  Domain errors map to HTTP status by sentinel:
  - 400: generic.ErrValidation, malformed JSON, failed struct tags
  - 404: generic.ErrNotFound
  - 409: generic.ErrConflict, generic.ErrInvalidTransition
  - 422: generic.ErrConfigurationGap
  - 500: anything else (details are logged, not returned)

SECURITY NOTE:
  No authentication. Run behind a gateway that sets X-Actor.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/insurance"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
	"github.com/warp/payroll-engine/tax"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API seeds and inspects directly. Both
// store/sqlite and store/memory satisfy it.
type Store interface {
	employee.Directory
	PutEmployee(ctx context.Context, e employee.Employee) error
	ListEmployees(ctx context.Context) ([]employee.Employee, error)
	AddLeave(ctx context.Context, r leave.Record) error
	SetAttendance(ctx context.Context, a payroll.Attendance) error
	SetParameter(ctx context.Context, p generic.Parameter) error
	generic.AuditLog
}

// Services are the domain components behind the API.
type Services struct {
	Store     Store
	Rates     *ratetable.Registry
	Catalog   *salaryitem.Catalog
	Payroll   *payroll.Pipeline
	Insurance *insurance.Calculator
	Tax       *tax.Calculator
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services
	validate *validator.Validate
}

// NewHandler creates a handler over the given services.
func NewHandler(s Services) *Handler {
	return &Handler{Services: s, validate: newValidator()}
}

// DefaultActor is recorded when a request carries no X-Actor header.
const DefaultActor generic.Actor = "api"

func actorOf(r *http.Request) generic.Actor {
	if a := r.Header.Get("X-Actor"); a != "" {
		return generic.Actor(a)
	}
	return DefaultActor
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutEmployee creates or replaces an employee.
func (h *Handler) PutEmployee(w http.ResponseWriter, r *http.Request) {
	var req PutEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := employee.NewSalaryType(employee.Kind(req.SalaryKind), req.SalaryRate)
	if err == nil {
		err = employee.ValidateSalaryType(st)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	emp := employee.Employee{ID: req.ID, Name: req.Name, Department: req.Department, SalaryType: st}
	if err := h.Store.PutEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// AddLeave records a leave request for an employee.
func (h *Handler) AddLeave(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	if _, err := employee.MustGet(r.Context(), h.Store, employeeID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	var req AddLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	rec := leave.Record{
		ID:         req.ID,
		EmployeeID: employeeID,
		Type:       leave.Type(req.Type),
		Status:     leave.Status(req.Status),
		StartDate:  start,
		EndDate:    end,
		Days:       req.Days,
		Reason:     req.Reason,
	}
	if err := rec.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Store.AddLeave(r.Context(), rec); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// SetAttendance records the days an employee worked in a period. Base pay
// of that period is prorated on them at the next calculation.
func (h *Handler) SetAttendance(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	if _, err := employee.MustGet(r.Context(), h.Store, employeeID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	var req SetAttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := parsePeriod("period", req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a := payroll.Attendance{EmployeeID: employeeID, Period: period, WorkDays: req.WorkDays}
	if err := h.Store.SetAttendance(r.Context(), a); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func toEmployeeDTO(e employee.Employee) EmployeeDTO {
	dto := EmployeeDTO{ID: e.ID, Name: e.Name, Department: e.Department}
	if e.SalaryType != nil {
		dto.SalaryKind = string(e.SalaryType.Kind())
		dto.SalaryRate = e.SalaryType.Rate()
	}
	return dto
}

// =============================================================================
// PARAMETERS AND AUDIT
// =============================================================================

// SetParameter stores one effective-dated version of a system parameter.
func (h *Handler) SetParameter(w http.ResponseWriter, r *http.Request) {
	var req SetParameterRequest
	if !h.decode(w, r, &req) {
		return
	}
	effective, err := parseDate("effectiveDate", req.EffectiveDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	expiry, err := parseOptionalDate("expiryDate", req.ExpiryDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p := generic.Parameter{Key: req.Key, Value: req.Value, Effective: effective, Expiry: expiry}
	if err := h.Store.SetParameter(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ListAudit returns audit entries, oldest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.Store.Query(r.Context(), generic.AuditFilter{
		Subject:   q.Get("subject"),
		SubjectID: q.Get("subjectId"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []generic.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind, message string, err error) {
	resp := ErrorResponse{Error: message, Kind: kind}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// classify maps a domain error to its HTTP status and kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, generic.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, generic.ErrConfigurationGap):
		return http.StatusUnprocessableEntity, "configuration_gap"
	}
	return http.StatusInternalServerError, "internal"
}

func errorResponse(err error) (int, ErrorResponse) {
	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		return status, ErrorResponse{Error: "internal error", Kind: kind}
	}
	return status, ErrorResponse{Error: http.StatusText(status), Kind: kind, Details: err.Error()}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dst and runs its validate tags. On failure
// it writes a 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return false
	}
	if err := h.check(dst); err != nil {
		writeDomainError(w, r, err)
		return false
	}
	return true
}

func parseDate(field, s string) (generic.TimePoint, error) {
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}, generic.Invalid(field, "%v", err)
	}
	return tp, nil
}

func parseOptionalDate(field, s string) (*generic.TimePoint, error) {
	if s == "" {
		return nil, nil
	}
	tp, err := parseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

func parsePeriod(field, s string) (generic.PayPeriod, error) {
	if s == "" {
		return generic.PayPeriod{}, generic.Invalid(field, "is required")
	}
	p, err := generic.ParsePayPeriod(s)
	if err != nil {
		return generic.PayPeriod{}, generic.Invalid(field, "%v", err)
	}
	return p, nil
}
