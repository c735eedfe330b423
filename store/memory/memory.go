// Package memory provides in-memory implementations of every store the
// payroll engine needs (for testing/dev).
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
)

// =============================================================================
// MEMORY STORE - One mutex guards every collection
// =============================================================================

type Store struct {
	mu          sync.RWMutex
	employees   map[string]employee.Employee
	leave       []leave.Record
	rateTables  map[string]ratetable.RateTable
	definitions map[string]salaryitem.Definition
	records     map[string]payroll.SalaryRecord
	byPeriod    map[recordKey]string
	attendance  map[recordKey]payroll.Attendance
	params      map[string][]generic.Parameter
	audit       []generic.AuditEntry
}

type recordKey struct {
	EmployeeID string
	Period     generic.PayPeriod
}

func New() *Store {
	return &Store{
		employees:   make(map[string]employee.Employee),
		rateTables:  make(map[string]ratetable.RateTable),
		definitions: make(map[string]salaryitem.Definition),
		records:     make(map[string]payroll.SalaryRecord),
		byPeriod:    make(map[recordKey]string),
		attendance:  make(map[recordKey]payroll.Attendance),
		params:      make(map[string][]generic.Parameter),
	}
}

// =============================================================================
// EMPLOYEES AND LEAVE
// =============================================================================

func (s *Store) PutEmployee(_ context.Context, e employee.Employee) error {
	if e.ID == "" {
		return generic.Invalid("id", "is required")
	}
	if err := employee.ValidateSalaryType(e.SalaryType); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
	return nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*employee.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) ListEmployees(_ context.Context) ([]employee.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]employee.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddLeave(_ context.Context, r leave.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leave = append(s.leave, r)
	return nil
}

func (s *Store) ApprovedLeave(_ context.Context, employeeID string, start, end generic.TimePoint, leaveType *leave.Type) ([]leave.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	span := generic.Period{Start: start, End: end}
	var out []leave.Record
	for _, r := range s.leave {
		if r.EmployeeID != employeeID || r.Status != leave.StatusApproved {
			continue
		}
		if leaveType != nil && r.Type != *leaveType {
			continue
		}
		if !span.Covers(r.Span()) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// SetAttendance records or replaces the days worked in one period.
func (s *Store) SetAttendance(_ context.Context, a payroll.Attendance) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance[recordKey{EmployeeID: a.EmployeeID, Period: a.Period}] = a
	return nil
}

func (s *Store) Attendance(_ context.Context, employeeID string, period generic.PayPeriod) (*payroll.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attendance[recordKey{EmployeeID: employeeID, Period: period}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// =============================================================================
// RATE TABLES
// =============================================================================

func (s *Store) InsertRateTable(_ context.Context, rt ratetable.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.rateTablesLocked()
	if err := ratetable.CheckVersionUnique(existing, rt); err != nil {
		return err
	}
	if err := ratetable.CheckOverlap(existing, rt); err != nil {
		return err
	}
	s.rateTables[rt.ID] = rt
	return nil
}

func (s *Store) UpdateRateTable(_ context.Context, rt ratetable.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rateTables[rt.ID]
	if !ok {
		return &generic.NotFoundError{Kind: "rate table", ID: rt.ID}
	}
	if s.inUseLocked(cur.Version) {
		return ratetable.PinnedError(cur.Version)
	}
	existing := s.rateTablesLocked()
	if err := ratetable.CheckVersionUnique(existing, rt); err != nil {
		return err
	}
	if err := ratetable.CheckOverlap(existing, rt); err != nil {
		return err
	}
	s.rateTables[rt.ID] = rt
	return nil
}

func (s *Store) DeleteRateTable(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rateTables[id]
	if !ok {
		return &generic.NotFoundError{Kind: "rate table", ID: id}
	}
	if s.inUseLocked(cur.Version) {
		return ratetable.PinnedError(cur.Version)
	}
	delete(s.rateTables, id)
	return nil
}

func (s *Store) GetRateTable(_ context.Context, id string) (*ratetable.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.rateTables[id]
	if !ok {
		return nil, nil
	}
	return &rt, nil
}

func (s *Store) ListRateTables(_ context.Context) ([]ratetable.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateTablesLocked(), nil
}

func (s *Store) RateTableInUse(_ context.Context, version string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inUseLocked(version), nil
}

func (s *Store) inUseLocked(version string) bool {
	for _, r := range s.records {
		if r.RateTableVersion == version {
			return true
		}
	}
	return false
}

func (s *Store) rateTablesLocked() []ratetable.RateTable {
	out := make([]ratetable.RateTable, 0, len(s.rateTables))
	for _, rt := range s.rateTables {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveDate.Equal(out[j].EffectiveDate) {
			return out[i].EffectiveDate.Before(out[j].EffectiveDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// SALARY ITEM DEFINITIONS
// =============================================================================

func (s *Store) InsertDefinition(_ context.Context, d salaryitem.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.definitions {
		if cur.ItemCode == d.ItemCode && cur.EffectiveDate.Equal(d.EffectiveDate) {
			return &generic.ConflictError{Kind: "salary item", Existing: cur.ID,
				Message: "a version of " + d.ItemCode + " already starts on " + d.EffectiveDate.String()}
		}
	}
	s.definitions[d.ID] = d
	return nil
}

func (s *Store) UpdateDefinition(_ context.Context, d salaryitem.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[d.ID]; !ok {
		return &generic.NotFoundError{Kind: "salary item", ID: d.ID}
	}
	s.definitions[d.ID] = d
	return nil
}

func (s *Store) GetDefinition(_ context.Context, id string) (*salaryitem.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.definitions[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) ListDefinitions(_ context.Context, code string) ([]salaryitem.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []salaryitem.Definition
	for _, d := range s.definitions {
		if code == "" || d.ItemCode == code {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].ItemCode, out[j].ItemCode); c != 0 {
			return c < 0
		}
		return out[i].EffectiveDate.Before(out[j].EffectiveDate)
	})
	return out, nil
}

// =============================================================================
// SALARY RECORDS
// =============================================================================

func (s *Store) SaveRecord(_ context.Context, rec payroll.SalaryRecord, pricedWith *ratetable.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pricedWith != nil {
		var stored *ratetable.RateTable
		if rt, ok := s.rateTables[pricedWith.ID]; ok {
			stored = &rt
		}
		if err := ratetable.CheckUnchanged(stored, *pricedWith); err != nil {
			return err
		}
	}
	k := recordKey{EmployeeID: rec.EmployeeID, Period: rec.Period}
	if id, ok := s.byPeriod[k]; ok {
		cur := s.records[id]
		if err := payroll.CanReplace(&cur); err != nil {
			return err
		}
		if id != rec.ID {
			delete(s.records, id)
		}
	}
	s.records[rec.ID] = cloneRecord(rec)
	s.byPeriod[k] = rec.ID
	return nil
}

func (s *Store) GetRecord(_ context.Context, id string) (*payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	r = cloneRecord(r)
	return &r, nil
}

func (s *Store) FindRecord(_ context.Context, employeeID string, period generic.PayPeriod) (*payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(employeeID, period), nil
}

func (s *Store) FindPrevious(_ context.Context, employeeID string, period generic.PayPeriod) (*payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(employeeID, period.Previous()), nil
}

func (s *Store) findLocked(employeeID string, period generic.PayPeriod) *payroll.SalaryRecord {
	id, ok := s.byPeriod[recordKey{EmployeeID: employeeID, Period: period}]
	if !ok {
		return nil
	}
	r := cloneRecord(s.records[id])
	return &r
}

func (s *Store) ListRecordsForYear(_ context.Context, employeeID string, year int) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(func(r payroll.SalaryRecord) bool {
		return r.EmployeeID == employeeID && r.Period.Year == year
	}), nil
}

func (s *Store) ListRecordsForPeriod(_ context.Context, period generic.PayPeriod) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(func(r payroll.SalaryRecord) bool { return r.Period == period }), nil
}

func (s *Store) listLocked(keep func(payroll.SalaryRecord) bool) []payroll.SalaryRecord {
	var out []payroll.SalaryRecord
	for _, r := range s.records {
		if keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out
}

func (s *Store) UpdateRecord(_ context.Context, id string, fn func(*payroll.SalaryRecord) error) (*payroll.SalaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "salary record", ID: id}
	}
	r := cloneRecord(cur)
	if err := fn(&r); err != nil {
		return nil, err
	}
	s.records[id] = cloneRecord(r)
	return &r, nil
}

func (s *Store) CloseYear(_ context.Context, year int, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ofYear []payroll.SalaryRecord
	for _, r := range s.records {
		if r.Period.Year == year {
			ofYear = append(ofYear, r)
		}
	}
	if err := payroll.CheckYearClosable(year, ofYear); err != nil {
		return 0, err
	}
	closed := 0
	for _, r := range ofYear {
		if r.IsYearEndClosed {
			continue
		}
		r.IsYearEndClosed = true
		r.UpdatedAt = at
		s.records[r.ID] = r
		closed++
	}
	return closed, nil
}

func cloneRecord(r payroll.SalaryRecord) payroll.SalaryRecord {
	r.Items = slices.Clone(r.Items)
	r.GrossSalary = slices.Clone(r.GrossSalary)
	r.NetSalary = slices.Clone(r.NetSalary)
	return r
}

// =============================================================================
// PARAMETERS AND AUDIT
// =============================================================================

// SetParameter adds a version of key, replacing one with the same effective date.
func (s *Store) SetParameter(_ context.Context, p generic.Parameter) error {
	if p.Key == "" {
		return generic.Invalid("key", "is required")
	}
	if err := p.ValidityWindow().Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.params[p.Key]
	for i, v := range versions {
		if v.Effective.Equal(p.Effective) {
			versions[i] = p
			return nil
		}
	}
	s.params[p.Key] = append(versions, p)
	return nil
}

func (s *Store) Parameter(_ context.Context, key string, asOf generic.TimePoint) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := generic.Resolve(s.params[key], asOf)
	if !ok {
		return "", false, nil
	}
	return p.Value, true, nil
}

func (s *Store) Append(_ context.Context, e generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *Store) Query(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []generic.AuditEntry
	for _, e := range s.audit {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
