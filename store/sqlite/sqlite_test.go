package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/employee"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
	"github.com/warp/payroll-engine/store/sqlite"
)

var (
	march   = generic.NewPayPeriod(2024, time.March)
	created = time.Date(2024, time.March, 28, 9, 30, 0, 0, time.UTC)
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func draft(id string, p generic.PayPeriod) payroll.SalaryRecord {
	return payroll.SalaryRecord{
		ID: id, EmployeeID: "E1", Period: p, Status: payroll.StatusDraft,
		BaseSalary:       decimal.NewFromInt(30000),
		TotalAdditions:   decimal.Zero,
		TotalDeductions:  decimal.NewFromInt(1167),
		GrossSalary:      []byte("sealed-gross"),
		NetSalary:        []byte("sealed-net"),
		RateTableVersion: "2024",
		CreatedBy:        "hr",
		CreatedAt:        created,
		UpdatedAt:        created,
		Items: []payroll.SalaryItem{
			{ItemCode: payroll.CodeLaborInsurance, ItemName: "Labor insurance", Type: salaryitem.TypeDeduction,
				Amount: decimal.NewFromInt(697), IsSystemGenerated: true},
			{ItemCode: payroll.CodeHealthInsurance, ItemName: "Health insurance", Type: salaryitem.TypeDeduction,
				Amount: decimal.NewFromInt(470), Description: "rate 5.17%", IsSystemGenerated: true, UsedDefault: true},
		},
	}
}

func rateTable(id, version, from string, to *generic.TimePoint) ratetable.RateTable {
	return ratetable.RateTable{
		ID: id, Version: version, EffectiveDate: date(from), ExpiryDate: to,
		LaborInsuranceRate:  decimal.RequireFromString("0.115"),
		HealthInsuranceRate: decimal.RequireFromString("0.0517"),
		Source:              ratetable.SourceManual,
		CreatedAt:           created, UpdatedAt: created,
	}
}

// =============================================================================
// SALARY RECORDS
// =============================================================================

func TestRecord_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// GIVEN a saved draft
	require.NoError(t, s.SaveRecord(ctx, draft("R1", march), nil))

	// WHEN it is read back by ID and by (employee, period)
	byID, err := s.GetRecord(ctx, "R1")
	require.NoError(t, err)
	byPeriod, err := s.FindRecord(ctx, "E1", march)
	require.NoError(t, err)

	// THEN every field survives
	require.NotNil(t, byID)
	require.NotNil(t, byPeriod)
	assert.Equal(t, byID.ID, byPeriod.ID)
	assert.Equal(t, march, byID.Period)
	assert.Equal(t, "30000", byID.BaseSalary.String())
	assert.Equal(t, "1167", byID.TotalDeductions.String())
	assert.Equal(t, []byte("sealed-gross"), byID.GrossSalary)
	assert.Equal(t, []byte("sealed-net"), byID.NetSalary)
	assert.Equal(t, payroll.StatusDraft, byID.Status)
	assert.Equal(t, generic.Actor("hr"), byID.CreatedBy)
	assert.True(t, created.Equal(byID.CreatedAt))
	assert.Nil(t, byID.ApprovedAt)

	require.Len(t, byID.Items, 2)
	assert.Equal(t, payroll.CodeLaborInsurance, byID.Items[0].ItemCode)
	assert.Equal(t, "697", byID.Items[0].Amount.String())
	assert.Equal(t, "rate 5.17%", byID.Items[1].Description)
	assert.True(t, byID.Items[1].UsedDefault)

	missing, err := s.GetRecord(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveRecord_ReplacesDraftOnly(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRecord(ctx, draft("R1", march), nil))

	// a draft with a new ID for the same employee and period takes its place
	require.NoError(t, s.SaveRecord(ctx, draft("R2", march), nil))
	recs, err := s.ListRecordsForPeriod(ctx, march)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "R2", recs[0].ID)
	assert.Len(t, recs[0].Items, 2)

	approvedAt := created.Add(time.Hour)
	_, err = s.UpdateRecord(ctx, "R2", func(r *payroll.SalaryRecord) error {
		r.Status = payroll.StatusApproved
		r.ApprovedBy = "manager"
		r.ApprovedAt = &approvedAt
		return nil
	})
	require.NoError(t, err)

	err = s.SaveRecord(ctx, draft("R3", march), nil)
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)

	got, err := s.GetRecord(ctx, "R2")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, approvedAt.Equal(*got.ApprovedAt))
}

func TestUpdateRecord_FailureLeavesRowUntouched(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRecord(ctx, draft("R1", march), nil))

	_, err := s.UpdateRecord(ctx, "R1", func(r *payroll.SalaryRecord) error {
		r.Status = payroll.StatusPaid
		return &generic.StateError{RecordID: "R1", From: "Draft", To: "Paid"}
	})
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)

	got, err := s.GetRecord(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusDraft, got.Status)

	_, err = s.UpdateRecord(ctx, "ghost", func(*payroll.SalaryRecord) error { return nil })
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestFindPrevious_CrossesYearBoundary(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRecord(ctx, draft("DEC", generic.NewPayPeriod(2023, time.December)), nil))

	prev, err := s.FindPrevious(ctx, "E1", generic.NewPayPeriod(2024, time.January))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "DEC", prev.ID)

	recs, err := s.ListRecordsForYear(ctx, "E1", 2024)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCloseYear(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRecord(ctx, draft("R1", march), nil))

	// GIVEN a draft in the year, WHEN closing, THEN the close is refused
	_, err := s.CloseYear(ctx, 2024, created)
	assert.ErrorIs(t, err, generic.ErrConflict)

	_, err = s.UpdateRecord(ctx, "R1", func(r *payroll.SalaryRecord) error {
		r.Status = payroll.StatusApproved
		return nil
	})
	require.NoError(t, err)

	n, err := s.CloseYear(ctx, 2024, created)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetRecord(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, got.IsYearEndClosed)

	n, err = s.CloseYear(ctx, 2024, created)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// RATE TABLES
// =============================================================================

func TestRateTable_OverlapAndVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	dec2024 := date("2024-12-31")
	require.NoError(t, s.InsertRateTable(ctx, rateTable("RT1", "2024", "2024-01-01", &dec2024)))

	tests := []struct {
		name string
		rt   ratetable.RateTable
	}{
		{"overlapping window", rateTable("RT2", "2024b", "2024-06-01", nil)},
		{"shared boundary day", rateTable("RT2", "2024c", "2024-12-31", nil)},
		{"duplicate version", rateTable("RT2", "2024", "2025-01-01", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.InsertRateTable(ctx, tt.rt)
			assert.ErrorIs(t, err, generic.ErrConflict)
		})
	}

	require.NoError(t, s.InsertRateTable(ctx, rateTable("RT2", "2025", "2025-01-01", nil)))
	all, err := s.ListRateTables(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2024", all[0].Version)
	assert.Equal(t, "0.0517", all[0].HealthInsuranceRate.String())
	require.NotNil(t, all[0].ExpiryDate)
	assert.Equal(t, "2024-12-31", all[0].ExpiryDate.String())
	assert.Nil(t, all[1].ExpiryDate)
}

func TestRateTable_ConcurrentOverlappingInsertsAdmitOne(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.InsertRateTable(ctx, rateTable(fmt.Sprintf("RT%d", i), fmt.Sprintf("v%d", i), "2024-01-01", nil))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	all, err := s.ListRateTables(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRateTable_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.InsertRateTable(ctx, rateTable("RT1", "2024", "2024-01-01", nil)))

	// an update never collides with its own window
	rt := rateTable("RT1", "2024", "2024-02-01", nil)
	rt.LaborInsuranceRate = decimal.RequireFromString("0.12")
	require.NoError(t, s.UpdateRateTable(ctx, rt))

	got, err := s.GetRateTable(ctx, "RT1")
	require.NoError(t, err)
	assert.Equal(t, "0.12", got.LaborInsuranceRate.String())
	assert.Equal(t, "2024-02-01", got.EffectiveDate.String())

	assert.ErrorIs(t, s.UpdateRateTable(ctx, rateTable("ghost", "x", "2030-01-01", nil)), generic.ErrNotFound)

	require.NoError(t, s.DeleteRateTable(ctx, "RT1"))
	assert.ErrorIs(t, s.DeleteRateTable(ctx, "RT1"), generic.ErrNotFound)
}

func TestRateTableInUse(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRecord(ctx, draft("R1", march), nil))

	used, err := s.RateTableInUse(ctx, "2024")
	require.NoError(t, err)
	assert.True(t, used)

	used, err = s.RateTableInUse(ctx, "2023")
	require.NoError(t, err)
	assert.False(t, used)
}

// =============================================================================
// SALARY ITEM DEFINITIONS
// =============================================================================

func TestDefinitions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	meal := salaryitem.Definition{
		ID: "D1", ItemCode: "MEAL", ItemName: "Meal allowance", Type: salaryitem.TypeAddition,
		Calculation: salaryitem.Fixed(decimal.NewFromInt(2400)),
		IsActive:    true, EffectiveDate: date("2024-01-01"),
		CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, s.InsertDefinition(ctx, meal))

	dup := meal
	dup.ID = "D2"
	assert.ErrorIs(t, s.InsertDefinition(ctx, dup), generic.ErrConflict)

	meal.IsActive = false
	require.NoError(t, s.UpdateDefinition(ctx, meal))

	got, err := s.GetDefinition(ctx, "D1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsActive)
	assert.Equal(t, salaryitem.MethodFixed, got.Method)
	require.NotNil(t, got.Amount)
	assert.Equal(t, "2400", got.Amount.String())
	assert.Nil(t, got.HourlyRate)

	list, err := s.ListDefinitions(ctx, "MEAL")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	none, err := s.ListDefinitions(ctx, "BONUS")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// EMPLOYEES, LEAVE, PARAMETERS, AUDIT
// =============================================================================

func TestEmployeesAndLeave(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.PutEmployee(ctx, employee.Employee{
		ID: "E1", Name: "Alice", SalaryType: employee.Hourly{Amount: decimal.NewFromInt(200)},
	}))

	emp, err := s.GetEmployee(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, employee.KindHourly, emp.SalaryType.Kind())
	assert.Equal(t, "200", emp.SalaryType.Rate().String())

	records := []leave.Record{
		{ID: "L1", EmployeeID: "E1", Type: leave.TypePersonal, Status: leave.StatusApproved,
			StartDate: date("2024-03-04"), EndDate: date("2024-03-05"), Days: decimal.NewFromInt(2)},
		{ID: "L2", EmployeeID: "E1", Type: leave.TypeSick, Status: leave.StatusPending,
			StartDate: date("2024-03-11"), EndDate: date("2024-03-11"), Days: decimal.NewFromInt(1)},
		{ID: "L3", EmployeeID: "E1", Type: leave.TypeSick, Status: leave.StatusApproved,
			StartDate: date("2024-03-29"), EndDate: date("2024-04-02"), Days: decimal.NewFromInt(3)},
	}
	for _, r := range records {
		require.NoError(t, s.AddLeave(ctx, r))
	}

	// only approved leave lying inside the month is returned
	got, err := s.ApprovedLeave(ctx, "E1", march.Start(), march.End(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "L1", got[0].ID)
	assert.Equal(t, "2", got[0].Days.String())

	sick := leave.TypeSick
	got, err = s.ApprovedLeave(ctx, "E1", march.Start(), march.End(), &sick)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParameterAndAudit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SetParameter(ctx, generic.Parameter{Key: "MONTHLY_WORK_DAYS", Value: "22", Effective: date("2024-01-01")}))
	require.NoError(t, s.SetParameter(ctx, generic.Parameter{Key: "MONTHLY_WORK_DAYS", Value: "21", Effective: date("2024-07-01")}))

	v, ok, err := s.Parameter(ctx, "MONTHLY_WORK_DAYS", march.AsOf())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "22", v)

	v, _, err = s.Parameter(ctx, "MONTHLY_WORK_DAYS", date("2024-08-01"))
	require.NoError(t, err)
	assert.Equal(t, "21", v)

	require.NoError(t, s.Append(ctx, generic.AuditEntry{
		ID: "A1", Timestamp: created, ActorID: "hr", Action: generic.AuditSalaryCalculated,
		Subject: "salary_record", SubjectID: "R1", Payload: map[string]any{"period": "2024-03"},
	}))
	require.NoError(t, s.Append(ctx, generic.AuditEntry{
		ID: "A2", Timestamp: created, ActorID: "hr", Action: generic.AuditRateTableCreated,
		Subject: "rate_table", SubjectID: "RT1",
	}))

	entries, err := s.Query(ctx, generic.AuditFilter{Subject: "salary_record"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, generic.AuditSalaryCalculated, entries[0].Action)
	assert.Equal(t, "2024-03", entries[0].Payload["period"])

	all, err := s.Query(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditRateTableCreated}})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "RT1", all[0].SubjectID)
}

func TestRateTable_PinnedVersionGuardsWrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	dec2024 := date("2024-12-31")
	pinned := rateTable("RT1", "2024", "2024-01-01", &dec2024)
	require.NoError(t, s.InsertRateTable(ctx, pinned))

	// GIVEN a record saved against the unchanged table
	require.NoError(t, s.SaveRecord(ctx, draft("R1", march), &pinned))

	// THEN the table can no longer be edited or removed
	edited := pinned
	edited.LaborInsuranceRate = decimal.RequireFromString("0.5")
	assert.ErrorIs(t, s.UpdateRateTable(ctx, edited), generic.ErrConflict)
	assert.ErrorIs(t, s.DeleteRateTable(ctx, "RT1"), generic.ErrConflict)
	got, err := s.GetRateTable(ctx, "RT1")
	require.NoError(t, err)
	assert.Equal(t, "0.115", got.LaborInsuranceRate.String())
}

func TestSaveRecord_RejectsRatesChangedAfterResolution(t *testing.T) {
	ctx := context.Background()
	jan := generic.NewPayPeriod(2025, time.January)

	tests := []struct {
		name  string
		after func(s *sqlite.Store, resolved ratetable.RateTable) error
	}{
		{"rates edited", func(s *sqlite.Store, resolved ratetable.RateTable) error {
			resolved.LaborInsuranceRate = decimal.RequireFromString("0.5")
			return s.UpdateRateTable(ctx, resolved)
		}},
		{"table deleted", func(s *sqlite.Store, resolved ratetable.RateTable) error {
			return s.DeleteRateTable(ctx, resolved.ID)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a calculation resolved table 2025
			s := newStore(t)
			resolved := rateTable("RT2", "2025", "2025-01-01", nil)
			require.NoError(t, s.InsertRateTable(ctx, resolved))

			// WHEN the table changes before the record is saved
			require.NoError(t, tt.after(s, resolved))
			rec := draft("R2", jan)
			rec.RateTableVersion = "2025"
			err := s.SaveRecord(ctx, rec, &resolved)

			// THEN the save is refused and nothing is written
			assert.ErrorIs(t, err, ratetable.ErrChanged)
			assert.ErrorIs(t, err, generic.ErrConflict)
			got, err := s.GetRecord(ctx, "R2")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}
