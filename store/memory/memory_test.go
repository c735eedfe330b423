package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
	"github.com/warp/payroll-engine/store/memory"
)

var march = generic.NewPayPeriod(2024, time.March)

func draft(id string, p generic.PayPeriod) payroll.SalaryRecord {
	return payroll.SalaryRecord{
		ID: id, EmployeeID: "E1", Period: p, Status: payroll.StatusDraft,
		BaseSalary: decimal.NewFromInt(30000),
		Items: []payroll.SalaryItem{
			{ItemCode: payroll.CodeLaborInsurance, Type: salaryitem.TypeDeduction, Amount: decimal.NewFromInt(697), IsSystemGenerated: true},
		},
	}
}

func TestSaveRecord_ReplacesDraftOnly(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.SaveRecord(ctx, draft("R1", march), nil))

	// a second draft for the same employee and period replaces the first
	require.NoError(t, s.SaveRecord(ctx, draft("R1", march), nil))
	recs, err := s.ListRecordsForPeriod(ctx, march)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = s.UpdateRecord(ctx, "R1", func(r *payroll.SalaryRecord) error {
		r.Status = payroll.StatusApproved
		return nil
	})
	require.NoError(t, err)

	err = s.SaveRecord(ctx, draft("R1", march), nil)
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
}

func TestRecords_AreCopiedOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec := draft("R1", march)
	require.NoError(t, s.SaveRecord(ctx, rec, nil))

	rec.Items[0].Amount = decimal.NewFromInt(1)
	got, err := s.GetRecord(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "697", got.Items[0].Amount.String())

	got.Items[0].Amount = decimal.NewFromInt(2)
	again, err := s.GetRecord(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "697", again.Items[0].Amount.String())
}

func TestFindPrevious_CrossesYearBoundary(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.SaveRecord(ctx, draft("DEC", generic.NewPayPeriod(2023, time.December)), nil))

	prev, err := s.FindPrevious(ctx, "E1", generic.NewPayPeriod(2024, time.January))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "DEC", prev.ID)

	none, err := s.FindPrevious(ctx, "E1", march)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRateTableInUse(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec := draft("R1", march)
	rec.RateTableVersion = "2024"
	require.NoError(t, s.SaveRecord(ctx, rec, nil))

	used, err := s.RateTableInUse(ctx, "2024")
	require.NoError(t, err)
	assert.True(t, used)

	used, err = s.RateTableInUse(ctx, "2023")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestSaveRecord_PinsResolvedRateTable(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	resolved := ratetable.RateTable{
		ID: "RT1", Version: "2024", EffectiveDate: generic.NewTimePoint(2024, time.January, 1),
		LaborInsuranceRate: decimal.RequireFromString("0.115"), HealthInsuranceRate: decimal.RequireFromString("0.0517"),
	}
	require.NoError(t, s.InsertRateTable(ctx, resolved))

	// GIVEN the table is edited between resolution and save
	edited := resolved
	edited.LaborInsuranceRate = decimal.RequireFromString("0.5")
	require.NoError(t, s.UpdateRateTable(ctx, edited))

	// WHEN a record priced with the old rates is saved THEN it is refused
	rec := draft("R1", march)
	rec.RateTableVersion = "2024"
	assert.ErrorIs(t, s.SaveRecord(ctx, rec, &resolved), ratetable.ErrChanged)

	// AND a record priced with the current rates pins the table for good
	require.NoError(t, s.SaveRecord(ctx, rec, &edited))
	assert.ErrorIs(t, s.UpdateRateTable(ctx, resolved), generic.ErrConflict)
	assert.ErrorIs(t, s.DeleteRateTable(ctx, "RT1"), generic.ErrConflict)
}

func TestParameter_ResolvesLatestEffective(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	jan, _ := generic.ParseDate("2024-01-01")
	jul, _ := generic.ParseDate("2024-07-01")
	require.NoError(t, s.SetParameter(ctx, generic.Parameter{Key: "MONTHLY_WORK_DAYS", Value: "22", Effective: jan}))
	require.NoError(t, s.SetParameter(ctx, generic.Parameter{Key: "MONTHLY_WORK_DAYS", Value: "21", Effective: jul}))

	v, ok, err := s.Parameter(ctx, "MONTHLY_WORK_DAYS", march.AsOf())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "22", v)

	v, _, err = s.Parameter(ctx, "MONTHLY_WORK_DAYS", jul.AddDays(10))
	require.NoError(t, err)
	assert.Equal(t, "21", v)

	_, ok, err = s.Parameter(ctx, "UNKNOWN", jul)
	require.NoError(t, err)
	assert.False(t, ok)
}
