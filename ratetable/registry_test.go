package ratetable_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func datePtr(s string) *generic.TimePoint {
	tp := date(s)
	return &tp
}

func table(version, eff string, exp *generic.TimePoint) ratetable.RateTable {
	return ratetable.RateTable{
		Version:             version,
		EffectiveDate:       date(eff),
		ExpiryDate:          exp,
		LaborInsuranceRate:  d("0.115"),
		HealthInsuranceRate: d("0.0517"),
	}
}

func newRegistry(t *testing.T) (*ratetable.Registry, *memory.Store) {
	t.Helper()
	s := memory.New()
	var n atomic.Int64
	ids := func() string { return fmt.Sprintf("rt-%d", n.Add(1)) }
	return ratetable.NewRegistry(s, ratetable.WithAudit(s), ratetable.WithIDs(ids)), s
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestCreate_RejectsOverlappingWindow(t *testing.T) {
	// GIVEN: a table for the first half of 2024
	ctx := context.Background()
	reg, _ := newRegistry(t)
	_, err := reg.Create(ctx, table("2024-H1", "2024-01-01", datePtr("2024-06-30")), "admin")
	require.NoError(t, err)

	// WHEN: an open-ended table starting in April is created
	_, err = reg.Create(ctx, table("2024-Q2", "2024-04-01", nil), "admin")

	// THEN: it conflicts with 2024-H1
	require.ErrorIs(t, err, generic.ErrConflict)
	var conflict *generic.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "2024-H1", conflict.Existing)

	// AND: the day after expiry is free
	_, err = reg.Create(ctx, table("2024-H2", "2024-07-01", nil), "admin")
	assert.NoError(t, err)
}

func TestCreate_BoundaryDaysAreInclusive(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	_, err := reg.Create(ctx, table("A", "2024-01-01", datePtr("2024-06-30")), "admin")
	require.NoError(t, err)

	// starting on the expiry day shares one day
	_, err = reg.Create(ctx, table("B", "2024-06-30", nil), "admin")
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestCreate_ConcurrentOverlapsAdmitOne(t *testing.T) {
	// GIVEN: many callers racing to create overlapping open-ended tables
	ctx := context.Background()
	reg, _ := newRegistry(t)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Create(ctx, table(fmt.Sprintf("v%d", i), fmt.Sprintf("2024-%02d-01", i%12+1), nil), "admin")
			if err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	// THEN: exactly one wins
	assert.Equal(t, int32(1), accepted.Load())
	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreate_RejectsDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	_, err := reg.Create(ctx, table("2024", "2024-01-01", datePtr("2024-06-30")), "admin")
	require.NoError(t, err)

	_, err = reg.Create(ctx, table("2024", "2025-01-01", nil), "admin")
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestCreate_Validation(t *testing.T) {
	tests := map[string]ratetable.RateTable{
		"missing version": table("", "2024-01-01", nil),
		"labor above one": func() ratetable.RateTable {
			rt := table("x", "2024-01-01", nil)
			rt.LaborInsuranceRate = d("1.2")
			return rt
		}(),
		"negative health": func() ratetable.RateTable {
			rt := table("x", "2024-01-01", nil)
			rt.HealthInsuranceRate = d("-0.01")
			return rt
		}(),
		"expiry before effective": table("x", "2024-06-01", datePtr("2024-05-31")),
	}
	for name, rt := range tests {
		t.Run(name, func(t *testing.T) {
			reg, _ := newRegistry(t)
			_, err := reg.Create(context.Background(), rt, "admin")
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

func TestUpdate_ExcludesItself(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	rt, err := reg.Create(ctx, table("2024", "2024-01-01", nil), "admin")
	require.NoError(t, err)

	// shrinking its own window never conflicts with itself
	rt.ExpiryDate = datePtr("2024-12-31")
	rt.LaborInsuranceRate = d("0.12")
	updated, err := reg.Update(ctx, rt.ID, rt, "admin")
	require.NoError(t, err)
	assert.Equal(t, "0.12", updated.LaborInsuranceRate.String())
	assert.Equal(t, rt.CreatedAt, updated.CreatedAt)
}

func TestUpdate_RejectsOverlapWithOthers(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	_, err := reg.Create(ctx, table("2023", "2023-01-01", datePtr("2023-12-31")), "admin")
	require.NoError(t, err)
	rt, err := reg.Create(ctx, table("2024", "2024-01-01", nil), "admin")
	require.NoError(t, err)

	rt.EffectiveDate = date("2023-12-01")
	_, err = reg.Update(ctx, rt.ID, rt, "admin")
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	reg, s := newRegistry(t)
	rt, err := reg.Create(ctx, table("2024", "2024-01-01", nil), "admin")
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, rt.ID, "admin"))
	_, err = reg.Get(ctx, rt.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	entries, err := s.Query(ctx, generic.AuditFilter{Subject: "rate_table", SubjectID: rt.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.AuditRateTableCreated, entries[0].Action)
	assert.Equal(t, generic.AuditRateTableDeleted, entries[1].Action)
}

// =============================================================================
// EFFECTIVE LOOKUP
// =============================================================================

func TestEffectiveAsOf(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	_, err := reg.Create(ctx, table("2024-H1", "2024-01-01", datePtr("2024-06-30")), "admin")
	require.NoError(t, err)
	_, err = reg.Create(ctx, table("2024-H2", "2024-07-01", nil), "admin")
	require.NoError(t, err)

	tests := []struct {
		date string
		want string
	}{
		{"2023-12-31", ""},
		{"2024-01-01", "2024-H1"},
		{"2024-06-30", "2024-H1"},
		{"2024-07-01", "2024-H2"},
		{"2030-01-01", "2024-H2"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			rt, err := reg.EffectiveAsOf(ctx, date(tt.date))
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, rt)
				return
			}
			require.NotNil(t, rt)
			assert.Equal(t, tt.want, rt.Version)
		})
	}
}

// =============================================================================
// IMPORT
// =============================================================================

func TestImportFromFile(t *testing.T) {
	ctx := context.Background()

	t.Run("json", func(t *testing.T) {
		reg, _ := newRegistry(t)
		content := []byte(`{"version":"2024","effectiveDate":"2024-01-01","laborInsuranceRate":"0.115","healthInsuranceRate":"0.0517"}`)

		rt, err := reg.ImportFromFile(ctx, content, "rates.json", "admin")

		require.NoError(t, err)
		assert.Equal(t, ratetable.SourceFile, rt.Source)
		assert.Equal(t, "0.115", rt.LaborInsuranceRate.String())
		assert.Nil(t, rt.ExpiryDate)
	})

	t.Run("csv with BOM", func(t *testing.T) {
		reg, _ := newRegistry(t)
		content := []byte("\ufeffversion,effectiveDate,expiryDate,laborRate,healthRate\n2024-H1,2024-01-01,2024-06-30,0.115,0.0517\n")

		rt, err := reg.ImportFromFile(ctx, content, "csv", "admin")

		require.NoError(t, err)
		assert.Equal(t, "2024-H1", rt.Version)
		require.NotNil(t, rt.ExpiryDate)
		assert.Equal(t, "2024-06-30", rt.ExpiryDate.String())
	})

	t.Run("imported table still checked for overlap", func(t *testing.T) {
		reg, _ := newRegistry(t)
		_, err := reg.Create(ctx, table("2024", "2024-01-01", nil), "admin")
		require.NoError(t, err)

		content := []byte("version,effectiveDate,expiryDate,laborRate,healthRate\nX,2024-03-01,,0.1,0.05\n")
		_, err = reg.ImportFromFile(ctx, content, "csv", "admin")
		assert.ErrorIs(t, err, generic.ErrConflict)
	})

	t.Run("rejected inputs", func(t *testing.T) {
		cases := map[string]struct {
			content string
			format  string
		}{
			"unknown format": {`{}`, "xml"},
			"bad json":       {`{"version":`, "json"},
			"bad rate":       {"version,effectiveDate,expiryDate,laborRate,healthRate\nX,2024-01-01,,abc,0.05\n", "csv"},
			"two rows":       {"version,effectiveDate,expiryDate,laborRate,healthRate\nX,2024-01-01,,0.1,0.05\nY,2025-01-01,,0.1,0.05\n", "csv"},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				reg, _ := newRegistry(t)
				_, err := reg.ImportFromFile(ctx, []byte(tc.content), tc.format, "admin")
				assert.ErrorIs(t, err, generic.ErrValidation)
			})
		}
	})
}
