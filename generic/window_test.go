package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
)

type row struct {
	name string
	w    generic.Window
}

func (r row) ValidityWindow() generic.Window { return r.w }

func date(y int, m time.Month, d int) generic.TimePoint { return generic.NewTimePoint(y, m, d) }

func ptr(tp generic.TimePoint) *generic.TimePoint { return &tp }

func TestWindow_Overlaps(t *testing.T) {
	closedH1 := generic.NewWindow(date(2024, 1, 1), ptr(date(2024, 6, 30)))

	tests := []struct {
		name  string
		other generic.Window
		want  bool
	}{
		{"open-ended starting inside", generic.NewWindow(date(2024, 4, 1), nil), true},
		{"starts the day after expiry", generic.NewWindow(date(2024, 7, 1), nil), false},
		{"touches on expiry day", generic.NewWindow(date(2024, 6, 30), ptr(date(2024, 12, 31))), true},
		{"ends the day before", generic.NewWindow(date(2023, 1, 1), ptr(date(2023, 12, 31))), false},
		{"encloses", generic.NewWindow(date(2023, 1, 1), nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, closedH1.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(closedH1), "overlap must be symmetric")
		})
	}
}

func TestWindow_Validate(t *testing.T) {
	err := generic.NewWindow(date(2024, 2, 1), ptr(date(2024, 1, 31))).Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrValidation))

	assert.NoError(t, generic.NewWindow(date(2024, 2, 1), ptr(date(2024, 2, 1))).Validate())
	assert.Error(t, generic.Window{}.Validate())
}

func TestResolve_PicksContainingWindow(t *testing.T) {
	rows := []row{
		{"2023", generic.NewWindow(date(2023, 1, 1), ptr(date(2023, 12, 31)))},
		{"2024", generic.NewWindow(date(2024, 1, 1), nil)},
	}

	got, ok := generic.Resolve(rows, date(2023, 7, 1))
	require.True(t, ok)
	assert.Equal(t, "2023", got.name)

	got, ok = generic.Resolve(rows, date(2030, 1, 1))
	require.True(t, ok)
	assert.Equal(t, "2024", got.name)

	_, ok = generic.Resolve(rows, date(2022, 12, 31))
	assert.False(t, ok)
}

func TestResolve_MostRecentlyEffectiveWinsOnTie(t *testing.T) {
	// GIVEN: two overlapping rows (invariant broken)
	rows := []row{
		{"late", generic.NewWindow(date(2024, 3, 1), nil)},
		{"early", generic.NewWindow(date(2024, 1, 1), nil)},
	}

	// THEN: the later effective date wins regardless of order
	got, ok := generic.Resolve(rows, date(2024, 5, 1))
	require.True(t, ok)
	assert.Equal(t, "late", got.name)
}

func TestFirstOverlap_SkipsSelf(t *testing.T) {
	rows := []row{{"self", generic.NewWindow(date(2024, 1, 1), nil)}}
	_, hit := generic.FirstOverlap(rows, generic.NewWindow(date(2024, 2, 1), nil), func(r row) bool { return r.name == "self" })
	assert.False(t, hit)
}

func TestPayPeriod(t *testing.T) {
	p, err := generic.ParsePayPeriod("2024-03")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", p.String())
	assert.Equal(t, date(2024, 3, 1), p.AsOf())
	assert.Equal(t, date(2024, 3, 31), p.End())
	assert.Equal(t, generic.NewPayPeriod(2024, time.February), p.Previous())
	assert.Equal(t, 2, p.PriorMonths())

	jan, err := generic.ParsePayPeriod("2025-01-17")
	require.NoError(t, err)
	assert.Equal(t, generic.NewPayPeriod(2024, time.December), jan.Previous())
	assert.True(t, jan.Previous().Before(jan))

	_, err = generic.ParsePayPeriod("March")
	assert.Error(t, err)
}

type staticParams map[string]string

func (s staticParams) Parameter(_ context.Context, key string, _ generic.TimePoint) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func TestDecimalParameter(t *testing.T) {
	ctx := context.Background()
	store := staticParams{"MONTHLY_WORK_DAYS": "21", "BROKEN": "abc"}

	v, usedDefault, err := generic.DecimalParameter(ctx, store, "MONTHLY_WORK_DAYS", date(2024, 1, 1), decimal.NewFromInt(22))
	require.NoError(t, err)
	assert.False(t, usedDefault)
	assert.True(t, v.Equal(decimal.NewFromInt(21)))

	v, usedDefault, err = generic.DecimalParameter(ctx, store, "MISSING", date(2024, 1, 1), decimal.NewFromInt(22))
	require.NoError(t, err)
	assert.True(t, usedDefault)
	assert.True(t, v.Equal(decimal.NewFromInt(22)))

	_, _, err = generic.DecimalParameter(ctx, store, "BROKEN", date(2024, 1, 1), decimal.Zero)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestRounding(t *testing.T) {
	assert.Equal(t, "2", generic.RoundWhole(decimal.RequireFromString("2.5")).String())
	assert.Equal(t, "4", generic.RoundWhole(decimal.RequireFromString("3.5")).String())
	assert.Equal(t, "1033.33", generic.RoundCurrency(decimal.RequireFromString("1033.3333")).String())
}
