package generic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Closed date range
// =============================================================================

// Period is the closed range [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Covers reports whether other lies entirely inside p.
func (p Period) Covers(other Period) bool {
	return p.Contains(other.Start) && p.Contains(other.End)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// PAY PERIOD - One calendar month of payroll
// =============================================================================

// PayPeriodLayout is the canonical text form of a PayPeriod.
const PayPeriodLayout = "2006-01"

// PayPeriod is a year-month. Its as-of date is always the 1st of the month, so
// every effective-dated read made for one pay period sees the same snapshot.
type PayPeriod struct {
	Year  int
	Month time.Month
}

func NewPayPeriod(year int, month time.Month) PayPeriod {
	return PayPeriod{Year: year, Month: month}
}

// PayPeriodOf normalizes any date to the pay period containing it.
func PayPeriodOf(tp TimePoint) PayPeriod {
	return PayPeriod{Year: tp.Year(), Month: tp.Month()}
}

// ParsePayPeriod accepts "2006-01" or any date inside the month.
func ParsePayPeriod(s string) (PayPeriod, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(PayPeriodLayout, s); err == nil {
		return PayPeriod{Year: t.Year(), Month: t.Month()}, nil
	}
	tp, err := ParseDate(s)
	if err != nil {
		return PayPeriod{}, fmt.Errorf("invalid pay period %q: expected YYYY-MM", s)
	}
	return PayPeriodOf(tp), nil
}

func (p PayPeriod) Start() TimePoint { return StartOfMonth(p.Year, p.Month) }
func (p PayPeriod) End() TimePoint   { return EndOfMonth(p.Year, p.Month) }

// AsOf is the single date used for effective-dated resolution within the period.
func (p PayPeriod) AsOf() TimePoint { return p.Start() }

func (p PayPeriod) Range() Period { return Period{Start: p.Start(), End: p.End()} }

func (p PayPeriod) Previous() PayPeriod { return PayPeriodOf(p.Start().AddMonths(-1)) }
func (p PayPeriod) Next() PayPeriod     { return PayPeriodOf(p.Start().AddMonths(1)) }

func (p PayPeriod) Before(other PayPeriod) bool {
	return p.Year < other.Year || (p.Year == other.Year && p.Month < other.Month)
}

// PriorMonths is the number of whole months of the same year before p.
func (p PayPeriod) PriorMonths() int { return int(p.Month) - 1 }

func (p PayPeriod) IsZero() bool { return p.Year == 0 && p.Month == 0 }

func (p PayPeriod) Validate() error {
	if p.Year < 1 || p.Month < time.January || p.Month > time.December {
		return &ValidationError{Field: "period", Message: fmt.Sprintf("invalid pay period %d-%02d", p.Year, int(p.Month))}
	}
	return nil
}

func (p PayPeriod) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

func (p PayPeriod) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *PayPeriod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePayPeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
