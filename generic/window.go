/*
window.go - Temporal validity shared by every effective-dated configuration row

PURPOSE:
  Rate tables, salary item definitions and system parameters are all
  "authoritative from EffectiveDate until ExpiryDate (or forever)". This
  file owns the interval arithmetic so the overlap rule and the as-of
  resolution rule exist exactly once.

SEMANTICS:
  A window is the closed interval [Effective, Expiry]; a nil Expiry is +inf.
  Two windows overlap iff a.Effective <= b.Expiry AND b.Effective <= a.Expiry.

RESOLUTION:
  Resolve picks, among rows whose window contains the date, the one with the
  latest Effective date. With non-overlapping rows there is at most one
  candidate; the tie-break only matters if the invariant was broken.

SEE ALSO:
  - ratetable/ratetable.go: non-overlap enforcement
  - salaryitem/definition.go: versioned definitions
*/
package generic

// Window is a closed validity interval. Expiry nil means open-ended.
type Window struct {
	Effective TimePoint
	Expiry    *TimePoint
}

// Versioned is implemented by any effective-dated row.
type Versioned interface {
	ValidityWindow() Window
}

func NewWindow(effective TimePoint, expiry *TimePoint) Window {
	return Window{Effective: effective, Expiry: expiry}
}

// IsOpenEnded reports whether the window has no expiry.
func (w Window) IsOpenEnded() bool { return w.Expiry == nil }

// Validate requires an effective date and expiry >= effective.
func (w Window) Validate() error {
	if w.Effective.IsZero() {
		return Invalid("effectiveDate", "is required")
	}
	if w.Expiry != nil && w.Expiry.Before(w.Effective) {
		return Invalid("expiryDate", "%s is before effective date %s", w.Expiry, w.Effective)
	}
	return nil
}

// Contains returns true if at lies within [Effective, Expiry].
func (w Window) Contains(at TimePoint) bool {
	if at.Before(w.Effective) {
		return false
	}
	if w.Expiry != nil && at.After(*w.Expiry) {
		return false
	}
	return true
}

// Overlaps applies the closed-interval test with nil expiry treated as +inf.
func (w Window) Overlaps(other Window) bool {
	if w.Expiry != nil && other.Effective.After(*w.Expiry) {
		return false
	}
	if other.Expiry != nil && w.Effective.After(*other.Expiry) {
		return false
	}
	return true
}

func (w Window) String() string {
	end := "open"
	if w.Expiry != nil {
		end = w.Expiry.String()
	}
	return "[" + w.Effective.String() + ", " + end + "]"
}

// Resolve returns the row in force at the given date, or false.
func Resolve[T Versioned](rows []T, at TimePoint) (T, bool) {
	var (
		best  T
		found bool
	)
	for _, row := range rows {
		w := row.ValidityWindow()
		if !w.Contains(at) {
			continue
		}
		if !found || w.Effective.After(best.ValidityWindow().Effective) {
			best = row
			found = true
		}
	}
	return best, found
}

// FirstOverlap returns the first row whose window overlaps w, skipping rows
// for which skip returns true.
func FirstOverlap[T Versioned](rows []T, w Window, skip func(T) bool) (T, bool) {
	for _, row := range rows {
		if skip != nil && skip(row) {
			continue
		}
		if row.ValidityWindow().Overlaps(w) {
			return row, true
		}
	}
	var zero T
	return zero, false
}
