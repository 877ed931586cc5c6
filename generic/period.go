package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Inclusive date range used to refilter settlements
// =============================================================================

// Period is an inclusive date range [Start, End].
// A zero Start or End leaves that side open.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period.
func (p Period) Contains(t TimePoint) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && t.After(p.End) {
		return false
	}
	return true
}

// IsOpen reports whether neither side is bounded.
func (p Period) IsOpen() bool { return p.Start.IsZero() && p.End.IsZero() }

// Validate returns ErrInvalidPeriod when End is before Start.
func (p Period) Validate() error {
	if !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	start, end := "-inf", "+inf"
	if !p.Start.IsZero() {
		start = p.Start.String()
	}
	if !p.End.IsZero() {
		end = p.End.String()
	}
	return "[" + start + ", " + end + "]"
}

// MonthPeriod returns the period covering a calendar month.
func MonthPeriod(year int, month time.Month) Period {
	return Period{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// YearPeriod returns the period covering a calendar year.
func YearPeriod(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}

// =============================================================================
// MONTH KEY - Grouping key for the monthly fold
// =============================================================================

type MonthKey struct {
	Year  int
	Month time.Month
}

func (m MonthKey) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

func (m MonthKey) Before(other MonthKey) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m MonthKey) Period() Period { return MonthPeriod(m.Year, m.Month) }

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysBetween(from, to TimePoint) int { return int(to.normalize().Sub(from.normalize()).Hours() / 24) }
func StartOfYear(year int) TimePoint     { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint       { return NewTimePoint(year, time.December, 31) }
func StartOfMonth(year int, month time.Month) TimePoint {
	return NewTimePoint(year, month, 1)
}
func EndOfMonth(year int, month time.Month) TimePoint {
	t := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return TimePoint{Time: t}
}
