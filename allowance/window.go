package allowance

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// DAY - Calendar date in a unit's business timezone
// =============================================================================

// Day is a calendar date with no time-of-day or zone. Party days are
// stored as Days so that "today" means the same thing regardless of the
// server's local clock.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

const dayLayout = "2006-01-02"

// NewDay constructs a Day. Out-of-range values are normalized the way
// time.Date normalizes them.
func NewDay(year int, month time.Month, day int) Day {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Day{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DayOf returns the calendar date of instant t observed in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	lt := t.In(locationOrUTC(loc))
	return Day{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Day) Equal(other Day) bool { return d == other }
func (d Day) IsZero() bool         { return d == Day{} }
func (d Day) Before(other Day) bool {
	return d.Start(time.UTC).Before(other.Start(time.UTC))
}

// Start returns midnight of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, locationOrUTC(loc))
}

// InMonth reports whether d falls in the same calendar month as w.
func (d Day) InMonth(w Window) bool {
	return d.Year == w.Year && d.Month == w.Month
}

// =============================================================================
// WINDOW - Half-open calendar month [1st 00:00, 1st of next month 00:00)
// =============================================================================

type Window struct {
	Year  int
	Month time.Month
	Start time.Time
	End   time.Time
}

// MonthWindowOf returns the calendar month containing now, with boundaries
// at local midnight in loc. End is exclusive. DST shifts are handled by
// time.Date, so a month may be 1 hour shorter or longer than its day count.
func MonthWindowOf(now time.Time, loc *time.Location) Window {
	loc = locationOrUTC(loc)
	lt := now.In(loc)
	start := time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc)
	return Window{
		Year:  start.Year(),
		Month: start.Month(),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// Contains reports whether t is in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%04d-%02d", w.Year, int(w.Month))
}

// SortDays orders days oldest first.
func SortDays(days []Day) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
