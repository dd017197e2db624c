package booking

import (
	"fmt"
	"time"
)

// ClockMinutes is a time of day expressed as minutes since midnight.
// Availability rules, slots and appointments all use it so interval
// comparisons are plain integer comparisons.
type ClockMinutes int

const minutesPerDay = 24 * 60

// ParseClock parses a "15:04" clock string.
func ParseClock(s string) (ClockMinutes, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockMinutes(t.Hour()*60 + t.Minute()), nil
}

func (c ClockMinutes) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Valid reports whether c falls within a single day.
func (c ClockMinutes) Valid() bool {
	return c >= 0 && c <= minutesPerDay
}

// At anchors the clock time on the given calendar date.
func (c ClockMinutes) At(date time.Time) time.Time {
	d := DateOf(date)
	return d.Add(time.Duration(c) * time.Minute)
}

// TimeRange is a half-open [Start, End) interval within one day.
type TimeRange struct {
	Start ClockMinutes `json:"start"`
	End   ClockMinutes `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
// Adjacent ranges (r.End == o.Start) do not overlap.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && r.End > o.Start
}

// ParseDate parses a "2006-01-02" calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
