package pagination

import (
	"fmt"
	"time"
)

// TimestampLayout is the only timestamp format sent in from/to parameters.
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in UTC with second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses an RFC 3339 timestamp and normalises it to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// AddMonths moves t by n calendar months, clamping the day to the length of the
// target month (Jan 31 + 1 month = Feb 29 in a leap year, not Mar 2).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// startOfNextMonth returns midnight UTC on the first day of the month after t.
func startOfNextMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// startOfDay floors t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Window is one [From, To) request range.
type Window struct {
	From time.Time
	To   time.Time
}

// InitialWindow opens the first window at start and closes it at the start of
// the following month.
func InitialWindow(start time.Time) Window {
	return Window{From: start.UTC(), To: startOfNextMonth(start)}
}

// Next returns the window that follows w: it starts where w ended and spans one
// calendar month.
func (w Window) Next() Window {
	return Window{From: w.To, To: AddMonths(w.To, 1)}
}

func (w Window) String() string {
	return FormatTimestamp(w.From) + ".." + FormatTimestamp(w.To)
}
