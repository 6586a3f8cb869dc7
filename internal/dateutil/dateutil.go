package dateutil

import (
	"fmt"
	"regexp"
	"time"
)

var ddmmyyyy = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// ParseDueDate parses a due-date string as entered by users or stored by
// older clients. Accepted shapes: YYYY-MM-DD, full RFC3339 timestamps and
// DD/MM/YYYY. Anything else returns ok=false; callers must treat that as
// "unclassifiable", not as an error worth crashing for.
func ParseDueDate(text string) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation("2006-01-02", text, time.Local); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.Local(), true
	}
	if m := ddmmyyyy.FindStringSubmatch(text); m != nil {
		t, err := time.ParseInLocation("02/01/2006", text, time.Local)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Truncate drops the time-of-day component, keeping the local calendar date.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayDiff returns the number of whole calendar days from a to b. Only
// the calendar dates matter: both are rebuilt as UTC midnights before
// subtracting, so a 23-hour DST spring-forward day still counts as one
// full day.
func DayDiff(a, b time.Time) int {
	a0 := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b0 := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b0.Sub(a0).Hours() / 24)
}

// DayKey formats a period key for daily bucketing.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// WeekKey formats a period key for weekly bucketing: the date of the
// Monday starting the week the timestamp falls in.
func WeekKey(t time.Time) string {
	t = Truncate(t)
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return t.AddDate(0, 0, -offset).Format("2006-01-02")
}

// MonthKey formats a period key for monthly bucketing.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}
