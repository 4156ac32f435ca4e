// Package timeutil provides timezone-aware date helpers for the facility's
// local calendar. Attendance windows, reconciliation cursors, and retention
// cutoffs all reason about "the facility's day", never the server's.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// DefaultTZ is the facility timezone used when none is configured
// (UTC+2, South Africa Standard Time, no DST).
var DefaultTZ = time.FixedZone("Africa/Johannesburg", 2*60*60)

// Now returns the current time in the given location, defaulting to
// DefaultTZ when loc is nil.
func Now(loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultTZ
	}
	return time.Now().In(loc)
}

// StartOfDay returns 00:00:00 of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DateOnly truncates a time to its calendar date at midnight UTC. Cursor
// dates are stored this way so equality checks are exact.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two times fall on the same calendar day when both
// are viewed in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// At returns t's calendar day at the given hour and minute.
func At(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

// BusinessDayWindow returns the inclusive [start, cutoff] window of the
// business day containing t. Drop-offs with no later pick-up inside this
// window are what the reconciliation pass reports.
func BusinessDayWindow(t time.Time, startHour, cutoffHour int) (time.Time, time.Time) {
	return At(t, startHour, 0), At(t, cutoffHour, 0)
}

// StartOfYear returns Jan 1 00:00:00 of t's year in t's location.
func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatHumanDate is a human-readable format used in notifications.
	FormatHumanDate = "2 January 2006"
)
