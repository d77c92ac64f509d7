// Package timeofday converts between "HH:MM" strings, minutes since
// midnight, and wall-clock instants.
package timeofday

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of a civil day in minutes.
const MinutesPerDay = 24 * 60

// ErrMalformed is returned when a string is not a valid "HH:MM" time of day.
var ErrMalformed = errors.New("malformed time of day")

// TimeOfDay is a count of minutes since midnight, in [0, MinutesPerDay).
type TimeOfDay int

// New builds a TimeOfDay from an hour and minute.
func New(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: hour %d out of range", ErrMalformed, hour)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: minute %d out of range", ErrMalformed, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// Parse parses a time string like "15:02" or "15:02 (BST)".
// The timezone suffix the Al Adhan API sometimes appends is ignored.
func Parse(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, " "); idx != -1 {
		s = s[:idx]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrMalformed, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrMalformed, raw)
	}

	t, err := New(hour, minute)
	if err != nil {
		return 0, fmt.Errorf("%w (input %q)", err, raw)
	}
	return t, nil
}

// ParseOr parses raw, returning fallback when it is not a valid time of day.
// Callers use this only when substituting a value is an explicit policy.
func ParseOr(raw string, fallback TimeOfDay) TimeOfDay {
	t, err := Parse(raw)
	if err != nil {
		return fallback
	}
	return t
}

// Of returns the time of day of t in t's own location.
func Of(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Minutes returns the number of minutes since midnight.
func (t TimeOfDay) Minutes() int { return int(t) }

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String formats t as zero-padded "HH:MM".
func (t TimeOfDay) String() string {
	return Format(int(t))
}

// On places t on the calendar day of day shifted by offsetDays, in day's location.
// time.Date normalizes the day overflow, so month and year boundaries work.
func (t TimeOfDay) On(day time.Time, offsetDays int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+offsetDays, t.Hour(), t.Minute(), 0, 0, day.Location())
}

// Format renders a minute count as zero-padded "HH:MM", wrapping it into a single day.
func Format(minutes int) string {
	m := minutes % MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// FormatDuration renders d as zero-padded "HH:MM:SS".
// Negative durations render as "00:00:00"; hours are not wrapped.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
