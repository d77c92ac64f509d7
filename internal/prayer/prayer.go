package prayer

import (
	"errors"
	"fmt"
	"time"

	"github.com/smokyabdulrahman/prayer-clock/internal/api"
	"github.com/smokyabdulrahman/prayer-clock/internal/timeofday"
)

var (
	// ErrMissing is returned when a schedule lacks one of the six daily entries.
	ErrMissing = errors.New("missing prayer time")
	// ErrOutOfOrder is returned when schedule entries decrease in time of day.
	ErrOutOfOrder = errors.New("prayer times out of order")
)

// Name identifies one of the six daily markers.
type Name string

const (
	Fajr    Name = "Fajr"
	Sunrise Name = "Sunrise"
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// Order is the canonical chronological order of a day's schedule.
var Order = [6]Name{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// ShortNames maps prayer names to single-character abbreviations.
var ShortNames = map[Name]string{
	Fajr:    "F",
	Sunrise: "S",
	Dhuhr:   "D",
	Asr:     "A",
	Maghrib: "M",
	Isha:    "I",
}

// ArabicNames maps prayer names to their Arabic labels.
var ArabicNames = map[Name]string{
	Fajr:    "الفجر",
	Sunrise: "الشروق",
	Dhuhr:   "الظهر",
	Asr:     "العصر",
	Maghrib: "المغرب",
	Isha:    "العشاء",
}

// Label returns the display label for n in the given language ("ar" or anything else for English).
func (n Name) Label(lang string) string {
	if lang == "ar" {
		if l, ok := ArabicNames[n]; ok {
			return l
		}
	}
	return string(n)
}

// ParseName returns the canonical Name for s, or false when s is not one of the six.
func ParseName(s string) (Name, bool) {
	for _, n := range Order {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

// Prayer pairs a prayer name with its time of day.
type Prayer struct {
	Name Name
	Time timeofday.TimeOfDay
}

// Schedule is one calendar day's six prayer times in canonical order.
// It is immutable once built; refreshing produces a new Schedule.
type Schedule struct {
	date    time.Time
	prayers [6]Prayer
}

// NewSchedule validates times and builds a Schedule for the calendar day of date.
// Every name in Order must be present and times must not decrease.
func NewSchedule(date time.Time, times map[Name]timeofday.TimeOfDay) (*Schedule, error) {
	s := &Schedule{
		date: time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()),
	}
	for i, name := range Order {
		t, ok := times[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissing, name)
		}
		if t < 0 || t.Minutes() >= timeofday.MinutesPerDay {
			return nil, fmt.Errorf("%w: %s out of range", timeofday.ErrMalformed, name)
		}
		if i > 0 && t < s.prayers[i-1].Time {
			return nil, fmt.Errorf("%w: %s (%s) before %s (%s)",
				ErrOutOfOrder, name, t, s.prayers[i-1].Name, s.prayers[i-1].Time)
		}
		s.prayers[i] = Prayer{Name: name, Time: t}
	}
	return s, nil
}

// ParseTimings builds a Schedule from the API's timings for the given date.
// A missing or malformed entry is an error; nothing is silently defaulted.
func ParseTimings(timings api.Timings, date time.Time) (*Schedule, error) {
	raws := rawTimings(timings)
	times := make(map[Name]timeofday.TimeOfDay, len(Order))
	for _, name := range Order {
		raw := raws[name]
		if raw == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissing, name)
		}
		t, err := timeofday.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse time for %s: %w", name, err)
		}
		times[name] = t
	}
	return NewSchedule(date, times)
}

func rawTimings(t api.Timings) map[Name]string {
	return map[Name]string{
		Fajr:    t.Fajr,
		Sunrise: t.Sunrise,
		Dhuhr:   t.Dhuhr,
		Asr:     t.Asr,
		Maghrib: t.Maghrib,
		Isha:    t.Isha,
	}
}

// Date returns midnight of the schedule's calendar day.
func (s *Schedule) Date() time.Time { return s.date }

// Location returns the timezone the schedule's times are expressed in.
func (s *Schedule) Location() *time.Location { return s.date.Location() }

// Prayers returns a copy of the six entries in canonical order.
func (s *Schedule) Prayers() []Prayer {
	out := make([]Prayer, len(s.prayers))
	copy(out, s.prayers[:])
	return out
}

// Get returns the entry for name.
func (s *Schedule) Get(name Name) (Prayer, bool) {
	for _, p := range s.prayers {
		if p.Name == name {
			return p, true
		}
	}
	return Prayer{}, false
}

// Timings converts the schedule back into "HH:MM" strings keyed by name.
func (s *Schedule) Timings() map[Name]string {
	out := make(map[Name]string, len(s.prayers))
	for _, p := range s.prayers {
		out[p.Name] = p.Time.String()
	}
	return out
}

// Resolved is the previous/next prayer pair around an instant.
// PreviousDay is -1 when the previous prayer was yesterday's Isha;
// NextDay is +1 when the next prayer is tomorrow's Fajr.
type Resolved struct {
	Previous    Prayer
	Next        Prayer
	PreviousDay int
	NextDay     int
}

// Wrapped reports whether the pair straddles midnight.
func (r Resolved) Wrapped() bool {
	return r.PreviousDay != 0 || r.NextDay != 0
}

// Resolve finds the first prayer strictly after now and its canonical predecessor.
// A prayer exactly at now counts as passed. When now is at or after Isha the next
// prayer is tomorrow's Fajr; before Fajr the previous prayer is yesterday's Isha.
func Resolve(s *Schedule, now timeofday.TimeOfDay) Resolved {
	last := len(s.prayers) - 1
	for i, p := range s.prayers {
		if p.Time > now {
			if i == 0 {
				return Resolved{Previous: s.prayers[last], Next: p, PreviousDay: -1}
			}
			return Resolved{Previous: s.prayers[i-1], Next: p}
		}
	}
	return Resolved{Previous: s.prayers[last], Next: s.prayers[0], NextDay: 1}
}

// ResolveAt resolves against the wall-clock time of t in the schedule's location.
func ResolveAt(s *Schedule, t time.Time) Resolved {
	return Resolve(s, timeofday.Of(t.In(s.Location())))
}

// Status classifies a prayer relative to the current instant.
type Status int

const (
	StatusUpcoming Status = iota
	StatusNext
	StatusPassed
)

func (st Status) String() string {
	switch st {
	case StatusNext:
		return "next"
	case StatusPassed:
		return "passed"
	default:
		return "upcoming"
	}
}

// Statuses returns the status of each prayer in canonical order.
// After Isha every prayer has passed except tomorrow's Fajr, which is next.
func Statuses(s *Schedule, now timeofday.TimeOfDay) []Status {
	r := Resolve(s, now)
	out := make([]Status, len(s.prayers))
	for i, p := range s.prayers {
		switch {
		case p.Name == r.Next.Name:
			out[i] = StatusNext
		case p.Time <= now:
			out[i] = StatusPassed
		default:
			out[i] = StatusUpcoming
		}
	}
	return out
}
