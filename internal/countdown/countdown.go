// Package countdown computes the live remaining time and elapsed progress
// between two resolved prayers, and drives the once-per-second tick loop
// that re-resolves the next prayer at rollover.
package countdown

import (
	"errors"
	"time"

	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
)

// ErrDegenerateInterval is returned when an interval's end is not after its start.
var ErrDegenerateInterval = errors.New("degenerate prayer interval")

// RolloverThreshold is the remaining time at or below which a tick counts as a rollover.
const RolloverThreshold = time.Second

// Interval is a resolved previous/next pair placed on absolute instants.
// All wrap arithmetic happens here, once, relative to the resolving day.
type Interval struct {
	prayer.Resolved
	Start time.Time // previous prayer, possibly yesterday
	End   time.Time // next prayer, possibly tomorrow
}

// Anchor places r on the calendar day of now, in now's location.
func Anchor(r prayer.Resolved, now time.Time) Interval {
	return Interval{
		Resolved: r,
		Start:    r.Previous.Time.On(now, r.PreviousDay),
		End:      r.Next.Time.On(now, r.NextDay),
	}
}

// State is one tick's view of the countdown.
type State struct {
	Interval      Interval
	Now           time.Time
	Remaining     time.Duration // whole seconds, never negative
	Progress      float64       // percent elapsed, in [0, 100]
	ProgressKnown bool
	Rollover      bool // remaining is within RolloverThreshold
}

// Tick computes remaining time and progress at now.
// A degenerate interval yields a zero, unknown progress and ErrDegenerateInterval;
// the remaining time is still valid.
func (iv Interval) Tick(now time.Time) (State, error) {
	st := State{Interval: iv, Now: now}

	remaining := iv.End.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	st.Rollover = remaining <= RolloverThreshold
	st.Remaining = remaining.Truncate(time.Second)

	total := iv.End.Sub(iv.Start)
	if total <= 0 {
		return st, ErrDegenerateInterval
	}

	pct := float64(now.Sub(iv.Start)) / float64(total) * 100
	st.Progress = min(100, max(0, pct))
	st.ProgressKnown = true
	return st, nil
}
