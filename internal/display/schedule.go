package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
	"github.com/smokyabdulrahman/prayer-clock/internal/timeofday"
)

// DayView is everything the today view shows.
type DayView struct {
	Schedule   *prayer.Schedule
	State      countdown.State
	Location   string
	Hijri      string
	Language   string
	TimeLayout string // "15:04" or "3:04 PM"
}

// ProgressBar draws pct (0-100) as a bar of width cells.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	pct = min(100, max(0, pct))
	filled := int(pct / 100 * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// RenderDay renders the schedule with passed prayers dimmed and the next one
// accented, followed by the countdown to it.
func RenderDay(v DayView) string {
	var sb strings.Builder
	date := v.Schedule.Date()

	sb.WriteString("\n  " + Bold("Prayer Times") + "\n\n")
	if v.Location != "" {
		sb.WriteString("  " + v.Location + "\n")
	}
	sb.WriteString("  " + Gray(date.Location().String()) + "\n")
	sb.WriteString("  " + date.Format("Monday, 02 January 2006") + "\n")
	if v.Hijri != "" {
		sb.WriteString("  " + v.Hijri + "\n")
	}
	sb.WriteString("\n")

	now := timeofday.Of(v.State.Now.In(date.Location()))
	statuses := prayer.Statuses(v.Schedule, now)

	tbl := NewTable(label("Prayer", "الصلاة", v.Language), label("Time", "الوقت", v.Language))
	for i, p := range v.Schedule.Prayers() {
		name := p.Name.Label(v.Language)
		at := p.Time.On(date, 0).Format(v.TimeLayout)
		if statuses[i] == prayer.StatusPassed {
			name, at = Dim(name), Dim(at)
		}
		tbl.AddRow(name, at)
		if statuses[i] == prayer.StatusNext {
			tbl.Highlight(i)
		}
	}
	sb.WriteString(tbl.Render())
	sb.WriteString("\n" + StatusLine(v.State, v.Language) + "\n\n")
	return sb.String()
}

// StatusLine is the one-line countdown: "Asr in 03:25:00  [████░░░░] 42%".
func StatusLine(st countdown.State, lang string) string {
	next := st.Interval.Next.Name.Label(lang)
	line := fmt.Sprintf("  %s %s %s", Accent(next), label("in", "بعد", lang), Bold(timeofday.FormatDuration(st.Remaining)))
	if st.ProgressKnown {
		line += fmt.Sprintf("  %s %s", Cyan(ProgressBar(st.Progress, 20)), Gray(fmt.Sprintf("%d%%", int(st.Progress))))
	}
	if st.Interval.NextDay > 0 {
		line += " " + Gray(label("(tomorrow)", "(غدا)", lang))
	}
	return line
}

// FormatClock formats a time of day with a Go layout.
func FormatClock(t timeofday.TimeOfDay, layout string) string {
	return t.On(time.Time{}, 0).Format(layout)
}

func label(en, ar, lang string) string {
	if lang == "ar" {
		return ar
	}
	return en
}
