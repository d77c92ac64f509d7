package prayer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/smokyabdulrahman/prayer-clock/internal/timeofday"
)

// Format constants for display modes.
const (
	FormatTimeRemaining      = "time-remaining"
	FormatNextPrayerTime     = "next-prayer-time"
	FormatNameAndTime        = "name-and-time"
	FormatNameAndRemaining   = "name-and-remaining"
	FormatShortNameAndTime   = "short-name-and-time"
	FormatShortNameAndRemain = "short-name-and-remaining"
	FormatCountdown          = "countdown"
	FormatProgress           = "progress"
	FormatFull               = "full"
)

// Snapshot is everything a one-line renderer needs about the upcoming prayer.
type Snapshot struct {
	Next      Prayer
	At        time.Time // absolute instant of the next prayer
	Remaining time.Duration
	Progress  float64 // 0-100
	Language  string
}

// FormatData is the data passed to custom Go templates.
type FormatData struct {
	Name      string // Full prayer name, e.g. "Asr"
	ShortName string // Abbreviated name, e.g. "A"
	Label     string // Name in the configured language, e.g. "العصر"
	Time      string // Formatted prayer time, e.g. "15:02" or "3:02 PM"
	Remaining string // Time remaining, e.g. "2h 15m"
	Countdown string // Time remaining as "HH:MM:SS"
	Hours     int    // Whole hours remaining
	Minutes   int    // Remaining minutes after hours
	Seconds   int    // Remaining seconds after minutes
	Progress  int    // Elapsed share of the interval, 0-100
}

// FormatOutput formats a snapshot for display according to the chosen format mode.
// timeFormat should be "15:04" for 24h or "3:04 PM" for 12h.
//
// If mode contains "{{", it is treated as a custom Go template string.
// Available template fields: .Name, .ShortName, .Label, .Time, .Remaining,
// .Countdown, .Hours, .Minutes, .Seconds, .Progress
//
// Example: "{{.Name}} in {{.Remaining}}" -> "Asr in 2h 15m"
func FormatOutput(s Snapshot, mode string, timeFormat string) string {
	d := s.Remaining
	if d < 0 {
		d = 0
	}
	remaining := FormatRemaining(d)
	countdown := timeofday.FormatDuration(d)
	timeStr := s.At.Format(timeFormat)
	short := ShortNames[s.Next.Name]
	label := s.Next.Name.Label(s.Language)
	pct := int(s.Progress)

	// Custom template mode: any format string containing "{{" is a Go template.
	if strings.Contains(mode, "{{") {
		return formatCustom(mode, FormatData{
			Name:      string(s.Next.Name),
			ShortName: short,
			Label:     label,
			Time:      timeStr,
			Remaining: remaining,
			Countdown: countdown,
			Hours:     int(d.Hours()),
			Minutes:   int(d.Minutes()) % 60,
			Seconds:   int(d.Seconds()) % 60,
			Progress:  pct,
		})
	}

	switch mode {
	case FormatTimeRemaining:
		return remaining
	case FormatNextPrayerTime:
		return timeStr
	case FormatNameAndTime:
		return fmt.Sprintf("%s %s", label, timeStr)
	case FormatNameAndRemaining:
		return fmt.Sprintf("%s %s", label, remaining)
	case FormatShortNameAndTime:
		return fmt.Sprintf("%s %s", short, timeStr)
	case FormatShortNameAndRemain:
		return fmt.Sprintf("%s %s", short, remaining)
	case FormatCountdown:
		return fmt.Sprintf("%s %s", label, countdown)
	case FormatProgress:
		return fmt.Sprintf("%s %d%%", label, pct)
	case FormatFull:
		return fmt.Sprintf("%s %s (%s)", label, timeStr, remaining)
	default:
		// Default to name-and-time.
		return fmt.Sprintf("%s %s", label, timeStr)
	}
}

// FormatRemaining formats a duration as "Xh Ym" or "Ym" if less than an hour.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		return "0m"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// formatCustom executes a user-provided Go template string against the FormatData.
func formatCustom(tmpl string, data FormatData) string {
	t, err := template.New("custom").Parse(tmpl)
	if err != nil {
		return fmt.Sprintf("template-err: %v", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Sprintf("template-err: %v", err)
	}

	return buf.String()
}
