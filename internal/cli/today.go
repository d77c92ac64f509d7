package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/display"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
	"github.com/smokyabdulrahman/prayer-clock/internal/service"
	"github.com/smokyabdulrahman/prayer-clock/internal/timeofday"
)

func runToday(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := newApp(ctx)
	defer a.Close()

	day, st, err := a.today(ctx, nil)
	if err != nil {
		return err
	}

	if FlagJSON {
		display.SetEnabled(false)
		return printTodayJSON(cmd.OutOrStdout(), day, st, timeLayout(a.cfg))
	}

	fmt.Fprint(cmd.OutOrStdout(), display.RenderDay(display.DayView{
		Schedule:   day.Schedule,
		State:      st,
		Location:   day.Location.Label(),
		Hijri:      hijriLabel(day, a.cfg.Language),
		Language:   a.cfg.Language,
		TimeLayout: timeLayout(a.cfg),
	}))
	return nil
}

// hijriLabel formats the day's Hijri date in the configured language.
func hijriLabel(day *service.Day, lang string) string {
	if day.Hijri == nil {
		return ""
	}
	if lang == "ar" {
		return day.Hijri.FormatArabic()
	}
	return day.Hijri.Format()
}

// todayJSON is the JSON output structure for the root command.
type todayJSON struct {
	Location todayJSONLocation `json:"location"`
	Date     todayJSONDate     `json:"date"`
	Timings  map[string]string `json:"timings"`
	Statuses map[string]string `json:"statuses"`
	Current  string            `json:"current"`
	Next     todayJSONNext     `json:"next"`
}

type todayJSONLocation struct {
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Timezone  string  `json:"timezone"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type todayJSONDate struct {
	Gregorian string `json:"gregorian"`
	Hijri     string `json:"hijri,omitempty"`
}

type todayJSONNext struct {
	Prayer    string   `json:"prayer"`
	Time      string   `json:"time"`
	Tomorrow  bool     `json:"tomorrow,omitempty"`
	Remaining string   `json:"remaining"`
	Seconds   int64    `json:"remaining_seconds"`
	Progress  *float64 `json:"progress,omitempty"`
}

func printTodayJSON(w io.Writer, day *service.Day, st countdown.State, layout string) error {
	sched := day.Schedule
	statuses := prayer.Statuses(sched, timeofday.Of(st.Now.In(sched.Location())))

	out := todayJSON{
		Location: todayJSONLocation{
			City:      day.Location.City,
			Country:   day.Location.Country,
			Timezone:  sched.Location().String(),
			Latitude:  day.Location.Latitude,
			Longitude: day.Location.Longitude,
		},
		Date: todayJSONDate{
			Gregorian: sched.Date().Format("02 Jan 2006"),
		},
		Timings:  make(map[string]string, len(prayer.Order)),
		Statuses: make(map[string]string, len(prayer.Order)),
		Current:  strings.ToLower(string(st.Interval.Previous.Name)),
		Next: todayJSONNext{
			Prayer:    strings.ToLower(string(st.Interval.Next.Name)),
			Time:      st.Interval.End.Format(layout),
			Tomorrow:  st.Interval.NextDay > 0,
			Remaining: prayer.FormatRemaining(st.Remaining),
			Seconds:   int64(st.Remaining.Seconds()),
		},
	}
	if day.Hijri != nil {
		out.Date.Hijri = day.Hijri.Format()
	}
	if st.ProgressKnown {
		pct := st.Progress
		out.Next.Progress = &pct
	}
	for i, p := range sched.Prayers() {
		key := strings.ToLower(string(p.Name))
		out.Timings[key] = p.Time.On(sched.Date(), 0).Format(layout)
		out.Statuses[key] = statuses[i].String()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
