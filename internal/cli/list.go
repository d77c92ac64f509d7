package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-clock/internal/display"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
	"github.com/smokyabdulrahman/prayer-clock/internal/service"
)

const (
	defaultListDays = 7
	maxListDays     = 31
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [days]",
		Short: "Show prayer times for multiple days",
		Long:  fmt.Sprintf("Display a grid of prayer times for N days starting today (default: %d, max: %d).", defaultListDays, maxListDays),
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	days := defaultListDays
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > maxListDays {
			return fmt.Errorf("invalid number of days: %q (must be between 1 and %d)", args[0], maxListDays)
		}
		days = n
	}

	ctx := cmd.Context()
	a := newApp(ctx)
	defer a.Close()

	svc, err := a.service(ctx, service.Options{})
	if err != nil {
		return err
	}
	// Today's refresh settles the location's timezone, and with it the start date.
	first, err := svc.Refresh(ctx)
	if err != nil {
		return err
	}
	loc := first.Location

	list, err := svc.Days(ctx, loc, first.Schedule.Date(), days)
	if err != nil {
		return err
	}

	layout := timeLayout(a.cfg)
	if FlagJSON {
		return printListJSON(cmd.OutOrStdout(), list, layout)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", display.Bold(fmt.Sprintf("Prayer Times · %d Days", days)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", loc.Label())
	fmt.Fprintln(w)

	headers := []string{"Date"}
	for _, n := range prayer.Order {
		headers = append(headers, n.Label(a.cfg.Language))
	}
	tbl := display.NewTable(headers...)
	for _, d := range list {
		row := []string{d.Schedule.Date().Format("Mon 02 Jan")}
		for _, p := range d.Schedule.Prayers() {
			row = append(row, p.Time.On(d.Schedule.Date(), 0).Format(layout))
		}
		tbl.AddRow(row...)
	}
	// The list starts today.
	tbl.Highlight(0)

	fmt.Fprint(w, tbl.Render())
	fmt.Fprintln(w)
	return nil
}

type listJSONOutput struct {
	Location todayJSONLocation `json:"location"`
	Days     []listJSONDay     `json:"days"`
}

type listJSONDay struct {
	Date    string            `json:"date"`
	Hijri   string            `json:"hijri,omitempty"`
	Timings map[string]string `json:"timings"`
}

func printListJSON(w io.Writer, list []*service.Day, layout string) error {
	var out listJSONOutput
	if len(list) > 0 {
		loc := list[0].Location
		out.Location = todayJSONLocation{
			City:      loc.City,
			Country:   loc.Country,
			Timezone:  list[0].Schedule.Location().String(),
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		}
	}

	for _, d := range list {
		day := listJSONDay{
			Date:    d.Schedule.Date().Format("2006-01-02"),
			Timings: make(map[string]string, len(prayer.Order)),
		}
		if d.Hijri != nil {
			day.Hijri = d.Hijri.Format()
		}
		for _, p := range d.Schedule.Prayers() {
			day.Timings[strings.ToLower(string(p.Name))] = p.Time.On(d.Schedule.Date(), 0).Format(layout)
		}
		out.Days = append(out.Days, day)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
