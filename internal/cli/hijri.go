package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-clock/internal/api"
)

var flagHijriDate string

func newHijriCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hijri",
		Short: "Show the Hijri date",
		Long:  "Convert today (or --date) to the Hijri calendar.",
		Args:  cobra.NoArgs,
		RunE:  runHijri,
	}
	cmd.Flags().StringVar(&flagHijriDate, "date", "", "Gregorian date as YYYY-MM-DD (default: today)")
	return cmd
}

func runHijri(cmd *cobra.Command, args []string) error {
	date := time.Now()
	if flagHijriDate != "" {
		d, err := time.ParseInLocation("2006-01-02", flagHijriDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid date %q: use YYYY-MM-DD", flagHijriDate)
		}
		date = d
	}

	ctx := cmd.Context()
	a := newApp(ctx)
	defer a.Close()

	h, err := a.client.HijriDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", date.Format("2006-01-02"), err)
	}

	w := cmd.OutOrStdout()
	if FlagJSON {
		data, err := json.MarshalIndent(hijriJSON(date, h), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if a.cfg.Language == "ar" {
		fmt.Fprintln(w, h.FormatArabic())
		return nil
	}
	fmt.Fprintln(w, h.Format())
	return nil
}

type hijriOutput struct {
	Gregorian string `json:"gregorian"`
	Hijri     string `json:"hijri"`
	Arabic    string `json:"arabic"`
	Day       string `json:"day"`
	Month     int    `json:"month"`
	Year      string `json:"year"`
}

func hijriJSON(date time.Time, h *api.HijriDate) hijriOutput {
	return hijriOutput{
		Gregorian: date.Format("2006-01-02"),
		Hijri:     h.Format(),
		Arabic:    h.FormatArabic(),
		Day:       h.Day,
		Month:     h.Month.Number,
		Year:      h.Year,
	}
}
