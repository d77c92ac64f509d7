package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
)

var flagFormat string

func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next prayer with countdown",
		Long: "Print a single status line for the next prayer, suitable for tmux or other status bars.\n\n" +
			"Formats: time-remaining, next-prayer-time, name-and-time, name-and-remaining,\n" +
			"short-name-and-time, short-name-and-remaining, countdown, progress, full,\n" +
			"or a custom Go template such as '{{.Name}} in {{.Remaining}}'.\n" +
			"Template fields: .Name, .ShortName, .Label, .Time, .Remaining, .Countdown,\n" +
			".Hours, .Minutes, .Seconds, .Progress",
		RunE: runNext,
	}

	cmd.Flags().StringVar(&flagFormat, "format", prayer.FormatFull, "Display format or custom Go template")

	return cmd
}

func runNext(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := newApp(ctx)
	defer a.Close()

	_, st, err := a.today(ctx, nil)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), prayer.FormatOutput(snapshot(st, a.cfg.Language), flagFormat, timeLayout(a.cfg)))
	return nil
}

// snapshot converts a countdown state into the one-line formatter's input.
func snapshot(st countdown.State, lang string) prayer.Snapshot {
	return prayer.Snapshot{
		Next:      st.Interval.Next,
		At:        st.Interval.End,
		Remaining: st.Remaining,
		Progress:  st.Progress,
		Language:  lang,
	}
}
