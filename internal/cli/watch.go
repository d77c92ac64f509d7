package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smokyabdulrahman/prayer-clock/internal/api"
	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/display"
	"github.com/smokyabdulrahman/prayer-clock/internal/metrics"
	"github.com/smokyabdulrahman/prayer-clock/internal/notify"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
	"github.com/smokyabdulrahman/prayer-clock/internal/service"
	"github.com/smokyabdulrahman/prayer-clock/internal/tui"
)

const (
	// metricsFlushInterval is how often --metrics-file is rewritten.
	metricsFlushInterval = 15 * time.Second
	// locationPollInterval is how often the store is checked for a location
	// saved by `locate` while watching.
	locationPollInterval = 30 * time.Second
)

var (
	flagPlain       bool
	flagMetricsFile string
	flagWatchFormat string
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live countdown to the next prayer",
		Long: "Run a live countdown that ticks every second, rolls over to the following prayer\n" +
			"and refreshes the schedule after midnight or when the saved location changes.\n" +
			"Send SIGHUP to reload the configuration, such as a new calculation method.\n\n" +
			"With mqtt_broker configured, the schedule and every rollover are published\n" +
			"(retained) to <mqtt_topic>/schedule and <mqtt_topic>/next.",
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	cmd.Flags().BoolVar(&flagPlain, "plain", false, "Print status lines instead of the interactive view")
	cmd.Flags().StringVar(&flagWatchFormat, "format", prayer.FormatCountdown, "Status line format for --plain (see 'next --help')")
	cmd.Flags().StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file (node_exporter textfile format)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx)
	defer a.Close()

	var observers []countdown.Observer

	var (
		registry  *prometheus.Registry
		collector *metrics.Collector
	)
	if flagMetricsFile != "" {
		registry = prometheus.NewRegistry()
		collector = metrics.NewCollector(registry)
		observers = append(observers, collector)
	}

	var publisher *notify.Publisher
	if a.cfg.MQTTBroker != "" {
		p, err := notify.Dial(a.cfg.MQTTBroker, a.cfg.MQTTTopic, a.cfg.Language, a.log)
		if err != nil {
			// The countdown is still useful without the adhan system.
			a.log.Warn().Err(err).Msg("MQTT sync disabled")
		} else {
			publisher = p
			defer publisher.Close()
			observers = append(observers, publisher)
		}
	}

	interactive := !flagPlain && isatty.IsTerminal(os.Stdout.Fd())
	var feed *tui.Feed
	if interactive {
		feed = tui.NewFeed()
		observers = append(observers, feed)
	} else {
		observers = append(observers, newPlainPrinter(cmd.OutOrStdout(), flagWatchFormat, a.cfg.Language, timeLayout(a.cfg), isatty.IsTerminal(os.Stdout.Fd())))
	}

	engine := countdown.New(countdown.Options{Logger: a.log}, observers...)
	defer engine.Stop()

	g, gctx := errgroup.WithContext(ctx)

	opts := service.Options{
		PollInterval: locationPollInterval,

		OnDay: func(d *service.Day) {
			if err := engine.Start(gctx, d.Schedule); err != nil {
				a.log.Error().Err(err).Msg("failed to start countdown")
				return
			}
			if publisher != nil {
				if err := publisher.PublishSchedule(d.Schedule, d.Location); err != nil {
					a.log.Warn().Err(err).Msg("failed to publish schedule")
				}
			}
			if feed != nil {
				feed.Day(d)
			}
		},
		OnError: func(err error) {
			if feed != nil {
				feed.Error(err)
			}
		},
	}
	if collector != nil {
		opts.Metrics = collector
	}
	svc, err := a.service(ctx, opts)
	if err != nil {
		return err
	}

	g.Go(func() error {
		return svc.Run(gctx)
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		reloadOnHangup(gctx, cmd, hup, svc, a.log)
		return nil
	})

	if registry != nil {
		g.Go(func() error {
			return flushMetrics(gctx, flagMetricsFile, registry, a)
		})
	}

	if interactive {
		g.Go(func() error {
			defer stop()
			defer feed.Close()
			p := tea.NewProgram(tui.New(feed, nil, tui.Options{Language: a.cfg.Language, TimeLayout: timeLayout(a.cfg)}), tea.WithContext(gctx))
			_, err := p.Run()
			if err != nil && gctx.Err() == nil {
				return fmt.Errorf("interactive view failed: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		// Interrupted or quit; not a failure.
		return nil
	}
	return err
}

// reloadOnHangup re-reads the configuration on each signal from hup. A changed
// calculation method is applied; otherwise the service refreshes so a newly
// saved location takes effect at once.
func reloadOnHangup(ctx context.Context, cmd *cobra.Command, hup <-chan os.Signal, svc *service.Service, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			log.Warn().Err(err).Msg("config reload failed")
			continue
		}
		log.Info().Msg("configuration reloaded")

		if m := cfg.MethodOrDefault(api.DefaultMethod); m != svc.Method() {
			// A failed refresh is logged by the service and retried by Run.
			_ = svc.SetMethod(ctx, m)
			continue
		}
		_, _ = svc.Refresh(ctx)
	}
}

// flushMetrics rewrites path every metricsFlushInterval and once more on exit.
func flushMetrics(ctx context.Context, path string, g prometheus.Gatherer, a *app) error {
	t := time.NewTicker(metricsFlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := metrics.WriteTextfile(path, g); err != nil {
				a.log.Warn().Err(err).Msg("failed to write metrics")
			}
			return nil
		case <-t.C:
			if err := metrics.WriteTextfile(path, g); err != nil {
				a.log.Warn().Err(err).Str("path", path).Msg("failed to write metrics")
			}
		}
	}
}

// plainPrinter writes one status line per tick. On a terminal the line is
// redrawn in place; otherwise a line is written only when the text changes.
type plainPrinter struct {
	w       io.Writer
	format  string
	lang    string
	layout  string
	inPlace bool
	last    string
}

func newPlainPrinter(w io.Writer, format, lang, layout string, inPlace bool) *plainPrinter {
	return &plainPrinter{w: w, format: format, lang: lang, layout: layout, inPlace: inPlace}
}

func (p *plainPrinter) OnTick(st countdown.State) {
	line := prayer.FormatOutput(snapshot(st, p.lang), p.format, p.layout)
	if line == p.last {
		return
	}
	p.last = line
	if p.inPlace {
		fmt.Fprintf(p.w, "\r\033[K%s", line)
		return
	}
	fmt.Fprintln(p.w, line)
}

func (p *plainPrinter) OnRollover(from, to countdown.Interval) {
	if p.inPlace {
		fmt.Fprintln(p.w)
	}
	fmt.Fprintln(p.w, display.Green(fmt.Sprintf("%s → %s", from.Next.Name.Label(p.lang), to.Next.Name.Label(p.lang))))
	p.last = ""
}
