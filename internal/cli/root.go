package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smokyabdulrahman/prayer-clock/internal/config"
	"github.com/smokyabdulrahman/prayer-clock/internal/logging"
)

// Global flags shared across all subcommands.
var (
	FlagCity       string
	FlagCountry    string
	FlagLatitude   float64
	FlagLongitude  float64
	FlagMethod     int
	FlagSchool     int
	FlagJSON       bool
	FlagTimeFormat string
	FlagLanguage   string
	FlagStore      string
	FlagStorePath  string
	FlagLogLevel   string
	FlagLogFormat  string
	FlagAPIURL     string
)

// loadedConfig holds the merged config built in PersistentPreRunE.
var loadedConfig *config.Config

// logger is the root logger built in PersistentPreRunE.
var logger = zerolog.Nop()

// NewRootCmd creates the root command for the prayer-clock CLI.
// The version parameter is set by the calling binary via ldflags.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "prayer-clock",
		Short:   "Live Islamic prayer countdown",
		Long:    "Shows today's prayer times and a live countdown to the next prayer, powered by the Al Adhan API.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			loadedConfig = cfg
			logger = logging.SetupDefault(cmd.ErrOrStderr(), cfg.LogLevel, FlagLogFormat != "json")
			return nil
		},
		// Default action: show today's prayer schedule.
		RunE:          runToday,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&FlagCity, "city", "", "Override city (takes precedence over config)")
	pf.StringVar(&FlagCountry, "country", "", "Override country")
	pf.Float64Var(&FlagLatitude, "latitude", 0, "Override latitude")
	pf.Float64Var(&FlagLongitude, "longitude", 0, "Override longitude")
	pf.IntVar(&FlagMethod, "method", -1, "Override calculation method (0-23)")
	pf.IntVar(&FlagSchool, "school", -1, "Override school (0=Shafi, 1=Hanafi)")
	pf.BoolVar(&FlagJSON, "json", false, "Output as JSON (where supported)")
	pf.StringVar(&FlagTimeFormat, "time-format", "", "Time format: 12h or 24h (overrides config)")
	pf.StringVar(&FlagLanguage, "language", "", "Prayer name language: en or ar (overrides config)")
	pf.StringVar(&FlagStore, "store", "", "Storage backend: file, sqlite, redis or memory")
	pf.StringVar(&FlagStorePath, "store-path", "", "Store directory (file) or database path (sqlite)")
	pf.StringVar(&FlagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&FlagLogFormat, "log-format", "console", "Log format: console or json")
	pf.StringVar(&FlagAPIURL, "api-url", "", "Al Adhan API base URL")
	_ = pf.MarkHidden("api-url")

	rootCmd.AddCommand(newNextCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newHijriCmd())
	rootCmd.AddCommand(newLocateCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newMethodsCmd())

	return rootCmd
}

// loadConfig builds the effective configuration:
// CLI flags > environment (.env included) > config file > defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFiles := []string{".env"}
	if dir, err := config.Dir(); err == nil {
		envFiles = append(envFiles, filepath.Join(dir, ".env"))
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg.WithDefaults(), nil
}

// applyFlags copies explicitly set flags onto cfg, validating them the same
// way `config set` does.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	root := cmd.Root().PersistentFlags()

	if flagWasSet(flags, root, "latitude") {
		cfg.Latitude = FlagLatitude
	}
	if flagWasSet(flags, root, "longitude") {
		cfg.Longitude = FlagLongitude
	}
	if flagWasSet(flags, root, "city") {
		cfg.City = FlagCity
		// A city overrides configured coordinates unless they were also given.
		if !flagWasSet(flags, root, "latitude") && !flagWasSet(flags, root, "longitude") {
			cfg.Latitude, cfg.Longitude = 0, 0
		}
	}
	if flagWasSet(flags, root, "country") {
		cfg.Country = FlagCountry
	}
	if flagWasSet(flags, root, "method") {
		cfg.Method = &FlagMethod
	}
	if flagWasSet(flags, root, "school") {
		cfg.School = &FlagSchool
	}

	set := map[string]*string{
		"time-format": &FlagTimeFormat,
		"language":    &FlagLanguage,
		"store":       &FlagStore,
		"store-path":  &FlagStorePath,
		"log-level":   &FlagLogLevel,
	}
	for name, v := range set {
		if !flagWasSet(flags, root, name) {
			continue
		}
		if err := cfg.Set(configKey(name), *v); err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
	}
	return nil
}

// configKey maps a flag name like "time-format" to its config key "time_format".
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// flagWasSet checks if a flag was explicitly set on either the local or persistent flag set.
func flagWasSet(local, persistent *pflag.FlagSet, name string) bool {
	if f := local.Lookup(name); f != nil && f.Changed {
		return true
	}
	if f := persistent.Lookup(name); f != nil && f.Changed {
		return true
	}
	return false
}

// timeLayout returns the Go layout for the configured time format.
func timeLayout(cfg *config.Config) string {
	if cfg.TimeFormat == "12h" {
		return "3:04 PM"
	}
	return "15:04"
}
