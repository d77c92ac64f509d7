// Package logging builds the zerolog loggers used across the CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup returns a logger writing to w at the named level.
// Unknown or empty levels fall back to warn, so normal CLI output stays clean.
// When pretty is set, entries are rendered for a terminal instead of as JSON.
func Setup(w io.Writer, level string, pretty bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// SetupDefault installs a Setup logger as the package-global zerolog logger.
func SetupDefault(w io.Writer, level string, pretty bool) zerolog.Logger {
	l := Setup(w, level, pretty)
	log.Logger = l
	return l
}

// ParseLevel maps a config value like "debug" to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.WarnLevel
	}
	return lvl
}
