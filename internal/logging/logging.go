// Package logging sets up zerolog loggers for the command line and the server
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options selects level, format and destination of a logger
type Options struct {
	Level  string    // zerolog level name, falls back to info
	Format string    // "console" or "json"
	Out    io.Writer // defaults to stderr
}

// New creates a logger with timestamps. The console format writes human
// readable lines, json writes one object per line.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer = out
	if !strings.EqualFold(opts.Format, FormatJSON) {
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = out
			cw.TimeFormat = time.RFC3339
			cw.NoColor = out != os.Stderr && out != os.Stdout
		})
	}

	return zerolog.New(w).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
}

// ParseLevel returns the named level or info for unknown names
func ParseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
