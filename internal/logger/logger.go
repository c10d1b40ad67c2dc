// Package logger builds the daemon's zerolog logger.
package logger

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// New returns a logger writing to w. Format "text" gives a human-readable
// console layout; "json" gives one JSON object per line for journald.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	var out io.Writer
	switch format {
	case "json":
		out = w
	case "text", "":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat, NoColor: true}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want text or json", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// Component returns l tagged with a component field.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
