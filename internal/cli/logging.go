package cli

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// newLogger creates and configures the process logger. It does not touch
// zerolog's global logger, allowing for isolated instances in tests.
// Console output when writing to a terminal, JSON otherwise.
func newLogger(levelStr string, out *os.File) zerolog.Logger {
	var level zerolog.Level
	switch levelStr {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	var w io.Writer = out
	if isTerminal(out) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
