package cli

import (
	"io"
	"log/slog"
	"os"
)

// logLevel maps the verbosity flags to a slog level.
// Quiet wins over verbose when both are set.
func logLevel(verbose, quiet bool) slog.Level {
	switch {
	case quiet:
		return slog.LevelError
	case verbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// SetupLogging installs the process-wide logger according to the
// --verbose and --quiet persistent flags and returns it.
func SetupLogging(w io.Writer, verbose, quiet bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel(verbose, quiet),
	}))
	slog.SetDefault(logger)
	return logger
}
