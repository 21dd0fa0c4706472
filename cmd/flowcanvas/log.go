package main

import (
	"fmt"
	"io"
	"log/slog"

	charmlog "github.com/charmbracelet/log"

	"github.com/rendis/flowcanvas/internal/logging"
)

// newLogger builds the process logger: charmbracelet/log as the slog handler,
// wrapped so request, conversion and element ids from the context land on
// every record.
func newLogger(w io.Writer, level string, verbose bool) (*slog.Logger, error) {
	lvl := charmlog.InfoLevel
	if level != "" {
		parsed, err := charmlog.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}
	if verbose {
		lvl = charmlog.DebugLevel
	}

	handler := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           lvl,
	})
	return slog.New(logging.NewCorrelationHandler(handler)), nil
}
