// Package klog configures the process-wide slog logger for kernel
// components. Output is JSON unless stderr is a terminal, in which case a
// compact colored console handler is used.
package klog

import (
	"log"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Setup installs the default logger. The level comes from AXFS_LOG_LEVEL
// ("debug", "info", "warn", "error"); unset or unparsable means info.
func Setup() {
	level := slog.LevelInfo
	if env := os.Getenv("AXFS_LOG_LEVEL"); env != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(env)); err == nil {
			level = parsed
		}
	}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = newConsoleHandler(os.Stderr, level)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	// set short file flag so that source info survives the log package
	// bridge. see slog.SetDefault internals.
	log.SetFlags(log.Lshortfile)
	slog.SetDefault(slog.New(handler))
}
