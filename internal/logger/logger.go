// Package logger builds charmbracelet/log loggers with the service defaults.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New creates a text logger on stderr at the global log level.
func New(prefix string) *log.Logger {
	return NewWithConfig(prefix, log.GetLevel(), false, true, log.TextFormatter)
}

// NewWithConfig creates a logger on stderr with custom config.
func NewWithConfig(prefix string, level log.Level, caller bool, showTimestamp bool, fmt log.Formatter) *log.Logger {
	return NewWriter(os.Stderr, prefix, level, caller, showTimestamp, fmt)
}

// NewWriter is NewWithConfig for an arbitrary writer.
func NewWriter(w io.Writer, prefix string, level log.Level, caller bool, showTimestamp bool, fmt log.Formatter) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportCaller:    caller,
		ReportTimestamp: showTimestamp,
		Formatter:       fmt,
	})
}

// FromConfig parses a level name (debug, info, warn, error) and a format
// name (text, json, logfmt). Unknown names fall back to info and text.
func FromConfig(w io.Writer, prefix, level, format string) *log.Logger {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	return NewWriter(w, prefix, lvl, lvl == log.DebugLevel, true, ParseFormatter(format))
}

// ParseFormatter maps a format name to a formatter.
func ParseFormatter(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
