// Package telemetry configures process-wide logging and tracing.
package telemetry

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// Log formats accepted by LogConfig.Format.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatLogfmt = "logfmt"
)

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// Format is one of text, json, logfmt. Unknown values mean text.
	Format string
}

// NewLogger returns a structured logger writing to w through a
// charmbracelet/log handler.
func NewLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(cfg.Level),
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Formatter:       parseFormatter(cfg.Format),
	})
	return slog.New(handler)
}

// ParseLevel maps a level name to a log level.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func parseFormatter(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return log.JSONFormatter
	case FormatLogfmt:
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
