// Package observability provides structured logging, Prometheus metrics, and
// optional OpenTelemetry tracing for the gateway.
package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format specifies output format: "json" (production) or "text" (dev).
	Format string `yaml:"format"`

	// AddSource includes file and line number in log records.
	AddSource bool `yaml:"add_source"`

	// Output is the writer for log output (defaults to os.Stdout).
	Output io.Writer `yaml:"-"`
}

// DefaultRedactPatterns masks credentials that could leak through event
// payloads or connection errors.
var DefaultRedactPatterns = []string{
	// JWT tokens
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
	// Generic secrets
	`(?i)(secret|password|token|key)[\s:=]+["']?([^\s"']{8,})["']?`,
}

var redactRes = compileRedacts(DefaultRedactPatterns)

func compileRedacts(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}

// Redact masks sensitive substrings in s.
func Redact(s string) string {
	for _, re := range redactRes {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// NewLogger creates a structured slog logger.
//
// An empty level defaults to "info"; an empty format defaults to "json".
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(Redact(a.Value.String()))
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}
	return slog.New(handler)
}
