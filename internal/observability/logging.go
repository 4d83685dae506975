// Package observability provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the orchestration core.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger provides structured logging with run correlation and sensitive data
// redaction.
//
// Built on log/slog:
//   - Configurable level (debug, info, warn, error)
//   - JSON output for production, text for development
//   - run_id / thread_id / assistant_id / user_id correlation from context
//   - Redaction of API keys and bearer tokens before emission
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig configures logger construction.
type LogConfig struct {
	// Level sets the minimum level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" or "text". JSON is the production default.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	// RedactPatterns are additional regexes applied on top of the default
	// secret patterns.
	RedactPatterns []string
}

// ContextKey is the type for context keys carrying correlation fields.
type ContextKey string

const (
	// RunIDKey carries the current run id.
	RunIDKey ContextKey = "run_id"

	// ThreadIDKey carries the current thread id.
	ThreadIDKey ContextKey = "thread_id"

	// AssistantIDKey carries the current assistant id.
	AssistantIDKey ContextKey = "assistant_id"

	// UserIDKey carries the requesting user id.
	UserIDKey ContextKey = "user_id"
)

// DefaultRedactPatterns cover the API key shapes this core handles.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-.]{16,})`,
	`sk-[a-zA-Z0-9]{20,}`,
	`ad_[a-zA-Z0-9]{16,}`,
}

// NewLogger creates a structured logger. Zero-value config gets info-level
// JSON output on stdout.
func NewLogger(config LogConfig) *Logger {
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

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(config.Format) == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// NopLogger returns a logger that discards everything. Useful in tests.
func NopLogger() *Logger {
	return NewLogger(LogConfig{Output: io.Discard, Level: "error"})
}

// WithRun returns a logger with run correlation fields attached to every
// record.
func (l *Logger) WithRun(runID, threadID string) *Logger {
	return &Logger{
		logger:  l.logger.With(slog.String("run_id", runID), slog.String("thread_id", threadID)),
		redacts: l.redacts,
	}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error-level message with optional key-value pairs.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redactString(msg)

	redacted := make([]any, len(args))
	for i, arg := range args {
		redacted[i] = l.redactValue(arg)
	}

	for _, key := range []ContextKey{RunIDKey, ThreadIDKey, AssistantIDKey, UserIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			redacted = append(redacted, string(key), v)
		}
	}

	l.logger.Log(ctx, level, msg, redacted...)
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func (l *Logger) redactValue(v any) any {
	switch t := v.(type) {
	case string:
		return l.redactString(t)
	case error:
		return l.redactString(t.Error())
	default:
		return v
	}
}
