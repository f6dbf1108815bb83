package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Config holds logger configuration
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
}

// Logger wraps slog.Logger with service-scoped base attributes and
// convenience helpers for the logging patterns used across the service.
type Logger struct {
	*slog.Logger
	config Config
}

// NewLogger creates a JSON logger with service/environment/version attached
// to every record.
func NewLogger(config Config) *Logger {
	level := parseLevel(config.Level)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	})

	logger := slog.New(handler).With(
		"service", config.ServiceName,
		"environment", config.Environment,
		"version", config.Version,
	)

	return &Logger{
		Logger: logger,
		config: config,
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithError returns a logger with the error attached
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With("error", err.Error()),
		config: l.config,
	}
}

// WithFields returns a logger with additional fields attached
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
	}
}

// WithCorrelationID returns a logger with the correlation id attached
func (l *Logger) WithCorrelationID(correlationID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("correlationId", correlationID),
		config: l.config,
	}
}

// BusinessEvent describes a domain-significant occurrence worth logging in a
// queryable shape.
type BusinessEvent struct {
	EventType string
	OrderID   string
	WaveID    string
	ActorID   string
	Details   map[string]interface{}
}

// LogBusinessEvent logs a business event with a consistent attribute layout
func (l *Logger) LogBusinessEvent(ctx context.Context, event BusinessEvent) {
	args := []interface{}{
		"eventType", event.EventType,
	}
	if event.OrderID != "" {
		args = append(args, "orderId", event.OrderID)
	}
	if event.WaveID != "" {
		args = append(args, "waveId", event.WaveID)
	}
	if event.ActorID != "" {
		args = append(args, "actorId", event.ActorID)
	}
	for k, v := range event.Details {
		args = append(args, k, v)
	}
	l.InfoContext(ctx, "business event", args...)
}

// LogHTTPRequest logs a completed HTTP request
func (l *Logger) LogHTTPRequest(method, path string, status int, duration time.Duration, attrs ...interface{}) {
	args := []interface{}{
		"method", method,
		"path", path,
		"status", status,
		"durationMs", float64(duration.Microseconds()) / 1000.0,
	}
	args = append(args, attrs...)

	if status >= 500 {
		l.Error("http request", args...)
	} else if status >= 400 {
		l.Warn("http request", args...)
	} else {
		l.Info("http request", args...)
	}
}

// SetAsDefault installs this logger as the process-wide slog default
func (l *Logger) SetAsDefault() {
	slog.SetDefault(l.Logger)
}
