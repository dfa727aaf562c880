package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// StructuredLogger provides enhanced structured logging capabilities
type StructuredLogger struct {
	*slog.Logger
	serviceName    string
	serviceVersion string
	environment    string
	component      string
}

// Config holds configuration for the structured logger
type Config struct {
	Level       LogLevel `json:"level"`
	Format      string   `json:"format"` // "json" or "text"
	ServiceName string   `json:"service_name"`
	Version     string   `json:"version"`
	Environment string   `json:"environment"`
	AddSource   bool     `json:"add_source"`
	TimeFormat  string   `json:"time_format"`
}

// NewStructuredLogger creates a new structured logger instance
func NewStructuredLogger(config Config) *StructuredLogger {
	level := parseLevel(config.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	if config.TimeFormat != "" {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   slog.TimeKey,
					Value: slog.StringValue(a.Value.Time().Format(config.TimeFormat)),
				}
			}
			return a
		}
	}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", config.ServiceName,
		"version", config.Version,
		"environment", config.Environment,
	)

	return &StructuredLogger{
		Logger:         logger,
		serviceName:    config.ServiceName,
		serviceVersion: config.Version,
		environment:    config.Environment,
	}
}

// WithComponent creates a logger with a specific component context
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{
		Logger:         sl.Logger.With("component", component),
		serviceName:    sl.serviceName,
		serviceVersion: sl.serviceVersion,
		environment:    sl.environment,
		component:      component,
	}
}

// WithRequestID creates a logger scoped to one request
func (sl *StructuredLogger) WithRequestID(requestID string) *StructuredLogger {
	return &StructuredLogger{
		Logger:         sl.Logger.With("request_id", requestID),
		serviceName:    sl.serviceName,
		serviceVersion: sl.serviceVersion,
		environment:    sl.environment,
		component:      sl.component,
	}
}

// LogOperation logs the start and completion of an operation
func (sl *StructuredLogger) LogOperation(operationName string, fn func() error) error {
	start := time.Now()

	sl.Info("Operation started", "operation", operationName)

	err := fn()
	duration := time.Since(start)

	if err != nil {
		sl.Error("Operation failed",
			"operation", operationName,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
	} else {
		sl.Info("Operation completed",
			"operation", operationName,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return err
}

// LogHTTPRequest logs HTTP request details
func (sl *StructuredLogger) LogHTTPRequest(method, path string, statusCode int, duration time.Duration, extraAttrs ...any) {
	attrs := []any{
		"http_method", method,
		"http_path", path,
		"http_status", statusCode,
		"http_duration_ms", duration.Milliseconds(),
	}
	attrs = append(attrs, extraAttrs...)

	switch {
	case statusCode >= 500:
		sl.Error("HTTP request processed", attrs...)
	case statusCode >= 400:
		sl.Warn("HTTP request processed", attrs...)
	default:
		sl.Info("HTTP request processed", attrs...)
	}
}

// parseLevel converts string level to slog.Level
func parseLevel(level LogLevel) slog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultConfig returns a default logging configuration
func DefaultConfig(serviceName, version, environment string) Config {
	return Config{
		Level:       LevelInfo,
		Format:      "json",
		ServiceName: serviceName,
		Version:     version,
		Environment: environment,
		TimeFormat:  time.RFC3339,
	}
}

// NewLogger creates a simple text logger, mostly for tests and tools
func NewLogger(serviceName string, level string) *StructuredLogger {
	return NewStructuredLogger(Config{
		Level:       LogLevel(level),
		Format:      "text",
		ServiceName: serviceName,
		Version:     "dev",
		Environment: "development",
	})
}
