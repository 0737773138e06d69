// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ConversationIDKey is the context key for the conversation being processed
	ConversationIDKey contextKey = "conversation_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if conversationID, ok := ctx.Value(ConversationIDKey).(string); ok && conversationID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("conversation_id", conversationID))}
	}

	return newLogger
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitDrop logs an inbound message dropped because the sender is too fast.
func (l *Logger) RateLimitDrop(identity string) {
	l.Debug("rate_limit_drop",
		slog.String("identity", identity),
	)
}

// RateLimitExceeded logs an HTTP request rejected by the per-IP limiter.
func (l *Logger) RateLimitExceeded(ip, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", ip),
		slog.String("path", path),
	)
}

// QueueDrop logs an inbound message dropped because the identity's queue is full.
func (l *Logger) QueueDrop(identity string, depth int) {
	l.Warn("queue_drop",
		slog.String("identity", identity),
		slog.Int("depth", depth),
	)
}

// RetryWait logs a retryable upstream failure and the wait before the next attempt.
func (l *Logger) RetryWait(status, attempt, maxAttempts int, wait time.Duration) {
	l.Warn("retryable_upstream_error",
		slog.Int("status", status),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.Duration("wait", wait),
	)
}
