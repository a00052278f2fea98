// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the runtime.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
	SpanID        LogContextKey = "span_id"
	TraceID       LogContextKey = "trace_id"
)

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableCorrelationID   bool
	EnableGatewayLogging  bool
	EnableWSLogging       bool
	EnableReconcileEvents bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableCorrelationID:   true,
	EnableGatewayLogging:  true,
	EnableWSLogging:       true,
	EnableReconcileEvents: true,
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id := ctx.Value(CorrelationID); id != nil {
		return id.(string)
	}
	return ""
}

// GatewayLogger provides structured logging for remote operations.
type GatewayLogger struct {
	transport string
	logger    *Logger
}

// NewGatewayLogger creates a GatewayLogger for the given transport ("http" or "ws").
func NewGatewayLogger(transport string) *GatewayLogger {
	return &GatewayLogger{
		transport: transport,
		logger:    GlobalLogger,
	}
}

// LogOperation logs a remote query or mutation dispatch.
func (l *GatewayLogger) LogOperation(ctx context.Context, operation string, fields map[string]interface{}) {
	if !Config.EnableGatewayLogging {
		return
	}
	attrs := []any{
		slog.String("transport", l.transport),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "gateway operation", attrs...)
}

// LogSnapshot logs a subscription snapshot arrival.
func (l *GatewayLogger) LogSnapshot(ctx context.Context, operation string, fields map[string]interface{}) {
	if !Config.EnableGatewayLogging {
		return
	}
	attrs := []any{
		slog.String("transport", l.transport),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "subscription snapshot", attrs...)
}

// LogError logs a failed remote operation.
func (l *GatewayLogger) LogError(ctx context.Context, err error, operation string) {
	if !Config.EnableGatewayLogging {
		return
	}
	l.logger.ErrorContext(ctx, "gateway error",
		slog.String("transport", l.transport),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
}

// ReconcileLogger provides structured logging for optimistic cache events.
type ReconcileLogger struct {
	logger *Logger
}

// NewReconcileLogger creates a ReconcileLogger.
func NewReconcileLogger() *ReconcileLogger {
	return &ReconcileLogger{logger: GlobalLogger}
}

// LogApplied logs a tentative edit applied to the cache.
func (l *ReconcileLogger) LogApplied(ctx context.Context, kind, postID, userID string) {
	if !Config.EnableReconcileEvents {
		return
	}
	l.logger.InfoContext(ctx, "optimistic edit applied",
		slog.String("kind", kind),
		slog.String("post_id", postID),
		slog.String("user_id", userID),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// LogConfirmed logs the remote confirmation of a tentative edit.
func (l *ReconcileLogger) LogConfirmed(ctx context.Context, kind, postID string) {
	if !Config.EnableReconcileEvents {
		return
	}
	l.logger.InfoContext(ctx, "optimistic edit confirmed",
		slog.String("kind", kind),
		slog.String("post_id", postID),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// LogRolledBack logs a rollback after a confirmed remote failure.
func (l *ReconcileLogger) LogRolledBack(ctx context.Context, kind, postID string, err error) {
	if !Config.EnableReconcileEvents {
		return
	}
	l.logger.WarnContext(ctx, "optimistic edit rolled back",
		slog.String("kind", kind),
		slog.String("post_id", postID),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// WSLogger provides structured logging for WebSocket push connections.
type WSLogger struct {
	hubName string
	logger  *Logger
}

// NewWSLogger creates a new WSLogger for the given hub.
func NewWSLogger(hubName string) *WSLogger {
	return &WSLogger{
		hubName: hubName,
		logger:  GlobalLogger,
	}
}

// LogConnect logs a WebSocket connection event.
func (l *WSLogger) LogConnect(ctx context.Context, userID string) {
	if !Config.EnableWSLogging {
		return
	}
	l.logger.InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hubName),
		slog.String("user_id", userID),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID string, reason string) {
	if !Config.EnableWSLogging {
		return
	}
	l.logger.InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hubName),
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// LogError logs a WebSocket error event.
func (l *WSLogger) LogError(ctx context.Context, userID string, err error, eventType string) {
	if !Config.EnableWSLogging {
		return
	}
	l.logger.ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hubName),
		slog.String("user_id", userID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}
