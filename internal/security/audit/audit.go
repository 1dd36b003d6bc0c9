package audit

import (
	"context"
	"log/slog"
	"time"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying the request id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, or ""
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Logger writes audit records. A nil *Logger discards them.
type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit")), now: time.Now}
}

func (al *Logger) LogAction(ctx context.Context, principalID, action, resource, resourceID, outcome, details string) {
	if al == nil {
		return
	}
	attrs := []any{
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("principal_id", principalID),
		slog.String("outcome", outcome),
		slog.String("request_id", RequestID(ctx)),
		slog.Time("timestamp", al.now()),
	}
	if resourceID != "" {
		attrs = append(attrs, slog.String("resource_id", resourceID))
	}
	if details != "" {
		attrs = append(attrs, slog.String("details", details))
	}
	al.logger.InfoContext(ctx, "audit", attrs...)
}

func (al *Logger) LogPlotChange(ctx context.Context, principalID, action, plotID, outcome string) {
	al.LogAction(ctx, principalID, action, "plot", plotID, outcome, "")
}

func (al *Logger) LogUserChange(ctx context.Context, principalID, action, userID, outcome string) {
	al.LogAction(ctx, principalID, action, "user", userID, outcome, "")
}

func (al *Logger) LogSession(ctx context.Context, principalID, action, outcome string) {
	al.LogAction(ctx, principalID, action, "session", "", outcome, "")
}

func (al *Logger) LogDenied(ctx context.Context, principalID, resource, resourceID, reason string) {
	al.LogAction(ctx, principalID, "access_denied", resource, resourceID, "denied", reason)
}
