// Package reqctx carries per-request identity on a context.
package reqctx

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	clientIPKey  = contextKey{"client_ip"}
	requestIDKey = contextKey{"request_id"}
)

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user id and true if set; otherwise "", false.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// WithClientIP returns a context carrying the caller's address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the caller's address, or "unknown".
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id, or "".
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// Detach returns a background context with the request identity and trace span of ctx.
// Work started from it outlives the request and any transaction on ctx.
func Detach(ctx context.Context) context.Context {
	out := trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
	if v, ok := ctx.Value(userIDKey).(string); ok {
		out = WithUserID(out, v)
	}
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		out = WithClientIP(out, v)
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		out = WithRequestID(out, v)
	}
	return out
}
