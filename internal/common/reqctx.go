package common

import (
	"context"
	"time"
)

// RequestContext holds per-request metadata set by the HTTP middleware.
// Absent (nil) for background work such as scheduled refreshes.
type RequestContext struct {
	CorrelationID string
	Received      time.Time
}

type contextKey int

const requestContextKey contextKey = iota

// WithRequestContext stores a RequestContext in the context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// RequestContextFromContext retrieves the RequestContext from context, or nil if absent.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// ResolveCorrelationID returns the request's correlation ID, or "background"
// when the work was not started by a request.
func ResolveCorrelationID(ctx context.Context) string {
	if rc := RequestContextFromContext(ctx); rc != nil && rc.CorrelationID != "" {
		return rc.CorrelationID
	}
	return "background"
}
