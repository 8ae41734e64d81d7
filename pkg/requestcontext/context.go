// Package requestcontext provides HTTP-independent accessors for request-scoped
// values. Middleware sets them; services and the dispatcher read them without
// importing net/http.
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//	caller := requestcontext.Caller(ctx)
package requestcontext

import (
	"context"
	"time"

	"infosync/pkg/domain"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	callerKey      struct{}
)

// RequestID retrieves the correlation id from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time, falling back to time.Now() for
// workers and tests that never went through the middleware.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Caller returns the peer system that authenticated the inbound call, or ""
// when service tokens are disabled.
func Caller(ctx context.Context) domain.System {
	if sys, ok := ctx.Value(callerKey{}).(domain.System); ok {
		return sys
	}
	return ""
}

// WithCaller records the authenticated peer system.
func WithCaller(ctx context.Context, sys domain.System) context.Context {
	return context.WithValue(ctx, callerKey{}, sys)
}
