// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware and handlers set values; services and stores read them without
// importing net/http.
//
//	wallet := requestcontext.Wallet(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	walletKey      struct{}
	authMethodKey  struct{}
	clientIPKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyWallet      = walletKey{}
	ContextKeyAuthMethod  = authMethodKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Authenticated wallet
// -----------------------------------------------------------------------------

// Wallet returns the authenticated wallet address (lower-cased hex) or "".
func Wallet(ctx context.Context) string {
	if w, ok := ctx.Value(ContextKeyWallet).(string); ok {
		return w
	}
	return ""
}

// AuthMethod returns how the wallet was authenticated ("passport" or "eoa").
func AuthMethod(ctx context.Context) string {
	if m, ok := ctx.Value(ContextKeyAuthMethod).(string); ok {
		return m
	}
	return ""
}

// WithWallet injects the authenticated wallet and the method that proved it.
func WithWallet(ctx context.Context, wallet, method string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyWallet, wallet)
	return context.WithValue(ctx, ContextKeyAuthMethod, method)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Phase resolution for a request uses this single instant so every check in
// one admission sees the same clock.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
