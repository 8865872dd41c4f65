// Package ctxutil provides shared context key accessors.
//
// Both server and mcp read the request id and the authenticated caller from
// the context that server's middleware populates. They import ctxutil instead
// of each other.
package ctxutil

import (
	"context"

	"github.com/ashita-ai/tsunagi/internal/auth"
)

type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyClaims    contextKey = "claims"
)

// WithRequestID returns a new context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context. API-key callers
// and unauthenticated deployments have none.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// FunctionAllowed reports whether the caller in ctx may invoke function.
func FunctionAllowed(ctx context.Context, function string) bool {
	claims := ClaimsFromContext(ctx)
	return claims == nil || claims.Allows(function)
}
