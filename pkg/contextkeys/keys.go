// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *identity.Assertion
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: tenant middleware, all protected endpoints
	AuthKey Key = "auth_assertion"

	// TenantKey contains *identity.TenantContext
	// Set by: middleware.TenantMiddleware after identity resolution
	// Required by: data-access facade construction, permission checks
	TenantKey Key = "tenant_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	LoggerKey Key = "logger"
)

// WithAuth adds the inbound auth assertion to the context
func WithAuth(ctx context.Context, assertion interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, assertion)
}

// WithTenant adds the resolved tenant context to the context
func WithTenant(ctx context.Context, tc interface{}) context.Context {
	return context.WithValue(ctx, TenantKey, tc)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
