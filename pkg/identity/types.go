// Package identity turns an external authentication assertion into a verified
// tenant context. It does not implement the authentication protocol itself:
// the inbound assertion is opaque beyond three claims (external user id,
// external org id, external role string), already verified upstream.
package identity

import (
	"context"

	"github.com/slateboards/slate/pkg/contextkeys"
	"github.com/slateboards/slate/pkg/orgs"
)

// Assertion carries the three claims the core consumes from the
// authentication layer. Empty UserID or OrgID means unauthenticated.
type Assertion struct {
	UserID string
	OrgID  string
	Role   string
}

// MembershipInfo is the membership slice of a tenant context.
type MembershipInfo struct {
	Role     orgs.Role
	IsActive bool
}

// TenantContext is the request-scoped, verified tenant identity. It is
// constructed once per request and memoized for the request lifetime; it is
// never persisted. A TenantContext only exists for an active membership.
type TenantContext struct {
	UserID     int64
	ExternalID string
	OrgID      string
	OrgRole    orgs.Role
	Membership MembershipInfo
}

// FromContext retrieves a memoized tenant context, if any.
func FromContext(ctx context.Context) *TenantContext {
	tc, ok := ctx.Value(contextkeys.TenantKey).(*TenantContext)
	if !ok {
		return nil
	}
	return tc
}

// WithContext memoizes a tenant context for the rest of the request.
func WithContext(ctx context.Context, tc *TenantContext) context.Context {
	return contextkeys.WithTenant(ctx, tc)
}

// Profile holds the display attributes fetched from the external identity
// provider when a user record is provisioned lazily.
type Profile struct {
	ExternalID string
	Email      string
	Name       string
	ImageURL   string
}

// Provider fetches display attributes for an externally issued user id.
type Provider interface {
	FetchProfile(ctx context.Context, externalUserID string) (*Profile, error)
}
