package middleware

import (
	"context"
	"net/http"

	"github.com/slateboards/slate/pkg/apikeys"
	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/contextkeys"
	"github.com/slateboards/slate/pkg/httputil"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/observability"
	"github.com/slateboards/slate/pkg/orgs"
)

// TenantMiddleware resolves the authenticated credential into a
// TenantContext exactly once per request.
type TenantMiddleware struct {
	resolver *identity.Resolver
	orgs     *orgs.PostgresService

	// autoProvision creates an organization row the first time an asserted
	// org id appears, mirroring an org created in the upstream identity
	// provider before any webhook synced it.
	autoProvision bool
}

// NewTenantMiddleware creates the tenant resolution middleware.
func NewTenantMiddleware(resolver *identity.Resolver, orgService *orgs.PostgresService, autoProvision bool) *TenantMiddleware {
	return &TenantMiddleware{resolver: resolver, orgs: orgService, autoProvision: autoProvision}
}

// Handler wraps an HTTP handler with tenant resolution.
func (m *TenantMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		input, ok := ctx.Value(contextkeys.AuthKey).(*authInput)
		if !ok || input == nil {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		var tc *identity.TenantContext
		var err error

		switch {
		case input.key != nil:
			tc, err = m.resolver.ResolveServiceKey(ctx, input.key.OrgID, input.key.CreatedBy, !input.key.HasScope(apikeys.ScopeWrite))
		case input.assertion != nil:
			tc, err = m.resolveAssertion(ctx, input.assertion)
		default:
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.WithContext(ctx, tc)))
	})
}

// resolveAssertion resolves an interactive credential. With auto-provision
// on, an organization the identity provider asserts but this service has
// never seen is created on the spot, and a user whose membership the
// provider vouches for via the role claim is enrolled before the retry. The
// role claim comes from the trusted auth proxy, never from the client.
func (m *TenantMiddleware) resolveAssertion(ctx context.Context, assertion *identity.Assertion) (*identity.TenantContext, error) {
	if m.autoProvision {
		if _, err := m.orgs.EnsureOrganization(ctx, assertion.OrgID, assertion.OrgID); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("failed to auto-provision organization")
		}
	}

	tc, err := m.resolver.Resolve(ctx, *assertion)
	if err == nil || !m.autoProvision || assertion.Role == "" || !apperrors.IsForbidden(err) {
		return tc, err
	}

	if syncErr := m.resolver.SyncMembership(ctx, assertion); syncErr != nil {
		observability.FromContext(ctx).WithError(syncErr).Warn("failed to sync membership from assertion")
		return nil, err
	}
	return m.resolver.Resolve(ctx, *assertion)
}
