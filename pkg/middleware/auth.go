package middleware

import (
	"net/http"
	"strings"

	"github.com/slateboards/slate/pkg/apikeys"
	"github.com/slateboards/slate/pkg/contextkeys"
	"github.com/slateboards/slate/pkg/httputil"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/observability"
)

// Assertion headers set by the auth proxy. The proxy strips any copies the
// client sent, so their presence means the proxy verified the session.
const (
	HeaderUserID = "X-Slate-User"
	HeaderOrgID  = "X-Slate-Org"
	HeaderRole   = "X-Slate-Role"
)

// authInput is what the auth middleware hands to the tenant middleware: one
// of the two credential shapes, already syntactically validated.
type authInput struct {
	assertion *identity.Assertion
	key       *apikeys.Key
}

// AuthMiddleware extracts and validates the request's credential.
type AuthMiddleware struct {
	keys    *apikeys.Store
	metrics *observability.Metrics
}

// NewAuthMiddleware creates the authentication middleware.
func NewAuthMiddleware(keys *apikeys.Store, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{keys: keys, metrics: metrics}
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				m.fail(w, "invalid_header")
				return
			}

			key, err := m.keys.Validate(r.Context(), parts[1])
			if err != nil {
				m.fail(w, "invalid_key")
				return
			}

			ctx := contextkeys.WithAuth(r.Context(), &authInput{key: key})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		userID := r.Header.Get(HeaderUserID)
		orgID := r.Header.Get(HeaderOrgID)
		if userID == "" || orgID == "" {
			m.fail(w, "missing_credentials")
			return
		}

		assertion := &identity.Assertion{
			UserID: userID,
			OrgID:  orgID,
			Role:   r.Header.Get(HeaderRole),
		}
		ctx := contextkeys.WithAuth(r.Context(), &authInput{assertion: assertion})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) fail(w http.ResponseWriter, kind string) {
	if m.metrics != nil {
		m.metrics.AuthFailures.WithLabelValues(kind).Inc()
	}
	httputil.WriteErrorMessage(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
}
