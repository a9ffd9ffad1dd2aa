// Package api exposes the HTTP surface. Routes split into a public group
// (health, metrics) and a protected group behind the auth and tenant
// middleware; a handler on the protected group can pull a verified
// TenantContext out of the request context unconditionally.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slateboards/slate/pkg/apikeys"
	"github.com/slateboards/slate/pkg/boards"
	"github.com/slateboards/slate/pkg/httputil"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/middleware"
	"github.com/slateboards/slate/pkg/observability"
	"github.com/slateboards/slate/pkg/orgs"
	"github.com/slateboards/slate/pkg/perm"
)

// Server holds the HTTP router and the services the handlers call.
type Server struct {
	router   *mux.Router
	boards   *boards.Service
	orgs     *orgs.PostgresService
	checker  *perm.Checker
	schemes  *perm.SchemeStore
	requests *perm.RequestStore
	keys     *apikeys.Store
	logger   *observability.Logger
}

// Deps carries everything the server needs.
type Deps struct {
	Boards   *boards.Service
	Orgs     *orgs.PostgresService
	Checker  *perm.Checker
	Schemes  *perm.SchemeStore
	Requests *perm.RequestStore
	Keys     *apikeys.Store
	Auth     *middleware.AuthMiddleware
	Tenant   *middleware.TenantMiddleware
	Health   http.Handler
	Logger   *observability.Logger
}

// NewServer creates the API server and mounts all routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		boards:   deps.Boards,
		orgs:     deps.Orgs,
		checker:  deps.Checker,
		schemes:  deps.Schemes,
		requests: deps.Requests,
		keys:     deps.Keys,
		logger:   deps.Logger,
	}

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(deps.Logger))
	s.router.Use(httputil.RecoveryMiddleware)

	s.router.Handle("/healthz", deps.Health).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(deps.Auth.Handler)
	api.Use(deps.Tenant.Handler)

	api.HandleFunc("/boards", s.listBoards).Methods("GET")
	api.HandleFunc("/boards", s.createBoard).Methods("POST")
	api.HandleFunc("/boards/{boardID}", s.getBoard).Methods("GET")
	api.HandleFunc("/boards/{boardID}", s.updateBoard).Methods("PUT")
	api.HandleFunc("/boards/{boardID}", s.deleteBoard).Methods("DELETE")
	api.HandleFunc("/boards/{boardID}/lists", s.createList).Methods("POST")

	api.HandleFunc("/lists/{listID}/cards", s.createCard).Methods("POST")
	api.HandleFunc("/lists/{listID}/reorder", s.reorderCards).Methods("POST")
	api.HandleFunc("/cards/{cardID}", s.updateCard).Methods("PUT")
	api.HandleFunc("/cards/{cardID}", s.deleteCard).Methods("DELETE")

	api.HandleFunc("/cards/{cardID}/attachments", s.listAttachments).Methods("GET")
	api.HandleFunc("/cards/{cardID}/attachments", s.createAttachment).Methods("POST")
	api.HandleFunc("/cards/{cardID}/attachments/{attachmentID}", s.downloadAttachment).Methods("GET")

	api.HandleFunc("/ai/generate", s.generateAI).Methods("POST")

	api.HandleFunc("/schemes", s.listSchemes).Methods("GET")
	api.HandleFunc("/schemes", s.createScheme).Methods("POST")
	api.HandleFunc("/schemes/{schemeID}", s.getScheme).Methods("GET")
	api.HandleFunc("/schemes/{schemeID}", s.deleteScheme).Methods("DELETE")
	api.HandleFunc("/schemes/{schemeID}/entries", s.setSchemeEntry).Methods("PUT")
	api.HandleFunc("/boards/{boardID}/scheme", s.attachScheme).Methods("PUT")

	api.HandleFunc("/membership-requests", s.listMembershipRequests).Methods("GET")
	api.HandleFunc("/membership-requests", s.createMembershipRequest).Methods("POST")
	api.HandleFunc("/membership-requests/{requestID}/approve", s.approveMembershipRequest).Methods("POST")
	api.HandleFunc("/membership-requests/{requestID}/reject", s.rejectMembershipRequest).Methods("POST")
	api.HandleFunc("/membership-requests/{requestID}/withdraw", s.withdrawMembershipRequest).Methods("POST")

	api.HandleFunc("/api-keys", s.listAPIKeys).Methods("GET")
	api.HandleFunc("/api-keys", s.createAPIKey).Methods("POST")
	api.HandleFunc("/api-keys/{keyID}", s.revokeAPIKey).Methods("DELETE")

	return s
}

// Router exposes the configured router for the HTTP server.
func (s *Server) Router() http.Handler {
	return s.router
}

// tenant pulls the TenantContext the middleware stored. The protected
// subrouter guarantees it exists; the nil check guards against a route wired
// outside the middleware by mistake.
func (s *Server) tenant(w http.ResponseWriter, r *http.Request) (*identity.TenantContext, bool) {
	tc := identity.FromContext(r.Context())
	if tc == nil {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return nil, false
	}
	return tc, true
}
