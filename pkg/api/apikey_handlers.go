package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/slateboards/slate/pkg/apikeys"
	"github.com/slateboards/slate/pkg/httputil"
	"github.com/slateboards/slate/pkg/orgs"
)

type apiKeyRequest struct {
	Name    string   `json:"name"`
	Scopes  []string `json:"scopes"`
	TTLDays int      `json:"ttl_days"`
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	if err := s.checker.RequireOrgRole(tc, orgs.RoleAdmin); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	keys, err := s.keys.List(r.Context(), tc.OrgID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, keys)
}

func (s *Server) createAPIKey(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	if err := s.checker.GuardWrite(tc); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if err := s.checker.RequireOrgRole(tc, orgs.RoleAdmin); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	var req apiKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{apikeys.ScopeRead}
	}
	for _, scope := range scopes {
		if scope != apikeys.ScopeRead && scope != apikeys.ScopeWrite {
			httputil.WriteBadRequest(w, "unknown scope: "+scope)
			return
		}
	}

	var ttl time.Duration
	if req.TTLDays > 0 {
		ttl = time.Duration(req.TTLDays) * 24 * time.Hour
	}

	key, err := s.keys.Create(r.Context(), tc.OrgID, req.Name, scopes, tc.UserID, ttl)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, key)
}

func (s *Server) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	if err := s.checker.GuardWrite(tc); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if err := s.checker.RequireOrgRole(tc, orgs.RoleAdmin); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	keyID, ok := httputil.ParsePathInt64OrError(w, r, "keyID")
	if !ok {
		return
	}

	if err := s.keys.Revoke(r.Context(), tc.OrgID, keyID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
