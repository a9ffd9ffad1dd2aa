package api

import (
	"net/http"
	"strings"

	"github.com/slateboards/slate/pkg/httputil"
	"github.com/slateboards/slate/pkg/orgs"
	"github.com/slateboards/slate/pkg/perm"
)

type schemeRequest struct {
	Name    string             `json:"name"`
	Entries []perm.SchemeEntry `json:"entries"`
}

type attachSchemeRequest struct {
	SchemeID int64 `json:"scheme_id"`
}

func (s *Server) listSchemes(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}

	schemes, err := s.schemes.ListSchemes(r.Context(), tc)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, schemes)
}

func (s *Server) getScheme(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	schemeID, ok := httputil.ParsePathInt64OrError(w, r, "schemeID")
	if !ok {
		return
	}

	scheme, err := s.schemes.GetScheme(r.Context(), tc, schemeID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, scheme)
}

func (s *Server) createScheme(w http.ResponseWriter, r *http.Request) {
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

	var req schemeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	scheme, err := s.schemes.CreateScheme(r.Context(), tc, req.Name, req.Entries)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, scheme)
}

func (s *Server) setSchemeEntry(w http.ResponseWriter, r *http.Request) {
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
	schemeID, ok := httputil.ParsePathInt64OrError(w, r, "schemeID")
	if !ok {
		return
	}

	var entry perm.SchemeEntry
	if !httputil.ParseJSONOrError(w, r, &entry) {
		return
	}

	if err := s.schemes.SetEntry(r.Context(), tc, schemeID, entry); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) deleteScheme(w http.ResponseWriter, r *http.Request) {
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
	schemeID, ok := httputil.ParsePathInt64OrError(w, r, "schemeID")
	if !ok {
		return
	}

	if err := s.schemes.DeleteScheme(r.Context(), tc, schemeID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) attachScheme(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	if err := s.checker.GuardWrite(tc); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	boardID, ok := httputil.ParsePathInt64OrError(w, r, "boardID")
	if !ok {
		return
	}
	if err := s.checker.Can(r.Context(), tc, boardID, perm.PermSchemeManage); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	var req attachSchemeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.schemes.AttachToBoard(r.Context(), tc, boardID, req.SchemeID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
