package api

import (
	"net/http"

	"github.com/slateboards/slate/pkg/httputil"
	"github.com/slateboards/slate/pkg/orgs"
)

type membershipRequestBody struct {
	BoardID *int64 `json:"board_id,omitempty"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

func (s *Server) listMembershipRequests(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	if err := s.checker.RequireOrgRole(tc, orgs.RoleAdmin); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	requests, err := s.requests.ListPending(r.Context(), tc)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, requests)
}

func (s *Server) createMembershipRequest(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	if err := s.checker.GuardWrite(tc); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	var body membershipRequestBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	role := orgs.Role(body.Role)
	switch role {
	case orgs.RoleMember, orgs.RoleViewer, orgs.RoleAdmin:
	case "":
		role = orgs.RoleMember
	default:
		httputil.WriteBadRequest(w, "invalid role")
		return
	}

	request, err := s.requests.CreateRequest(r.Context(), tc, body.BoardID, role, body.Message)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, request)
}

func (s *Server) approveMembershipRequest(w http.ResponseWriter, r *http.Request) {
	s.decideMembershipRequest(w, r, true)
}

func (s *Server) rejectMembershipRequest(w http.ResponseWriter, r *http.Request) {
	s.decideMembershipRequest(w, r, false)
}

func (s *Server) decideMembershipRequest(w http.ResponseWriter, r *http.Request, approve bool) {
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
	requestID, ok := httputil.ParsePathInt64OrError(w, r, "requestID")
	if !ok {
		return
	}

	var err error
	if approve {
		err = s.requests.Approve(r.Context(), tc, requestID)
	} else {
		err = s.requests.Reject(r.Context(), tc, requestID)
	}
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) withdrawMembershipRequest(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	requestID, ok := httputil.ParsePathInt64OrError(w, r, "requestID")
	if !ok {
		return
	}

	if err := s.requests.Withdraw(r.Context(), tc, requestID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
