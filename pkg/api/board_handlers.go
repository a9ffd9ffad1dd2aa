package api

import (
	"net/http"
	"strings"

	"github.com/slateboards/slate/pkg/httputil"
)

type boardRequest struct {
	Title string `json:"title"`
}

type cardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type reorderRequest struct {
	CardIDs []int64 `json:"card_ids"`
}

func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}

	result, err := s.boards.ListBoards(r.Context(), tc)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	boardID, ok := httputil.ParsePathInt64OrError(w, r, "boardID")
	if !ok {
		return
	}

	board, err := s.boards.GetBoard(r.Context(), tc, boardID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, board)
}

func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req boardRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	board, err := s.boards.CreateBoard(r.Context(), tc, req.Title)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, board)
}

func (s *Server) updateBoard(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	boardID, ok := httputil.ParsePathInt64OrError(w, r, "boardID")
	if !ok {
		return
	}

	var req boardRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	if err := s.boards.UpdateBoard(r.Context(), tc, boardID, req.Title); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	boardID, ok := httputil.ParsePathInt64OrError(w, r, "boardID")
	if !ok {
		return
	}

	if err := s.boards.DeleteBoard(r.Context(), tc, boardID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) createList(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	boardID, ok := httputil.ParsePathInt64OrError(w, r, "boardID")
	if !ok {
		return
	}

	var req boardRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	list, err := s.boards.CreateList(r.Context(), tc, boardID, req.Title)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, list)
}

func (s *Server) createCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	listID, ok := httputil.ParsePathInt64OrError(w, r, "listID")
	if !ok {
		return
	}

	var req cardRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	card, err := s.boards.CreateCard(r.Context(), tc, listID, req.Title, req.Description)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, card)
}

func (s *Server) updateCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	cardID, ok := httputil.ParsePathInt64OrError(w, r, "cardID")
	if !ok {
		return
	}

	var req cardRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	if err := s.boards.UpdateCard(r.Context(), tc, cardID, req.Title, req.Description); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) deleteCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	cardID, ok := httputil.ParsePathInt64OrError(w, r, "cardID")
	if !ok {
		return
	}

	if err := s.boards.DeleteCard(r.Context(), tc, cardID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) reorderCards(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	listID, ok := httputil.ParsePathInt64OrError(w, r, "listID")
	if !ok {
		return
	}

	var req reorderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.CardIDs) == 0 {
		httputil.WriteBadRequest(w, "card_ids is required")
		return
	}

	if err := s.boards.ReorderCards(r.Context(), tc, listID, req.CardIDs); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) generateAI(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}

	if err := s.boards.RecordAICall(r.Context(), tc); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "accepted"})
}
