package api

import (
	"io"
	"net/http"

	"github.com/slateboards/slate/pkg/httputil"
)

// maxAttachmentBytes caps a single upload body.
const maxAttachmentBytes = 25 << 20 // 25 MiB

func (s *Server) listAttachments(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	cardID, ok := httputil.ParsePathInt64OrError(w, r, "cardID")
	if !ok {
		return
	}

	attachments, err := s.boards.ListAttachments(r.Context(), tc, cardID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, attachments)
}

func (s *Server) createAttachment(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	cardID, ok := httputil.ParsePathInt64OrError(w, r, "cardID")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes)
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		httputil.WriteBadRequest(w, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment, err := s.boards.CreateAttachment(r.Context(), tc, cardID, header.Filename, contentType, header.Size, file)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, attachment)
}

func (s *Server) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	cardID, ok := httputil.ParsePathInt64OrError(w, r, "cardID")
	if !ok {
		return
	}
	attachmentID, ok := httputil.ParsePathInt64OrError(w, r, "attachmentID")
	if !ok {
		return
	}

	reader, attachment, err := s.boards.OpenAttachment(r.Context(), tc, cardID, attachmentID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+attachment.FileName+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, reader)
}
