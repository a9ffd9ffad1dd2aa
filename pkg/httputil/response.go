// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/slateboards/slate/pkg/apperrors"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// ErrorResponse is the error payload shape for every non-2xx answer.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Limit      int    `json:"limit,omitempty"`
	Current    int    `json:"current,omitempty"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

// WriteErrorMessage writes a JSON error response with a code and message
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, "bad_request", message)
}

// WriteAppError translates a service error into the matching HTTP response.
//
// Cross-tenant and missing rows both arrive as ErrNotFound and both leave as
// 404, so the response never reveals whether a guessed id exists. Quota and
// rate-limit rejections carry enough payload for the client to render an
// upgrade prompt or back off.
func WriteAppError(w http.ResponseWriter, err error) {
	var limitErr *apperrors.LimitReachedError
	var rateErr *apperrors.RateLimitedError

	switch {
	case apperrors.IsUnauthenticated(err):
		WriteErrorMessage(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case apperrors.IsDemoReadOnly(err):
		WriteErrorMessage(w, http.StatusForbidden, "demo_read_only", "the demo workspace is read-only")
	case errors.As(err, &limitErr):
		WriteJSON(w, http.StatusForbidden, ErrorResponse{
			Code:    "limit_reached",
			Message: limitErr.Error(),
			Limit:   limitErr.Limit,
			Current: limitErr.Current,
		})
	case apperrors.IsForbidden(err):
		WriteErrorMessage(w, http.StatusForbidden, "forbidden", "permission denied")
	case apperrors.IsNotFound(err):
		WriteErrorMessage(w, http.StatusNotFound, "not_found", "resource not found")
	case apperrors.IsConflict(err):
		WriteErrorMessage(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &rateErr):
		retryAfter := int(rateErr.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Code:       "rate_limited",
			Message:    rateErr.Error(),
			RetryAfter: retryAfter,
		})
	default:
		WriteErrorMessage(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
