package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateboards/slate/pkg/apperrors"
)

func writeAndDecode(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	WriteAppError(rec, err)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec, body
}

func TestWriteAppError_Unauthenticated(t *testing.T) {
	rec, body := writeAndDecode(t, apperrors.ErrUnauthenticated)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", body.Code)
}

func TestWriteAppError_NotFoundHidesTenancy(t *testing.T) {
	rec, body := writeAndDecode(t, fmt.Errorf("board 9 in another org: %w", apperrors.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body.Code)
	// The wrapped detail must never leak to the client.
	assert.Equal(t, "resource not found", body.Message)
}

func TestWriteAppError_DemoReadOnly(t *testing.T) {
	rec, body := writeAndDecode(t, apperrors.ErrDemoReadOnly)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "demo_read_only", body.Code)
}

func TestWriteAppError_LimitReachedCarriesCounts(t *testing.T) {
	rec, body := writeAndDecode(t, &apperrors.LimitReachedError{Resource: "boards", Limit: 5, Current: 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "limit_reached", body.Code)
	assert.Equal(t, 5, body.Limit)
	assert.Equal(t, 5, body.Current)
}

func TestWriteAppError_RateLimitedSetsRetryAfter(t *testing.T) {
	rec, body := writeAndDecode(t, &apperrors.RateLimitedError{Action: "card.create", RetryAfter: 42 * time.Second})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", body.Code)
	assert.Equal(t, 42, body.RetryAfter)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestWriteAppError_RateLimitedSubSecondRoundsUp(t *testing.T) {
	rec, _ := writeAndDecode(t, &apperrors.RateLimitedError{Action: "card.create", RetryAfter: 200 * time.Millisecond})
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteAppError_UnknownErrorIsOpaque(t *testing.T) {
	rec, body := writeAndDecode(t, fmt.Errorf("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", body.Code)
	assert.Equal(t, "internal server error", body.Message)
}
