package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kpath-ai/kpath/domain/search"
)

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid request", search.ErrInvalidRequest("bad"), http.StatusBadRequest, "InvalidRequest"},
		{"query empty", search.ErrQueryEmpty(), http.StatusBadRequest, "QueryEmpty"},
		{"index not ready", search.ErrIndexNotReady("loading"), http.StatusServiceUnavailable, "IndexNotReady"},
		{"model mismatch", search.ErrModelMismatch("stale"), http.StatusServiceUnavailable, "ModelMismatch"},
		{"embedding failed", search.ErrEmbeddingFailed(errors.New("down")), http.StatusServiceUnavailable, "EmbeddingFailed"},
		{"overloaded", search.ErrOverloaded(), http.StatusTooManyRequests, "Overloaded"},
		{"cancelled", search.ErrCancelled(context.Canceled), StatusClientClosedRequest, "Cancelled"},
		{"not found", search.ErrNotFound("missing"), http.StatusNotFound, "NotFound"},
		{"internal", search.ErrInternal(errors.New("boom")), http.StatusInternalServerError, "Internal"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "Internal"},
		{"context cancellation", context.Canceled, StatusClientClosedRequest, "Cancelled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)

			WriteError(rec, req, tc.err, nil)

			require.Equal(t, tc.wantStatus, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestWriteError_RetryableFlag(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rec, req, search.ErrIndexNotReady("loading"), nil)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Error.Retryable)

	rec = httptest.NewRecorder()
	WriteError(rec, req, search.ErrQueryEmpty(), nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.False(t, resp.Error.Retryable)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]bool{"accepted": true})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"accepted":true}`, rec.Body.String())
}
