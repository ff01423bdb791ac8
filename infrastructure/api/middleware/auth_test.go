package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func callerCapture(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = CallerID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestIdentify_AnonymousWithoutKey(t *testing.T) {
	var caller string
	handler := Identify(NewAuthConfigWithKeys([]string{"secret"}))(callerCapture(&caller))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, AnonymousCaller, caller)
}

func TestIdentify_ValidKeyGetsFingerprint(t *testing.T) {
	var caller string
	handler := Identify(NewAuthConfigWithKeys([]string{"secret"}))(callerCapture(&caller))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(caller, "key:"))
	require.Len(t, strings.TrimPrefix(caller, "key:"), 8)
	require.NotContains(t, caller, "secret")
}

func TestIdentify_InvalidKeyStaysAnonymous(t *testing.T) {
	var caller string
	handler := Identify(NewAuthConfigWithKeys([]string{"secret"}))(callerCapture(&caller))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Identification never rejects.
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, AnonymousCaller, caller)
}

func TestWriteProtect(t *testing.T) {
	cases := []struct {
		name       string
		keys       []string
		method     string
		key        string
		wantStatus int
	}{
		{"disabled passes writes", nil, http.MethodPost, "", http.StatusOK},
		{"safe method passes without key", []string{"secret"}, http.MethodGet, "", http.StatusOK},
		{"write without key rejected", []string{"secret"}, http.MethodPost, "", http.StatusUnauthorized},
		{"write with wrong key rejected", []string{"secret"}, http.MethodPost, "wrong", http.StatusUnauthorized},
		{"write with valid key passes", []string{"secret"}, http.MethodPost, "secret", http.StatusOK},
		{"any configured key accepted", []string{"first", "second"}, http.MethodPost, "second", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var caller string
			handler := WriteProtect(NewAuthConfigWithKeys(tc.keys))(callerCapture(&caller))

			req := httptest.NewRequest(tc.method, "/", nil)
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusUnauthorized {
				var resp ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				require.Equal(t, "InvalidRequest", resp.Error.Code)
			}
		})
	}
}

func TestWriteProtect_ValidKeySetsCallerID(t *testing.T) {
	var caller string
	handler := WriteProtect(NewAuthConfigWithKeys([]string{"secret"}))(callerCapture(&caller))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(caller, "key:"))
}

func TestCallerID_DefaultsToAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, AnonymousCaller, CallerID(req.Context()))
}
