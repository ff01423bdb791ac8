package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/kpath-ai/kpath/domain/search"
)

// AnonymousCaller is the caller identity used when no API key is presented.
const AnonymousCaller = "anonymous"

type callerIDKey struct{}

// AuthConfig holds the accepted API keys.
type AuthConfig struct {
	keys []string
}

// NewAuthConfigWithKeys creates an AuthConfig accepting the given keys.
// An empty key set disables authentication.
func NewAuthConfigWithKeys(keys []string) AuthConfig {
	return AuthConfig{keys: keys}
}

// Enabled reports whether any key is configured.
func (c AuthConfig) Enabled() bool { return len(c.keys) > 0 }

// validate reports whether the presented key matches a configured one.
func (c AuthConfig) validate(presented string) bool {
	ok := false
	for _, key := range c.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(presented)) == 1 {
			ok = true
		}
	}
	return ok
}

// CallerID returns the caller identity resolved by Identify, or
// AnonymousCaller when none was.
func CallerID(ctx context.Context) string {
	if id, ok := ctx.Value(callerIDKey{}).(string); ok && id != "" {
		return id
	}
	return AnonymousCaller
}

// WithCallerID returns a context carrying the given caller identity.
func WithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerIDKey{}, id)
}

// Identify resolves the caller identity for telemetry from the X-API-Key
// header. Requests without a key pass through as anonymous; identification
// never rejects.
func Identify(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := AnonymousCaller
			if key := r.Header.Get("X-API-Key"); key != "" && config.validate(key) {
				id = "key:" + keyFingerprint(key)
			}
			next.ServeHTTP(w, r.WithContext(WithCallerID(r.Context(), id)))
		})
	}
}

// WriteProtect requires a valid API key for mutating methods. Safe methods
// pass through. With no keys configured everything passes.
func WriteProtect(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled() || safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" || !config.validate(key) {
				WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: ErrorBody{
						Code:    string(search.CodeInvalidRequest),
						Message: "missing or invalid API key",
					},
				})
				return
			}
			ctx := WithCallerID(r.Context(), "key:"+keyFingerprint(key))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// keyFingerprint identifies a key in logs without revealing it.
func keyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
