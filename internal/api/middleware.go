package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyAuth guards the control plane with a shared backend key, accepted
// as either X-API-Key or Authorization: Bearer. Errors use the same
// {code, message} shape as every other handler so collaborators get one
// error contract across the surface.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestAPIKey(r)
			if key == "" {
				respondError(w, http.StatusUnauthorized, "Unauthorized", "missing API key: provide X-API-Key or Authorization: Bearer <key>")
				return
			}
			// Constant-time comparison.
			if subtle.ConstantTimeCompare([]byte(key), expected) != 1 {
				respondError(w, http.StatusForbidden, "Forbidden", "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
