package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"zeth/zeth-prover/logging"
)

var publicPaths = map[string]bool{
	"/health": true,
}

type authMiddleware struct {
	next   http.Handler
	apiKey string
}

// NewAPIKeyMiddleware guards every non-public path with apiKey. An empty key disables the check.
func NewAPIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &authMiddleware{next: next, apiKey: apiKey}
	}
}

func (m *authMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if publicPaths[r.URL.Path] || r.Method == http.MethodOptions || m.isAuthenticated(r) {
		m.next.ServeHTTP(w, r)
		return
	}

	logging.Logger().Warn().
		Str("remote_addr", r.RemoteAddr).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg("Unauthorized API request")

	(&Error{
		StatusCode: http.StatusUnauthorized,
		Code:       "unauthorized",
		Message:    "Invalid or missing API key. Send it as 'Authorization: Bearer <api-key>' or in the X-API-Key header.",
	}).send(w)
}

func (m *authMiddleware) isAuthenticated(r *http.Request) bool {
	if m.apiKey == "" {
		return true
	}
	providedKey := extractAPIKey(r)
	if providedKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(m.apiKey), []byte(providedKey)) == 1
}

func extractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
