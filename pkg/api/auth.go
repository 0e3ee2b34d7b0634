package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthConfig holds the accepted API tokens.
type AuthConfig struct {
	Tokens []string
}

// authMiddleware wraps an http.Handler with Bearer / X-API-Key checks.
// Requests to /health and /metrics bypass authentication.
func authMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			if cfg.valid(token) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if key := r.Header.Get("X-API-Key"); key != "" {
			if cfg.valid(key) {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Bearer realm="erscraped API"`)
		writeJSON(w, http.StatusUnauthorized, Response{
			Success: false,
			Error:   "authentication required",
		})
	})
}

// valid compares token against every configured token in constant time.
func (cfg AuthConfig) valid(token string) bool {
	ok := 0
	for _, t := range cfg.Tokens {
		if t == "" {
			continue
		}
		ok |= subtle.ConstantTimeCompare([]byte(token), []byte(t))
	}
	return ok == 1
}

// ParseTokens splits a token file's content into tokens: one per line,
// blank lines and '#' comments ignored.
func ParseTokens(data string) []string {
	var tokens []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	return tokens
}
