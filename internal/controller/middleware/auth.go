// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"net/http"
	"strings"

	"labelplane/internal/auth"
)

// Auth validates the operator API key. Clients send the key as a Bearer
// token; the server only ever holds its hash. An empty configured hash
// disables authentication, for local development.
func Auth(apiKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			if !auth.VerifyKey(parts[1], apiKeyHash) {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
