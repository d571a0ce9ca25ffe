// Package middleware provides net/http middleware over the engine: bearer
// token verification and exact role gating. It works with any router; the
// portal wires it into chi.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/eduportal/authcore"
)

type contextKey int

const authResultKey contextKey = iota

// Error bodies are stable strings clients switch on.
const (
	bodyTokenExpired = `{"error":"token_expired"}`
	bodyTokenInvalid = `{"error":"invalid_token"}`
	bodyForbidden    = `{"error":"forbidden"}`
)

// FromContext returns the verified identity stored by Guard.
func FromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	result, ok := ctx.Value(authResultKey).(*authcore.AuthResult)
	return result, ok
}

// Guard verifies the Authorization bearer token and stores the result in
// the request context. Expired tokens get a distinct body so clients know
// to refresh instead of re-authenticating.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, bodyTokenInvalid)
				return
			}

			result, err := engine.VerifyAccess(r.Context(), token)
			switch {
			case errors.Is(err, authcore.ErrTokenExpired):
				writeJSONError(w, http.StatusUnauthorized, bodyTokenExpired)
				return
			case err != nil:
				writeJSONError(w, http.StatusUnauthorized, bodyTokenInvalid)
				return
			}

			ctx := context.WithValue(r.Context(), authResultKey, result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only the named roles past. It must run inside Guard.
// Matching is exact; admin does not imply teacher.
func RequireRole(roles ...authcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := FromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, bodyTokenInvalid)
				return
			}
			for _, role := range roles {
				if result.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, bodyForbidden)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func writeJSONError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
