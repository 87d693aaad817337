package middleware

import (
	"net/http"
	"strings"

	"github.com/swapmeet/marketplace/backend/internal/auth"
	"github.com/swapmeet/marketplace/backend/internal/response"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireAuth is middleware that validates the bearer token and injects
// its claims into the request context. A missing token is 401, a bad or
// expired one 403.
func RequireAuth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				response.Fail(w, http.StatusUnauthorized, "Access token required")
				return
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				response.Fail(w, http.StatusForbidden, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
