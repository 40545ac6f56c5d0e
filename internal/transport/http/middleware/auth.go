package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-auth-otp/internal/domain"
	jwtinfra "github.com/go-auth-otp/internal/infrastructure/jwt"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// Authorizer validates a full Authorization header value and returns the
// claims carried by the Bearer token.
type Authorizer interface {
	Authorize(bearerHeader string) (*jwtinfra.Claims, error)
}

// Auth returns middleware that validates the Bearer JWT and injects claims
// into the request context.
func Auth(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authorizer.Authorize(r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, domain.ErrMalformedHeader) {
					writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
					return
				}
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}
