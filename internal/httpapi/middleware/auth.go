package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/peeap/identity-service/internal/tokens"
)

// AccessValidator resolves opaque access tokens to their identity.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, token string) (*tokens.Identity, error)
}

// Auth provides bearer-token authentication backed by the token manager.
type Auth struct {
	validator AccessValidator
}

// NewAuth creates a new instance.
func NewAuth(validator AccessValidator) *Auth {
	return &Auth{validator: validator}
}

// RequireAuth ensures incoming requests carry a valid access token.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := a.validator.ValidateAccess(r.Context(), strings.TrimSpace(authHeader[7:]))
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope layers a scope check on top of RequireAuth.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || !identity.Scopes.Contains(scope) {
				writeAuthError(w, http.StatusForbidden, scope+" scope required")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeError(w, status, "access_denied", message)
}

type identityContextKey struct{}

// IdentityFromContext extracts the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (*tokens.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*tokens.Identity)
	return identity, ok && identity != nil
}
