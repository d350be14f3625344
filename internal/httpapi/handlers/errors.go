package handlers

import (
	"errors"
	"net/http"

	"github.com/peeap/identity-service/internal/authcode"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/oauth/pkce"
	"github.com/peeap/identity-service/internal/sso"
	"github.com/peeap/identity-service/internal/tokens"
)

// oauthError maps service sentinels onto RFC 6749 error codes and HTTP
// statuses for the synchronous JSON endpoints. Storage connectivity
// failures are the only class that falls through to 500.
func oauthError(err error) (int, string, string) {
	switch {
	case errors.Is(err, clients.ErrInvalidClient):
		return http.StatusUnauthorized, "invalid_client", "unknown client or bad credentials"
	case errors.Is(err, clients.ErrInvalidRedirectURI):
		return http.StatusBadRequest, "invalid_request", "redirect_uri not registered for client"
	case errors.Is(err, clients.ErrInvalidScope):
		return http.StatusBadRequest, "invalid_scope", "requested scope exceeds client grant"
	case errors.Is(err, authcode.ErrPkceRequired):
		return http.StatusBadRequest, "invalid_request", "code_challenge required for public clients"
	case errors.Is(err, pkce.ErrUnsupportedMethod):
		return http.StatusBadRequest, "invalid_request", "unsupported code_challenge_method"
	case errors.Is(err, authcode.ErrPkceMismatch):
		return http.StatusBadRequest, "invalid_grant", "code_verifier rejected"
	case errors.Is(err, authcode.ErrCodeExpired):
		return http.StatusBadRequest, "invalid_grant", "authorization code expired"
	case errors.Is(err, authcode.ErrCodeAlreadyUsed):
		return http.StatusBadRequest, "invalid_grant", "authorization code already used"
	case errors.Is(err, authcode.ErrInvalidGrant), errors.Is(err, tokens.ErrInvalidGrant):
		return http.StatusBadRequest, "invalid_grant", "grant rejected"
	case errors.Is(err, tokens.ErrTokenExpired), errors.Is(err, tokens.ErrTokenRevoked), errors.Is(err, tokens.ErrTokenInvalid):
		return http.StatusUnauthorized, "invalid_token", "token rejected"
	case errors.Is(err, sso.ErrAppNotAllowed):
		return http.StatusForbidden, "access_denied", "app not in sso allow-list"
	case errors.Is(err, sso.ErrTokenInvalid), errors.Is(err, sso.ErrTokenExpired), errors.Is(err, sso.ErrTokenAlreadyUsed):
		return http.StatusBadRequest, "invalid_grant", "sso token rejected"
	default:
		return http.StatusInternalServerError, "server_error", "internal error"
	}
}

// authorizeRedirectCode maps errors that occur after the redirect URI has
// been validated onto the error query parameter of the callback redirect.
func authorizeRedirectCode(err error) string {
	switch {
	case errors.Is(err, clients.ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, authcode.ErrPkceRequired), errors.Is(err, pkce.ErrUnsupportedMethod):
		return "invalid_request"
	default:
		return "server_error"
	}
}
