package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/authcode"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/domain"
	"go.uber.org/zap"
)

// AuthenticatedUserHeader carries the user identity established by the
// upstream credential layer. The gateway strips it from external traffic.
const AuthenticatedUserHeader = "X-Authenticated-User"

// CodeIssuer is the authorization-code capability used by the handler.
type CodeIssuer interface {
	Issue(ctx context.Context, in authcode.IssueInput) (string, *domain.AuthorizationCode, error)
}

// ConsentChecker is the consent capability used by the handler.
type ConsentChecker interface {
	IsGranted(ctx context.Context, userID uuid.UUID, clientID string, requested domain.Scopes) (bool, error)
	Grant(ctx context.Context, userID uuid.UUID, clientID string, scopes domain.Scopes) (*domain.Consent, error)
}

// ClientGate is the registry capability used before any redirect happens.
type ClientGate interface {
	Lookup(ctx context.Context, clientID string) (*domain.Client, error)
	ValidateRedirect(client *domain.Client, candidate string) error
	CheckScopes(client *domain.Client, requested domain.Scopes) error
}

// AuthorizeHandler serves the OAuth2 authorization endpoint.
type AuthorizeHandler struct {
	registry ClientGate
	consent  ConsentChecker
	codes    CodeIssuer
	logger   *zap.Logger
}

// NewAuthorizeHandler constructs the handler.
func NewAuthorizeHandler(registry ClientGate, consent ConsentChecker, codes CodeIssuer, logger *zap.Logger) *AuthorizeHandler {
	return &AuthorizeHandler{registry: registry, consent: consent, codes: codes, logger: logger}
}

// Authorize gates the request through client and redirect validation,
// checks consent, and redirects back with a fresh code. Failures before
// the redirect URI is validated are answered directly; everything after is
// communicated through the error query parameter so the browser lands back
// at the client.
func (h *AuthorizeHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	clientID := query.Get("client_id")
	redirectURI := query.Get("redirect_uri")
	state := query.Get("state")

	userID, err := uuid.Parse(r.Header.Get(AuthenticatedUserHeader))
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "access_denied", "authenticated user identity missing")
		return
	}

	client, err := h.registry.Lookup(r.Context(), clientID)
	if err != nil {
		h.hardStop(w, err)
		return
	}
	// An unregistered redirect target must never receive a redirect, not
	// even an error one.
	if err := h.registry.ValidateRedirect(client, redirectURI); err != nil {
		h.hardStop(w, err)
		return
	}

	if query.Get("response_type") != "code" {
		h.redirectError(w, r, redirectURI, state, "unsupported_response_type", "")
		return
	}

	requested := domain.ParseScopes(query.Get("scope"))
	if requested.IsEmpty() {
		h.redirectError(w, r, redirectURI, state, "invalid_scope", "scope required")
		return
	}
	// Scopes outside the client's allowed set must never reach a consent
	// grant; consent rows only accumulate.
	if err := h.registry.CheckScopes(client, requested); err != nil {
		h.redirectError(w, r, redirectURI, state, "invalid_scope", "scope not allowed for client")
		return
	}

	granted, err := h.consent.IsGranted(r.Context(), userID, clientID, requested)
	if err != nil {
		h.redirectError(w, r, redirectURI, state, "server_error", "")
		return
	}
	if !granted {
		if query.Get("approve") != "true" {
			// The consent UI (rendered upstream) resubmits with approve=true.
			writeJSON(w, http.StatusOK, map[string]any{
				"consent_required": true,
				"client_name":      client.Name,
				"scopes":           requested.Values(),
			})
			return
		}
		if _, err := h.consent.Grant(r.Context(), userID, clientID, requested); err != nil {
			h.redirectError(w, r, redirectURI, state, "server_error", "")
			return
		}
	}

	code, _, err := h.codes.Issue(r.Context(), authcode.IssueInput{
		ClientID:            clientID,
		UserID:              userID,
		RedirectURI:         redirectURI,
		Scopes:              requested,
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	})
	if err != nil {
		h.logger.Warn("authorization failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
		h.redirectError(w, r, redirectURI, state, authorizeRedirectCode(err), "")
		return
	}

	target, _ := url.Parse(redirectURI)
	params := target.Query()
	params.Set("code", code)
	if state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *AuthorizeHandler) hardStop(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clients.ErrInvalidClient):
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown or inactive client")
	case errors.Is(err, clients.ErrInvalidRedirectURI):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri not registered for client")
	default:
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *AuthorizeHandler) redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state, code, description string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed redirect_uri")
		return
	}
	params := target.Query()
	params.Set("error", code)
	if description != "" {
		params.Set("error_description", description)
	}
	if state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
