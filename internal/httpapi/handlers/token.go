package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/authcode"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/tokens"
	"go.uber.org/zap"
)

// CodeConsumer is the exchange side of the authorization-code flow.
type CodeConsumer interface {
	Consume(ctx context.Context, in authcode.ConsumeInput) (*authcode.Grant, error)
}

// TokenIssuer mints, rotates, and revokes opaque token pairs.
type TokenIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID, clientID string, scopes domain.Scopes, withRefresh bool) (*tokens.Pair, error)
	Rotate(ctx context.Context, refreshToken, clientID string) (*tokens.Pair, error)
	Revoke(ctx context.Context, token string) error
}

// ClientAuthenticator resolves and authenticates clients on the token endpoint.
type ClientAuthenticator interface {
	Lookup(ctx context.Context, clientID string) (*domain.Client, error)
	VerifySecret(ctx context.Context, clientID, secret string) (*domain.Client, error)
}

// TokenHandler serves the token and revocation endpoints.
type TokenHandler struct {
	registry ClientAuthenticator
	codes    CodeConsumer
	tokens   TokenIssuer
	logger   *zap.Logger
}

// NewTokenHandler constructs the handler.
func NewTokenHandler(registry ClientAuthenticator, codes CodeConsumer, issuer TokenIssuer, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{registry: registry, codes: codes, tokens: issuer, logger: logger}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// Token handles the form-encoded grant exchange. Confidential clients
// authenticate with their secret (Basic or form), public clients prove
// possession with their PKCE verifier.
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	client, err := h.authenticateClient(r)
	if err != nil {
		status, code, description := oauthError(err)
		writeOAuthError(w, status, code, description)
		return
	}

	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		h.exchangeCode(w, r, client)
	case "refresh_token":
		h.refresh(w, r, client)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (h *TokenHandler) exchangeCode(w http.ResponseWriter, r *http.Request, client *domain.Client) {
	code := r.PostFormValue("code")
	if code == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code required")
		return
	}

	grant, err := h.codes.Consume(r.Context(), authcode.ConsumeInput{
		Code:         code,
		ClientID:     client.ClientID,
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
	})
	if err != nil {
		status, errCode, description := oauthError(err)
		writeOAuthError(w, status, errCode, description)
		return
	}

	// Public clients are browser or mobile resident and cannot keep a
	// refresh token safe.
	pair, err := h.tokens.Issue(r.Context(), grant.UserID, grant.ClientID, grant.Scopes, client.Confidential)
	if err != nil {
		h.logger.Error("token issuance failed", zap.String("client_id", client.ClientID), zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (h *TokenHandler) refresh(w http.ResponseWriter, r *http.Request, client *domain.Client) {
	if !client.Confidential {
		writeOAuthError(w, http.StatusBadRequest, "unauthorized_client", "public clients cannot use refresh_token")
		return
	}
	refreshToken := r.PostFormValue("refresh_token")
	if refreshToken == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token required")
		return
	}

	pair, err := h.tokens.Rotate(r.Context(), refreshToken, client.ClientID)
	if err != nil {
		status, code, description := oauthError(err)
		writeOAuthError(w, status, code, description)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// Revoke invalidates an access or refresh token. Per RFC 7009 the answer
// is 200 regardless of whether the token existed, so the response never
// reveals whether a token was live.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	if _, err := h.authenticateClient(r); err != nil {
		status, code, description := oauthError(err)
		writeOAuthError(w, status, code, description)
		return
	}

	if err := h.tokens.Revoke(r.Context(), r.PostFormValue("token")); err != nil {
		h.logger.Error("revocation failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *TokenHandler) authenticateClient(r *http.Request) (*domain.Client, error) {
	clientID, secret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostFormValue("client_id")
		secret = r.PostFormValue("client_secret")
	}
	if clientID == "" {
		return nil, clients.ErrInvalidClient
	}

	client, err := h.registry.Lookup(r.Context(), clientID)
	if err != nil {
		return nil, err
	}
	if client.Confidential {
		return h.registry.VerifySecret(r.Context(), clientID, secret)
	}
	if secret != "" {
		// A secret presented by a public client means a misconfigured
		// integration; reject rather than silently ignore.
		return nil, clients.ErrInvalidClient
	}
	return client, nil
}

func toTokenResponse(pair *tokens.Pair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(pair.ExpiresAt).Seconds()),
		RefreshToken: pair.RefreshToken,
		Scope:        pair.Scopes.String(),
	}
}
