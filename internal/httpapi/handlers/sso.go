package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/httpapi/middleware"
	"github.com/peeap/identity-service/internal/sso"
	"go.uber.org/zap"
)

// SSOService issues and exchanges first-party handoff tokens.
type SSOService interface {
	Issue(ctx context.Context, in sso.IssueInput) (string, time.Time, error)
	Exchange(ctx context.Context, token string) (*sso.Handoff, error)
}

// SSOHandler serves the internal handoff endpoints. Both routes sit behind
// service authentication; they are never reachable from the public edge.
type SSOHandler struct {
	service SSOService
	logger  *zap.Logger
}

// NewSSOHandler constructs the handler.
func NewSSOHandler(service SSOService, logger *zap.Logger) *SSOHandler {
	return &SSOHandler{service: service, logger: logger}
}

type ssoIssueRequest struct {
	UserID       uuid.UUID `json:"user_id"`
	SourceApp    string    `json:"source_app"`
	TargetApp    string    `json:"target_app"`
	RedirectPath string    `json:"redirect_path"`
	Scope        string    `json:"scope"`
}

// Issue mints a handoff token. The declared source_app must match the app
// asserted by the caller's service credential, so one app cannot mint
// handoffs on another's behalf.
func (h *SSOHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req ssoIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.UserID == uuid.Nil || req.TargetApp == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "user_id and target_app required")
		return
	}

	assertedApp, _ := middleware.ServiceAppFromContext(r.Context())
	if req.SourceApp != assertedApp {
		writeOAuthError(w, http.StatusForbidden, "access_denied", "source_app does not match service credential")
		return
	}

	token, expiresAt, err := h.service.Issue(r.Context(), sso.IssueInput{
		UserID:       req.UserID,
		SourceApp:    req.SourceApp,
		TargetApp:    req.TargetApp,
		RedirectPath: req.RedirectPath,
		Scopes:       domain.ParseScopes(req.Scope),
	})
	if err != nil {
		status, code, description := oauthError(err)
		writeOAuthError(w, status, code, description)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sso_token":  token,
		"expires_at": expiresAt,
	})
}

type ssoExchangeRequest struct {
	Token string `json:"token"`
}

// Exchange redeems a handoff token exactly once.
func (h *SSOHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req ssoExchangeRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "token required")
		return
	}

	handoff, err := h.service.Exchange(r.Context(), req.Token)
	if err != nil {
		status, code, description := oauthError(err)
		writeOAuthError(w, status, code, description)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       handoff.UserID,
		"target_app":    handoff.TargetApp,
		"redirect_path": handoff.RedirectPath,
		"scope":         handoff.Scopes.String(),
	})
}
