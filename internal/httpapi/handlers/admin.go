package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/events"
	"github.com/peeap/identity-service/internal/storage"
	"go.uber.org/zap"
)

// ClientAdmin is the registry surface exposed to operators.
type ClientAdmin interface {
	Register(ctx context.Context, in clients.RegisterInput) (*domain.Client, string, error)
	Update(ctx context.Context, clientID string, in clients.UpdateInput) (*domain.Client, error)
	Deactivate(ctx context.Context, clientID string) error
	List(ctx context.Context) ([]*domain.Client, error)
}

// ConsentAdmin revokes consent on a user's behalf.
type ConsentAdmin interface {
	Revoke(ctx context.Context, userID uuid.UUID, clientID string) error
}

// EventReader lists recent lifecycle events.
type EventReader interface {
	ListRecent(ctx context.Context, limit int) ([]*domain.Event, error)
}

// AdminHandler serves the operator API for client, consent, and webhook
// management.
type AdminHandler struct {
	registry ClientAdmin
	consent  ConsentAdmin
	webhooks storage.WebhookStore
	events   EventReader
	logger   *zap.Logger
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(registry ClientAdmin, consent ConsentAdmin, webhooks storage.WebhookStore, reader EventReader, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{registry: registry, consent: consent, webhooks: webhooks, events: reader, logger: logger}
}

type registerClientRequest struct {
	Name         string         `json:"name"`
	RedirectURIs []string       `json:"redirect_uris"`
	Scope        string         `json:"scope"`
	Confidential bool           `json:"confidential"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RegisterClient creates a client registration. The response carries the
// plaintext secret for confidential clients; it is never retrievable again.
func (h *AdminHandler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req registerClientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Name == "" || len(req.RedirectURIs) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "name and redirect_uris required")
		return
	}

	client, secret, err := h.registry.Register(r.Context(), clients.RegisterInput{
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		Scopes:       domain.ParseScopes(req.Scope),
		Confidential: req.Confidential,
		Metadata:     req.Metadata,
	})
	if err != nil {
		if errors.Is(err, clients.ErrClientExists) {
			writeOAuthError(w, http.StatusConflict, "invalid_request", "client already exists")
			return
		}
		h.logger.Error("client registration failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := map[string]any{"client": client}
	if secret != "" {
		resp["client_secret"] = secret
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListClients returns all registrations.
func (h *AdminHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("client listing failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": list})
}

type updateClientRequest struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scope        string   `json:"scope"`
}

// UpdateClient applies a partial update to a registration.
func (h *AdminHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req updateClientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	var scopes domain.Scopes
	if req.Scope != "" {
		scopes = domain.ParseScopes(req.Scope)
	}
	client, err := h.registry.Update(r.Context(), chi.URLParam(r, "clientID"), clients.UpdateInput{
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		Scopes:       scopes,
	})
	if err != nil {
		if errors.Is(err, clients.ErrInvalidClient) {
			writeOAuthError(w, http.StatusNotFound, "invalid_request", "client not found")
			return
		}
		h.logger.Error("client update failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

// DeactivateClient soft-disables a registration.
func (h *AdminHandler) DeactivateClient(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Deactivate(r.Context(), chi.URLParam(r, "clientID")); err != nil {
		if errors.Is(err, clients.ErrInvalidClient) {
			writeOAuthError(w, http.StatusNotFound, "invalid_request", "client not found")
			return
		}
		h.logger.Error("client deactivation failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// RevokeConsent removes a user's consent record for a client. Existing
// tokens stay valid until expiry or explicit revocation; the next
// authorization request will prompt again.
func (h *AdminHandler) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed user id")
		return
	}
	if err := h.consent.Revoke(r.Context(), userID, chi.URLParam(r, "clientID")); err != nil {
		h.logger.Error("consent revocation failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type createWebhookRequest struct {
	ClientID string   `json:"client_id"`
	URL      string   `json:"url"`
	Secret   string   `json:"secret"`
	Events   []string `json:"events"`
}

// CreateWebhook registers a delivery endpoint for lifecycle events.
func (h *AdminHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.URL == "" || req.Secret == "" || len(req.Events) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "url, secret, and events required")
		return
	}

	endpoint := &domain.WebhookEndpoint{
		ID:        uuid.New(),
		ClientID:  req.ClientID,
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    req.Events,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.webhooks.CreateEndpoint(r.Context(), endpoint); err != nil {
		h.logger.Error("webhook registration failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"endpoint": endpoint})
}

// ListWebhooks returns all registered endpoints.
func (h *AdminHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	list, err := h.webhooks.ListEndpoints(r.Context())
	if err != nil {
		h.logger.Error("webhook listing failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": list})
}

// DeactivateWebhook disables an endpoint without deleting its history.
func (h *AdminHandler) DeactivateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "endpointID"))
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed endpoint id")
		return
	}
	if err := h.webhooks.DeactivateEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeOAuthError(w, http.StatusNotFound, "invalid_request", "endpoint not found")
			return
		}
		h.logger.Error("webhook deactivation failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ListEvents returns the most recent lifecycle events.
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	list, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("event listing failed", zap.Error(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

var _ EventReader = (*events.Logger)(nil)
