// Package memory provides a mutex-guarded in-memory implementation of the
// storage contracts. It backs unit tests and local development; the
// conditional-update operations honour the same single-winner semantics as
// the Postgres implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
)

// Store holds all entities in process memory.
type Store struct {
	mu sync.Mutex

	clients   map[string]*domain.Client            // by client_id
	codes     map[string]*domain.AuthorizationCode // by code hash
	tokens    map[uuid.UUID]*domain.Token
	byAccess  map[string]uuid.UUID
	byRefresh map[string]uuid.UUID
	consents  map[string]*domain.Consent // by user|client
	ssoTokens map[string]*domain.SSOToken
	webhooks  map[uuid.UUID]*domain.WebhookEndpoint
	events    []*domain.Event
}

var _ storage.Store = (*Store)(nil)

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		clients:   make(map[string]*domain.Client),
		codes:     make(map[string]*domain.AuthorizationCode),
		tokens:    make(map[uuid.UUID]*domain.Token),
		byAccess:  make(map[string]uuid.UUID),
		byRefresh: make(map[string]uuid.UUID),
		consents:  make(map[string]*domain.Consent),
		ssoTokens: make(map[string]*domain.SSOToken),
		webhooks:  make(map[uuid.UUID]*domain.WebhookEndpoint),
	}
}

// Clients

func (s *Store) CreateClient(_ context.Context, client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.ClientID]; ok {
		return storage.ErrConflict
	}
	c := *client
	s.clients[client.ClientID] = &c
	return nil
}

func (s *Store) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *client
	return &c, nil
}

func (s *Store) UpdateClient(_ context.Context, client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.ClientID]; !ok {
		return storage.ErrNotFound
	}
	c := *client
	c.UpdatedAt = time.Now().UTC()
	s.clients[client.ClientID] = &c
	return nil
}

func (s *Store) ListClients(_ context.Context) ([]*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Client, 0, len(s.clients))
	for _, client := range s.clients {
		c := *client
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// Authorization codes

func (s *Store) CreateCode(_ context.Context, code *domain.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return storage.ErrConflict
	}
	c := *code
	s.codes[code.Code] = &c
	return nil
}

func (s *Store) GetCode(_ context.Context, codeHash string) (*domain.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[codeHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *code
	return &c, nil
}

func (s *Store) MarkCodeUsed(_ context.Context, codeHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[codeHash]
	if !ok {
		return storage.ErrNotFound
	}
	if code.UsedAt != nil || !now.Before(code.ExpiresAt) {
		return storage.ErrAlreadyConsumed
	}
	used := now
	code.UsedAt = &used
	return nil
}

func (s *Store) DeleteExpiredCodes(_ context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for hash, code := range s.codes {
		if deleted >= limit {
			break
		}
		if code.ExpiresAt.Before(cutoff) {
			delete(s.codes, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Tokens

func (s *Store) CreateToken(_ context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAccess[token.AccessTokenHash]; ok {
		return storage.ErrConflict
	}
	t := *token
	s.tokens[t.ID] = &t
	s.byAccess[t.AccessTokenHash] = t.ID
	if t.RefreshTokenHash != "" {
		s.byRefresh[t.RefreshTokenHash] = t.ID
	}
	return nil
}

func (s *Store) GetByAccessHash(_ context.Context, hash string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byAccess[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	t := *s.tokens[id]
	return &t, nil
}

func (s *Store) GetByRefreshHash(_ context.Context, hash string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRefresh[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	t := *s.tokens[id]
	return &t, nil
}

func (s *Store) RevokeByRefreshHash(_ context.Context, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRefresh[hash]
	if !ok {
		return storage.ErrNotFound
	}
	token := s.tokens[id]
	if token.RevokedAt != nil {
		return storage.ErrAlreadyConsumed
	}
	revoked := now
	token.RevokedAt = &revoked
	return nil
}

func (s *Store) RevokeByHash(_ context.Context, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byAccess[hash]
	if !ok {
		if id, ok = s.byRefresh[hash]; !ok {
			return nil
		}
	}
	token := s.tokens[id]
	if token.RevokedAt == nil {
		revoked := now
		token.RevokedAt = &revoked
	}
	return nil
}

func (s *Store) DeleteExpiredTokens(_ context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, token := range s.tokens {
		if deleted >= limit {
			break
		}
		expiry := token.ExpiresAt
		if token.RefreshExpiresAt.After(expiry) {
			expiry = token.RefreshExpiresAt
		}
		if expiry.Before(cutoff) {
			delete(s.byAccess, token.AccessTokenHash)
			if token.RefreshTokenHash != "" {
				delete(s.byRefresh, token.RefreshTokenHash)
			}
			delete(s.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

// Consents

func consentKey(userID uuid.UUID, clientID string) string {
	return userID.String() + "|" + clientID
}

func (s *Store) GetConsent(_ context.Context, userID uuid.UUID, clientID string) (*domain.Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	consent, ok := s.consents[consentKey(userID, clientID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *consent
	return &c, nil
}

func (s *Store) UpsertConsent(_ context.Context, userID uuid.UUID, clientID string, scopes domain.Scopes) (*domain.Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := consentKey(userID, clientID)
	now := time.Now().UTC()
	consent, ok := s.consents[key]
	if !ok {
		consent = &domain.Consent{
			ID:        uuid.New(),
			UserID:    userID,
			ClientID:  clientID,
			Scopes:    domain.Scopes{},
			CreatedAt: now,
		}
		s.consents[key] = consent
	}
	consent.Scopes = consent.Scopes.Union(scopes)
	consent.UpdatedAt = now
	c := *consent
	return &c, nil
}

func (s *Store) DeleteConsent(_ context.Context, userID uuid.UUID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consents, consentKey(userID, clientID))
	return nil
}

// SSO tokens

func (s *Store) CreateSSOToken(_ context.Context, token *domain.SSOToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ssoTokens[token.Token]; ok {
		return storage.ErrConflict
	}
	t := *token
	s.ssoTokens[token.Token] = &t
	return nil
}

func (s *Store) GetSSOToken(_ context.Context, tokenHash string) (*domain.SSOToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.ssoTokens[tokenHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	t := *token
	return &t, nil
}

func (s *Store) MarkSSOTokenUsed(_ context.Context, tokenHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.ssoTokens[tokenHash]
	if !ok {
		return storage.ErrNotFound
	}
	if token.UsedAt != nil || !now.Before(token.ExpiresAt) {
		return storage.ErrAlreadyConsumed
	}
	used := now
	token.UsedAt = &used
	return nil
}

func (s *Store) DeleteExpiredSSOTokens(_ context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for hash, token := range s.ssoTokens {
		if deleted >= limit {
			break
		}
		if token.ExpiresAt.Before(cutoff) {
			delete(s.ssoTokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Webhook endpoints

func (s *Store) CreateEndpoint(_ context.Context, endpoint *domain.WebhookEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *endpoint
	s.webhooks[endpoint.ID] = &e
	return nil
}

func (s *Store) ListEndpoints(_ context.Context) ([]*domain.WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.WebhookEndpoint, 0, len(s.webhooks))
	for _, endpoint := range s.webhooks {
		e := *endpoint
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ActiveEndpointsForClient(_ context.Context, clientID string) ([]*domain.WebhookEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.WebhookEndpoint
	for _, endpoint := range s.webhooks {
		if !endpoint.Active {
			continue
		}
		if endpoint.ClientID == clientID || endpoint.ClientID == "" {
			e := *endpoint
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *Store) DeactivateEndpoint(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.webhooks[id]
	if !ok {
		return storage.ErrNotFound
	}
	endpoint.Active = false
	return nil
}

// Events

func (s *Store) AppendEvent(_ context.Context, event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.events = append(s.events, &e)
	return nil
}

func (s *Store) UpdateEventDelivery(_ context.Context, id uuid.UUID, delivered bool, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.ID == id {
			event.Delivered = delivered
			event.Attempts = attempts
			event.LastError = lastError
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) ListRecentEvents(_ context.Context, limit int) ([]*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]*domain.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := *s.events[i]
		out = append(out, &e)
	}
	return out, nil
}
