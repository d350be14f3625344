// Package clients manages registered OAuth/SSO client applications.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/cache"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/oauth/opaque"
	"github.com/peeap/identity-service/internal/oauth/redirect"
	"github.com/peeap/identity-service/internal/secrets"
	"github.com/peeap/identity-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrInvalidClient indicates an unknown or inactive client, or a bad
	// secret. Callers must not distinguish the cases to avoid probing.
	ErrInvalidClient = errors.New("invalid client")
	// ErrInvalidRedirectURI indicates the redirect URI fails validation
	// against the client's registered set. A hard stop: no code issuance
	// and no error redirect to the rejected URI.
	ErrInvalidRedirectURI = errors.New("invalid redirect uri")
	// ErrInvalidScope indicates a requested scope outside the client's
	// allowed set.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrClientExists indicates a registration collision.
	ErrClientExists = errors.New("client already registered")
)

const cacheTTL = 5 * time.Minute

// Registry provides client lookup on the authorization hot path and
// administrative registration off it. Lookups go through Redis; every
// administrative mutation invalidates the cached record.
type Registry struct {
	store     storage.ClientStore
	redis     *redis.Client
	namespace string
	hasher    *secrets.Hasher
	logger    *zap.Logger
}

// NewRegistry constructs a Registry. redisClient may be nil, disabling the
// cache layer (tests, local development).
func NewRegistry(store storage.ClientStore, redisClient *redis.Client, namespace string, hasher *secrets.Hasher, logger *zap.Logger) *Registry {
	return &Registry{
		store:     store,
		redis:     redisClient,
		namespace: namespace,
		hasher:    hasher,
		logger:    logger,
	}
}

// Lookup returns the active client record for clientID.
func (r *Registry) Lookup(ctx context.Context, clientID string) (*domain.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidClient
	}
	if client := r.cached(ctx, clientID); client != nil {
		if !client.Active {
			return nil, ErrInvalidClient
		}
		return client, nil
	}

	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	r.cacheSet(ctx, client)
	if !client.Active {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// VerifySecret checks a confidential client's secret in constant time.
func (r *Registry) VerifySecret(ctx context.Context, clientID, secret string) (*domain.Client, error) {
	client, err := r.Lookup(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.Confidential || client.ClientSecretHash == "" {
		return nil, ErrInvalidClient
	}
	if err := r.hasher.Compare(client.ClientSecretHash, secret); err != nil {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// ValidateRedirect checks the candidate URI against the client's registered
// patterns.
func (r *Registry) ValidateRedirect(client *domain.Client, candidate string) error {
	if !redirect.Matches(client.RedirectURIs, candidate) {
		return ErrInvalidRedirectURI
	}
	return nil
}

// CheckScopes verifies requested is a subset of the client's grantable set.
func (r *Registry) CheckScopes(client *domain.Client, requested domain.Scopes) error {
	if !requested.SubsetOf(client.Scopes) {
		return ErrInvalidScope
	}
	return nil
}

// RegisterInput captures an administrative client registration.
type RegisterInput struct {
	Name         string
	RedirectURIs []string
	Scopes       domain.Scopes
	Confidential bool
	Metadata     map[string]any
}

// Register creates a client. For confidential clients the generated plain
// secret is returned exactly once; only its hash is stored.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*domain.Client, string, error) {
	clientID, _, err := opaque.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("generate client id: %w", err)
	}

	var plainSecret, secretHash string
	if in.Confidential {
		plainSecret, _, err = opaque.Generate()
		if err != nil {
			return nil, "", fmt.Errorf("generate client secret: %w", err)
		}
		secretHash, err = r.hasher.Hash(plainSecret)
		if err != nil {
			return nil, "", fmt.Errorf("hash client secret: %w", err)
		}
	}

	client := &domain.Client{
		ID:               uuid.New(),
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		Name:             in.Name,
		RedirectURIs:     in.RedirectURIs,
		Scopes:           in.Scopes,
		Confidential:     in.Confidential,
		Active:           true,
		Metadata:         in.Metadata,
		CreatedAt:        time.Now().UTC(),
	}
	if err := r.store.CreateClient(ctx, client); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, "", ErrClientExists
		}
		return nil, "", fmt.Errorf("create client: %w", err)
	}
	return client, plainSecret, nil
}

// UpdateInput captures an administrative client update. Nil slices leave
// the existing value unchanged.
type UpdateInput struct {
	Name         string
	RedirectURIs []string
	Scopes       domain.Scopes
}

// Update applies an administrative update and invalidates the cache.
func (r *Registry) Update(ctx context.Context, clientID string, in UpdateInput) (*domain.Client, error) {
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if in.Name != "" {
		client.Name = in.Name
	}
	if in.RedirectURIs != nil {
		client.RedirectURIs = in.RedirectURIs
	}
	if in.Scopes != nil {
		client.Scopes = in.Scopes
	}
	if err := r.store.UpdateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	r.invalidate(ctx, clientID)
	return client, nil
}

// Deactivate soft-disables a client. Records are never deleted so the
// audit trail stays intact.
func (r *Registry) Deactivate(ctx context.Context, clientID string) error {
	client, err := r.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidClient
		}
		return fmt.Errorf("load client: %w", err)
	}
	client.Active = false
	if err := r.store.UpdateClient(ctx, client); err != nil {
		return fmt.Errorf("deactivate client: %w", err)
	}
	r.invalidate(ctx, clientID)
	return nil
}

// List returns all registered clients.
func (r *Registry) List(ctx context.Context) ([]*domain.Client, error) {
	return r.store.ListClients(ctx)
}

func (r *Registry) cacheKey(clientID string) string {
	return cache.Key(r.namespace, "client", clientID)
}

func (r *Registry) cached(ctx context.Context, clientID string) *domain.Client {
	if r.redis == nil {
		return nil
	}
	raw, err := r.redis.Get(ctx, r.cacheKey(clientID)).Bytes()
	if err != nil {
		return nil
	}
	var client clientRecord
	if err := json.Unmarshal(raw, &client); err != nil {
		return nil
	}
	return client.toDomain()
}

func (r *Registry) cacheSet(ctx context.Context, client *domain.Client) {
	if r.redis == nil {
		return
	}
	raw, err := json.Marshal(newClientRecord(client))
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, r.cacheKey(client.ClientID), raw, cacheTTL).Err(); err != nil {
		r.logger.Warn("failed to cache client record", zap.Error(err))
	}
}

func (r *Registry) invalidate(ctx context.Context, clientID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Del(ctx, r.cacheKey(clientID)).Err(); err != nil {
		r.logger.Warn("failed to invalidate client cache", zap.Error(err))
	}
}

// clientRecord is the cache wire form; it carries the secret hash, which
// the public JSON form of domain.Client deliberately omits.
type clientRecord struct {
	ID               uuid.UUID      `json:"id"`
	ClientID         string         `json:"client_id"`
	ClientSecretHash string         `json:"client_secret_hash"`
	Name             string         `json:"name"`
	RedirectURIs     []string       `json:"redirect_uris"`
	Scopes           []string       `json:"scopes"`
	Confidential     bool           `json:"confidential"`
	Active           bool           `json:"active"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func newClientRecord(client *domain.Client) clientRecord {
	return clientRecord{
		ID:               client.ID,
		ClientID:         client.ClientID,
		ClientSecretHash: client.ClientSecretHash,
		Name:             client.Name,
		RedirectURIs:     client.RedirectURIs,
		Scopes:           client.Scopes.Values(),
		Confidential:     client.Confidential,
		Active:           client.Active,
		Metadata:         client.Metadata,
		CreatedAt:        client.CreatedAt,
		UpdatedAt:        client.UpdatedAt,
	}
}

func (c clientRecord) toDomain() *domain.Client {
	return &domain.Client{
		ID:               c.ID,
		ClientID:         c.ClientID,
		ClientSecretHash: c.ClientSecretHash,
		Name:             c.Name,
		RedirectURIs:     c.RedirectURIs,
		Scopes:           domain.NewScopes(c.Scopes...),
		Confidential:     c.Confidential,
		Active:           c.Active,
		Metadata:         c.Metadata,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
