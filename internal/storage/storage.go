// Package storage defines the persistence contracts for the federation core.
// All correctness-critical transitions (single-use consumption, refresh
// rotation) are expressed as conditional updates so implementations can
// guarantee exactly-once semantics across service replicas.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict indicates a uniqueness violation on insert.
	ErrConflict = errors.New("storage: conflict")
	// ErrAlreadyConsumed indicates a conditional consume/revoke update
	// matched no row because the predicate no longer holds.
	ErrAlreadyConsumed = errors.New("storage: already consumed")
)

// ClientStore persists registered client applications.
type ClientStore interface {
	CreateClient(ctx context.Context, client *domain.Client) error
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	UpdateClient(ctx context.Context, client *domain.Client) error
	ListClients(ctx context.Context) ([]*domain.Client, error)
}

// CodeStore persists authorization codes. Codes are stored hashed; lookups
// take the hash of the presented code.
type CodeStore interface {
	CreateCode(ctx context.Context, code *domain.AuthorizationCode) error
	GetCode(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error)
	// MarkCodeUsed sets used_at iff it is still null and the code is
	// unexpired at now. Returns ErrAlreadyConsumed when the predicate
	// fails, guaranteeing exactly one concurrent caller succeeds.
	MarkCodeUsed(ctx context.Context, codeHash string, now time.Time) error
	DeleteExpiredCodes(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// TokenStore persists access/refresh token issuance rows.
type TokenStore interface {
	CreateToken(ctx context.Context, token *domain.Token) error
	GetByAccessHash(ctx context.Context, hash string) (*domain.Token, error)
	GetByRefreshHash(ctx context.Context, hash string) (*domain.Token, error)
	// RevokeByRefreshHash sets revoked_at iff it is still null. Returns
	// ErrAlreadyConsumed when the token was already revoked, so concurrent
	// rotation attempts resolve to a single winner.
	RevokeByRefreshHash(ctx context.Context, hash string, now time.Time) error
	// RevokeByHash revokes the row whose access or refresh hash matches.
	// Unknown or already-revoked hashes are a no-op, not an error.
	RevokeByHash(ctx context.Context, hash string, now time.Time) error
	DeleteExpiredTokens(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// ConsentStore persists cumulative per (user, client) scope grants.
type ConsentStore interface {
	GetConsent(ctx context.Context, userID uuid.UUID, clientID string) (*domain.Consent, error)
	// UpsertConsent unions scopes into the existing grant, creating the row
	// if absent. Idempotent.
	UpsertConsent(ctx context.Context, userID uuid.UUID, clientID string, scopes domain.Scopes) (*domain.Consent, error)
	DeleteConsent(ctx context.Context, userID uuid.UUID, clientID string) error
}

// SSOStore persists first-party handoff tokens, stored hashed.
type SSOStore interface {
	CreateSSOToken(ctx context.Context, token *domain.SSOToken) error
	GetSSOToken(ctx context.Context, tokenHash string) (*domain.SSOToken, error)
	// MarkSSOTokenUsed has the same single-winner contract as MarkCodeUsed.
	MarkSSOTokenUsed(ctx context.Context, tokenHash string, now time.Time) error
	DeleteExpiredSSOTokens(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// WebhookStore persists webhook endpoint registrations.
type WebhookStore interface {
	CreateEndpoint(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	ListEndpoints(ctx context.Context) ([]*domain.WebhookEndpoint, error)
	// ActiveEndpointsForClient returns active endpoints registered for the
	// client plus tenant-wide endpoints (empty client_id).
	ActiveEndpointsForClient(ctx context.Context, clientID string) ([]*domain.WebhookEndpoint, error)
	DeactivateEndpoint(ctx context.Context, id uuid.UUID) error
}

// EventStore is the append-only audit log with delivery bookkeeping.
type EventStore interface {
	AppendEvent(ctx context.Context, event *domain.Event) error
	UpdateEventDelivery(ctx context.Context, id uuid.UUID, delivered bool, attempts int, lastError string) error
	ListRecentEvents(ctx context.Context, limit int) ([]*domain.Event, error)
}

// Store aggregates all persistence contracts backing the service.
type Store interface {
	ClientStore
	CodeStore
	TokenStore
	ConsentStore
	SSOStore
	WebhookStore
	EventStore
}
