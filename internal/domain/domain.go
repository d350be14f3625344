package domain

import (
	"time"

	"github.com/google/uuid"
)

// Client is a registered OAuth or first-party application.
type Client struct {
	ID               uuid.UUID      `json:"id"`
	ClientID         string         `json:"client_id"`
	ClientSecretHash string         `json:"-"`
	Name             string         `json:"name"`
	RedirectURIs     []string       `json:"redirect_uris"`
	Scopes           Scopes         `json:"scopes"`
	Confidential     bool           `json:"confidential"`
	Active           bool           `json:"active"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// AuthorizationCode is a short-lived single-use grant credential.
type AuthorizationCode struct {
	ID                  uuid.UUID
	Code                string
	ClientID            string
	UserID              uuid.UUID
	RedirectURI         string
	Scopes              Scopes
	CodeChallenge       string
	CodeChallengeMethod string
	Metadata            map[string]any
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}

// Token is one issuance event holding an access/refresh pair. The refresh
// token is empty for grants that do not receive one.
type Token struct {
	ID               uuid.UUID
	AccessTokenHash  string
	RefreshTokenHash string
	ClientID         string
	UserID           uuid.UUID
	Scopes           Scopes
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// AccessValid reports whether the access token is usable at the given instant.
func (t *Token) AccessValid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RefreshValid reports whether the refresh token is usable at the given instant.
func (t *Token) RefreshValid(now time.Time) bool {
	return t.RefreshTokenHash != "" && t.RevokedAt == nil && now.Before(t.RefreshExpiresAt)
}

// Consent records the cumulative scopes a user has approved for a client.
type Consent struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ClientID  string
	Scopes    Scopes
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SSOToken is a first-party cross-subdomain handoff credential. It shares
// the single-use lifecycle of AuthorizationCode but never involves a client
// secret exchange.
type SSOToken struct {
	ID           uuid.UUID
	Token        string
	UserID       uuid.UUID
	SourceApp    string
	TargetApp    string
	RedirectPath string
	Scopes       Scopes
	ExpiresAt    time.Time
	UsedAt       *time.Time
	CreatedAt    time.Time
}

// WebhookEndpoint is a per-client delivery target for lifecycle events.
type WebhookEndpoint struct {
	ID        uuid.UUID
	ClientID  string
	URL       string
	Secret    string
	Events    []string
	Active    bool
	CreatedAt time.Time
}

// SubscribedTo reports whether the endpoint wants the given event type.
func (e *WebhookEndpoint) SubscribedTo(event string) bool {
	for _, ev := range e.Events {
		if ev == event || ev == "*" {
			return true
		}
	}
	return false
}

// Event is an audit record of a lifecycle transition with its webhook
// delivery bookkeeping.
type Event struct {
	ID         uuid.UUID
	Type       string
	ClientID   string
	UserID     *uuid.UUID
	Payload    map[string]any
	Delivered  bool
	Attempts   int
	LastError  string
	OccurredAt time.Time
}

// Lifecycle event types recorded by the event logger.
const (
	EventCodeIssued     = "code.issued"
	EventCodeConsumed   = "code.consumed"
	EventCodeFailed     = "code.failed"
	EventTokenIssued    = "token.issued"
	EventTokenRotated   = "token.rotated"
	EventTokenRevoked   = "token.revoked"
	EventTokenFailed    = "token.failed"
	EventConsentGranted = "consent.granted"
	EventConsentRevoked = "consent.revoked"
	EventSSOIssued      = "sso.issued"
	EventSSOExchanged   = "sso.exchanged"
	EventSSOFailed      = "sso.failed"
)
