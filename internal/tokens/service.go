// Package tokens manages opaque access/refresh token pairs.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/config"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/events"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/oauth/opaque"
	"github.com/peeap/identity-service/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrInvalidGrant covers unknown, revoked, expired, or already-rotated
	// refresh tokens presented at the token endpoint.
	ErrInvalidGrant = errors.New("invalid grant")
	// ErrTokenExpired indicates an access token past its TTL.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked indicates a revoked access token.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenInvalid indicates an unknown access token.
	ErrTokenInvalid = errors.New("token invalid")
)

// Service issues, validates, rotates, and revokes token pairs.
type Service struct {
	store    storage.TokenStore
	recorder events.Recorder
	metrics  *metrics.Metrics
	cfg      config.TokenConfig
	logger   *zap.Logger
}

// New constructs the token manager.
func New(store storage.TokenStore, recorder events.Recorder, m *metrics.Metrics, cfg config.TokenConfig, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		recorder: recorder,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

// Pair is a freshly issued plaintext token pair. RefreshToken is empty for
// non-refreshable grants.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       domain.Scopes
}

// Issue mints a new opaque pair for a user/client grant. withRefresh is
// false for public clients unless explicitly allowed.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID, clientID string, scopes domain.Scopes, withRefresh bool) (*Pair, error) {
	access, accessHash, err := opaque.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	var refresh, refreshHash string
	if withRefresh {
		refresh, refreshHash, err = opaque.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate refresh token: %w", err)
		}
	}

	now := time.Now().UTC()
	token := &domain.Token{
		ID:               uuid.New(),
		AccessTokenHash:  accessHash,
		RefreshTokenHash: refreshHash,
		ClientID:         clientID,
		UserID:           userID,
		Scopes:           scopes,
		ExpiresAt:        now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt:        now,
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	s.metrics.TokensIssued.Inc()
	s.recorder.Record(ctx, events.Entry{
		Type:     domain.EventTokenIssued,
		ClientID: clientID,
		UserID:   &userID,
		Payload:  map[string]any{"scopes": scopes.Values(), "refreshable": withRefresh},
	})
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    token.ExpiresAt,
		Scopes:       scopes,
	}, nil
}

// Identity is the resolved principal behind a valid access token.
type Identity struct {
	UserID   uuid.UUID
	ClientID string
	Scopes   domain.Scopes
}

// ValidateAccess resolves an access token, re-checking revocation and
// expiry directly so a stalled reaper never widens validity.
func (s *Service) ValidateAccess(ctx context.Context, token string) (*Identity, error) {
	row, err := s.store.GetByAccessHash(ctx, opaque.Hash(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	now := time.Now().UTC()
	if row.RevokedAt != nil {
		return nil, ErrTokenRevoked
	}
	if !now.Before(row.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return &Identity{UserID: row.UserID, ClientID: row.ClientID, Scopes: row.Scopes}, nil
}

// Rotate exchanges a refresh token for a new pair, revoking the old row in
// the same logical step. The conditional revoke makes exactly one
// concurrent rotation succeed; losers get ErrInvalidGrant. The token must
// have been issued to clientID.
func (s *Service) Rotate(ctx context.Context, refreshToken, clientID string) (*Pair, error) {
	hash := opaque.Hash(refreshToken)
	row, err := s.store.GetByRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	now := time.Now().UTC()
	if row.ClientID != clientID || !row.RefreshValid(now) {
		return nil, s.rotationFailed(ctx, row, ErrInvalidGrant)
	}
	if err := s.store.RevokeByRefreshHash(ctx, hash, now); err != nil {
		if errors.Is(err, storage.ErrAlreadyConsumed) || errors.Is(err, storage.ErrNotFound) {
			return nil, s.rotationFailed(ctx, row, ErrInvalidGrant)
		}
		return nil, fmt.Errorf("revoke rotated token: %w", err)
	}

	pair, err := s.Issue(ctx, row.UserID, row.ClientID, row.Scopes, true)
	if err != nil {
		return nil, err
	}
	s.metrics.TokensRotated.Inc()
	s.recorder.Record(ctx, events.Entry{
		Type:     domain.EventTokenRotated,
		ClientID: row.ClientID,
		UserID:   &row.UserID,
	})
	return pair, nil
}

// Revoke marks the token row matching the presented access or refresh
// token. Idempotent: unknown and already-revoked tokens are a no-op
// success so error codes never reveal whether a token exists.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	now := time.Now().UTC()
	if err := s.store.RevokeByHash(ctx, opaque.Hash(token), now); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.metrics.TokensRevoked.Inc()
	s.recorder.Record(ctx, events.Entry{Type: domain.EventTokenRevoked})
	return nil
}

func (s *Service) rotationFailed(ctx context.Context, row *domain.Token, err error) error {
	s.recorder.Record(ctx, events.Entry{
		Type:     domain.EventTokenFailed,
		ClientID: row.ClientID,
		UserID:   &row.UserID,
		Payload:  map[string]any{"reason": "refresh_rejected"},
	})
	return err
}
