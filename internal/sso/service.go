// Package sso relays sessions between first-party subdomains with
// very-short-lived single-use handoff tokens. No client secret is involved;
// trust comes from the configured app allow-list and the service-to-service
// authentication enforced at the HTTP layer.
package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/events"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/oauth/opaque"
	"github.com/peeap/identity-service/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrAppNotAllowed indicates a source or target app outside the
	// configured first-party allow-list.
	ErrAppNotAllowed = errors.New("app not in sso allow-list")
	// ErrTokenInvalid indicates an unknown handoff token.
	ErrTokenInvalid = errors.New("sso token invalid")
	// ErrTokenExpired indicates the handoff token's TTL elapsed.
	ErrTokenExpired = errors.New("sso token expired")
	// ErrTokenAlreadyUsed indicates a replayed handoff token.
	ErrTokenAlreadyUsed = errors.New("sso token already used")
)

// Service issues and exchanges first-party handoff tokens.
type Service struct {
	store    storage.SSOStore
	allowed  map[string]struct{}
	tokenTTL time.Duration
	recorder events.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New constructs the relay from the configured allow-list.
func New(store storage.SSOStore, allowedApps []string, tokenTTL time.Duration, recorder events.Recorder, m *metrics.Metrics, logger *zap.Logger) *Service {
	allowed := make(map[string]struct{}, len(allowedApps))
	for _, app := range allowedApps {
		allowed[app] = struct{}{}
	}
	return &Service{
		store:    store,
		allowed:  allowed,
		tokenTTL: tokenTTL,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
	}
}

// IssueInput captures a cross-subdomain handoff request.
type IssueInput struct {
	UserID       uuid.UUID
	SourceApp    string
	TargetApp    string
	RedirectPath string
	Scopes       domain.Scopes
}

// Issue mints a handoff token for a user moving between first-party apps.
func (s *Service) Issue(ctx context.Context, in IssueInput) (string, time.Time, error) {
	if _, ok := s.allowed[in.SourceApp]; !ok {
		return "", time.Time{}, ErrAppNotAllowed
	}
	if _, ok := s.allowed[in.TargetApp]; !ok {
		return "", time.Time{}, ErrAppNotAllowed
	}

	plain, hash, err := opaque.Generate()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate sso token: %w", err)
	}
	now := time.Now().UTC()
	token := &domain.SSOToken{
		ID:           uuid.New(),
		Token:        hash,
		UserID:       in.UserID,
		SourceApp:    in.SourceApp,
		TargetApp:    in.TargetApp,
		RedirectPath: in.RedirectPath,
		Scopes:       in.Scopes,
		ExpiresAt:    now.Add(s.tokenTTL),
		CreatedAt:    now,
	}
	if err := s.store.CreateSSOToken(ctx, token); err != nil {
		return "", time.Time{}, fmt.Errorf("store sso token: %w", err)
	}

	s.metrics.SSOIssued.Inc()
	s.recorder.Record(ctx, events.Entry{
		Type:   domain.EventSSOIssued,
		UserID: &in.UserID,
		Payload: map[string]any{
			"source_app": in.SourceApp,
			"target_app": in.TargetApp,
		},
	})
	return plain, token.ExpiresAt, nil
}

// Handoff is the result of a successful exchange.
type Handoff struct {
	UserID       uuid.UUID
	TargetApp    string
	RedirectPath string
	Scopes       domain.Scopes
}

// Exchange consumes a handoff token with the same single-use guarantee as
// authorization codes: under concurrent exchange exactly one caller wins.
func (s *Service) Exchange(ctx context.Context, token string) (*Handoff, error) {
	hash := opaque.Hash(token)
	row, err := s.store.GetSSOToken(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.fail(ctx, nil, "unknown_token", ErrTokenInvalid)
		}
		return nil, fmt.Errorf("load sso token: %w", err)
	}

	now := time.Now().UTC()
	if row.UsedAt != nil {
		return nil, s.fail(ctx, &row.UserID, "replay", ErrTokenAlreadyUsed)
	}
	if !now.Before(row.ExpiresAt) {
		return nil, s.fail(ctx, &row.UserID, "expired", ErrTokenExpired)
	}

	if err := s.store.MarkSSOTokenUsed(ctx, hash, now); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyConsumed):
			current, getErr := s.store.GetSSOToken(ctx, hash)
			if getErr == nil && current.UsedAt == nil {
				return nil, s.fail(ctx, &row.UserID, "expired", ErrTokenExpired)
			}
			return nil, s.fail(ctx, &row.UserID, "replay", ErrTokenAlreadyUsed)
		case errors.Is(err, storage.ErrNotFound):
			return nil, s.fail(ctx, &row.UserID, "unknown_token", ErrTokenInvalid)
		default:
			return nil, fmt.Errorf("consume sso token: %w", err)
		}
	}

	s.metrics.SSOExchanged.Inc()
	s.recorder.Record(ctx, events.Entry{
		Type:   domain.EventSSOExchanged,
		UserID: &row.UserID,
		Payload: map[string]any{
			"source_app": row.SourceApp,
			"target_app": row.TargetApp,
		},
	})
	return &Handoff{
		UserID:       row.UserID,
		TargetApp:    row.TargetApp,
		RedirectPath: row.RedirectPath,
		Scopes:       row.Scopes,
	}, nil
}

func (s *Service) fail(ctx context.Context, userID *uuid.UUID, reason string, err error) error {
	s.recorder.Record(ctx, events.Entry{
		Type:    domain.EventSSOFailed,
		UserID:  userID,
		Payload: map[string]any{"reason": reason},
	})
	return err
}
