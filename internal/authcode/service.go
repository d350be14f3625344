// Package authcode issues and consumes single-use authorization codes.
package authcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/events"
	"github.com/peeap/identity-service/internal/metrics"
	"github.com/peeap/identity-service/internal/oauth/opaque"
	"github.com/peeap/identity-service/internal/oauth/pkce"
	"github.com/peeap/identity-service/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrInvalidGrant covers mismatched code/client/redirect at exchange.
	ErrInvalidGrant = errors.New("invalid grant")
	// ErrCodeExpired indicates the code's TTL elapsed before exchange.
	ErrCodeExpired = errors.New("authorization code expired")
	// ErrCodeAlreadyUsed indicates a replayed code.
	ErrCodeAlreadyUsed = errors.New("authorization code already used")
	// ErrPkceRequired indicates a public client authorized without PKCE.
	ErrPkceRequired = errors.New("pkce required for public clients")
	// ErrPkceMismatch indicates the verifier does not match the challenge.
	ErrPkceMismatch = errors.New("pkce verifier mismatch")
)

// Service mints and atomically consumes authorization codes.
type Service struct {
	registry *clients.Registry
	store    storage.CodeStore
	recorder events.Recorder
	metrics  *metrics.Metrics
	codeTTL  time.Duration
	logger   *zap.Logger
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Registry *clients.Registry
	Store    storage.CodeStore
	Recorder events.Recorder
	Metrics  *metrics.Metrics
	CodeTTL  time.Duration
	Logger   *zap.Logger
}

// New constructs the issuer.
func New(deps Dependencies) *Service {
	return &Service{
		registry: deps.Registry,
		store:    deps.Store,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		codeTTL:  deps.CodeTTL,
		logger:   deps.Logger,
	}
}

// IssueInput captures an authorization request that already carries an
// authenticated user identity.
type IssueInput struct {
	ClientID            string
	UserID              uuid.UUID
	RedirectURI         string
	Scopes              domain.Scopes
	CodeChallenge       string
	CodeChallengeMethod string
	Metadata            map[string]any
}

// Issue validates the request against the client record and mints a code.
// The plaintext code is returned once; only its hash is stored.
func (s *Service) Issue(ctx context.Context, in IssueInput) (string, *domain.AuthorizationCode, error) {
	client, err := s.registry.Lookup(ctx, in.ClientID)
	if err != nil {
		return "", nil, err
	}
	if err := s.registry.ValidateRedirect(client, in.RedirectURI); err != nil {
		return "", nil, err
	}
	if err := s.registry.CheckScopes(client, in.Scopes); err != nil {
		return "", nil, err
	}

	method := in.CodeChallengeMethod
	if in.CodeChallenge != "" {
		if method == "" {
			method = pkce.MethodPlain
		}
		if !pkce.ValidMethod(method) {
			return "", nil, pkce.ErrUnsupportedMethod
		}
	} else if !client.Confidential {
		return "", nil, ErrPkceRequired
	}

	plain, hash, err := opaque.Generate()
	if err != nil {
		return "", nil, fmt.Errorf("generate code: %w", err)
	}
	now := time.Now().UTC()
	code := &domain.AuthorizationCode{
		ID:                  uuid.New(),
		Code:                hash,
		ClientID:            client.ClientID,
		UserID:              in.UserID,
		RedirectURI:         in.RedirectURI,
		Scopes:              in.Scopes,
		CodeChallenge:       in.CodeChallenge,
		CodeChallengeMethod: method,
		Metadata:            in.Metadata,
		ExpiresAt:           now.Add(s.codeTTL),
		CreatedAt:           now,
	}
	if err := s.store.CreateCode(ctx, code); err != nil {
		return "", nil, fmt.Errorf("store code: %w", err)
	}

	s.metrics.CodesIssued.Inc()
	s.recorder.Record(ctx, events.Entry{
		Type:     domain.EventCodeIssued,
		ClientID: client.ClientID,
		UserID:   &in.UserID,
		Payload:  map[string]any{"scopes": in.Scopes.Values()},
	})
	return plain, code, nil
}

// ConsumeInput captures a token-endpoint exchange request.
type ConsumeInput struct {
	Code         string
	ClientID     string
	RedirectURI  string
	CodeVerifier string
}

// Grant is the result of a successful exchange.
type Grant struct {
	UserID   uuid.UUID
	ClientID string
	Scopes   domain.Scopes
	Metadata map[string]any
}

// Consume exchanges a code exactly once. Mismatched client, redirect, or
// PKCE leaves the code unconsumed; only a fully valid request transitions
// it, and concurrent valid requests resolve to a single winner through the
// store's conditional update.
func (s *Service) Consume(ctx context.Context, in ConsumeInput) (*Grant, error) {
	hash := opaque.Hash(in.Code)
	code, err := s.store.GetCode(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.fail(ctx, in.ClientID, "unknown_code", ErrInvalidGrant)
		}
		return nil, fmt.Errorf("load code: %w", err)
	}

	now := time.Now().UTC()
	if code.UsedAt != nil {
		return nil, s.fail(ctx, code.ClientID, "replay", ErrCodeAlreadyUsed)
	}
	if !now.Before(code.ExpiresAt) {
		return nil, s.fail(ctx, code.ClientID, "expired", ErrCodeExpired)
	}
	if code.ClientID != in.ClientID || code.RedirectURI != in.RedirectURI {
		return nil, s.fail(ctx, code.ClientID, "mismatch", ErrInvalidGrant)
	}
	if code.CodeChallenge != "" {
		if in.CodeVerifier == "" {
			return nil, s.fail(ctx, code.ClientID, "pkce", ErrPkceMismatch)
		}
		if err := pkce.Verify(code.CodeChallenge, code.CodeChallengeMethod, in.CodeVerifier); err != nil {
			return nil, s.fail(ctx, code.ClientID, "pkce", ErrPkceMismatch)
		}
	}

	// All checks passed; now race for the single-use transition.
	if err := s.store.MarkCodeUsed(ctx, hash, now); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyConsumed):
			// Lost the race, or expired between the read and the write.
			current, getErr := s.store.GetCode(ctx, hash)
			if getErr == nil && current.UsedAt == nil {
				return nil, s.fail(ctx, code.ClientID, "expired", ErrCodeExpired)
			}
			return nil, s.fail(ctx, code.ClientID, "replay", ErrCodeAlreadyUsed)
		case errors.Is(err, storage.ErrNotFound):
			return nil, s.fail(ctx, code.ClientID, "unknown_code", ErrInvalidGrant)
		default:
			return nil, fmt.Errorf("consume code: %w", err)
		}
	}

	s.metrics.CodesConsumed.Inc()
	s.recorder.Record(ctx, events.Entry{
		Type:     domain.EventCodeConsumed,
		ClientID: code.ClientID,
		UserID:   &code.UserID,
		Payload:  map[string]any{"scopes": code.Scopes.Values()},
	})
	return &Grant{
		UserID:   code.UserID,
		ClientID: code.ClientID,
		Scopes:   code.Scopes,
		Metadata: code.Metadata,
	}, nil
}

func (s *Service) fail(ctx context.Context, clientID, reason string, err error) error {
	s.metrics.CodeFailures.WithLabelValues(reason).Inc()
	s.recorder.Record(ctx, events.Entry{
		Type:     domain.EventCodeFailed,
		ClientID: clientID,
		Payload:  map[string]any{"reason": reason},
	})
	return err
}
