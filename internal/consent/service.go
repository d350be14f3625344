// Package consent tracks which scopes a user has approved for a client.
package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/events"
	"github.com/peeap/identity-service/internal/storage"
)

// Service provides consent lookup and idempotent grants. Grants only ever
// widen the consented set; shrinking is the explicit Revoke administrative
// operation.
type Service struct {
	store    storage.ConsentStore
	recorder events.Recorder
}

// New constructs a Service.
func New(store storage.ConsentStore, recorder events.Recorder) *Service {
	return &Service{store: store, recorder: recorder}
}

// ConsentedScopes returns the cumulative approved set, empty when the user
// has never consented to the client.
func (s *Service) ConsentedScopes(ctx context.Context, userID uuid.UUID, clientID string) (domain.Scopes, error) {
	consent, err := s.store.GetConsent(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Scopes{}, nil
		}
		return nil, fmt.Errorf("load consent: %w", err)
	}
	return consent.Scopes, nil
}

// IsGranted reports whether requested is already covered by prior consent,
// allowing the interactive prompt to be skipped.
func (s *Service) IsGranted(ctx context.Context, userID uuid.UUID, clientID string, requested domain.Scopes) (bool, error) {
	consented, err := s.ConsentedScopes(ctx, userID, clientID)
	if err != nil {
		return false, err
	}
	return requested.SubsetOf(consented), nil
}

// Grant unions scopes into the stored consent. Idempotent.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, clientID string, scopes domain.Scopes) (*domain.Consent, error) {
	consent, err := s.store.UpsertConsent(ctx, userID, clientID, scopes)
	if err != nil {
		return nil, fmt.Errorf("grant consent: %w", err)
	}
	s.recorder.Record(ctx, events.Entry{
		Type:     domain.EventConsentGranted,
		ClientID: clientID,
		UserID:   &userID,
		Payload:  map[string]any{"scopes": scopes.Values()},
	})
	return consent, nil
}

// Revoke removes the consent record entirely. Administrative operation.
func (s *Service) Revoke(ctx context.Context, userID uuid.UUID, clientID string) error {
	if err := s.store.DeleteConsent(ctx, userID, clientID); err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	s.recorder.Record(ctx, events.Entry{
		Type:     domain.EventConsentRevoked,
		ClientID: clientID,
		UserID:   &userID,
	})
	return nil
}
