package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
)

func (s *Store) GetConsent(ctx context.Context, userID uuid.UUID, clientID string) (*domain.Consent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		consent domain.Consent
		scopes  []string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, client_id, scopes, created_at, updated_at
		FROM consents WHERE user_id = $1 AND client_id = $2`,
		userID, clientID,
	).Scan(&consent.ID, &consent.UserID, &consent.ClientID, &scopes, &consent.CreatedAt, &consent.UpdatedAt)
	if err := mapError(err); err != nil {
		return nil, err
	}
	consent.Scopes = domain.NewScopes(scopes...)
	return &consent, nil
}

// UpsertConsent unions the new scopes into the stored grant in a single
// statement, so concurrent grants never lose scopes.
func (s *Store) UpsertConsent(ctx context.Context, userID uuid.UUID, clientID string, scopes domain.Scopes) (*domain.Consent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		consent domain.Consent
		merged  []string
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO consents (id, user_id, client_id, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, client_id) DO UPDATE
		SET scopes = ARRAY(SELECT DISTINCT s FROM unnest(consents.scopes || EXCLUDED.scopes) AS s ORDER BY s),
		    updated_at = now()
		RETURNING id, user_id, client_id, scopes, created_at, updated_at`,
		uuid.New(), userID, clientID, scopes.Values(),
	).Scan(&consent.ID, &consent.UserID, &consent.ClientID, &merged, &consent.CreatedAt, &consent.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert consent: %w", err)
	}
	consent.Scopes = domain.NewScopes(merged...)
	return &consent, nil
}

func (s *Store) DeleteConsent(ctx context.Context, userID uuid.UUID, clientID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM consents WHERE user_id = $1 AND client_id = $2`, userID, clientID,
	); err != nil {
		return fmt.Errorf("delete consent: %w", err)
	}
	return nil
}
