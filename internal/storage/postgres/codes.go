package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
)

func (s *Store) CreateCode(ctx context.Context, code *domain.AuthorizationCode) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO authorization_codes
			(id, code_hash, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, metadata, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		code.ID, code.Code, code.ClientID, code.UserID, code.RedirectURI,
		code.Scopes.Values(), code.CodeChallenge, code.CodeChallengeMethod,
		code.Metadata, code.ExpiresAt, code.CreatedAt,
	)
	if err := mapError(err); err != nil {
		return fmt.Errorf("insert authorization code: %w", err)
	}
	return nil
}

func (s *Store) GetCode(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		code   domain.AuthorizationCode
		scopes []string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, code_hash, client_id, user_id, redirect_uri, scopes, code_challenge,
		       code_challenge_method, COALESCE(metadata, '{}'::jsonb), expires_at, used_at, created_at
		FROM authorization_codes WHERE code_hash = $1`, codeHash,
	).Scan(
		&code.ID, &code.Code, &code.ClientID, &code.UserID, &code.RedirectURI,
		&scopes, &code.CodeChallenge, &code.CodeChallengeMethod, &code.Metadata,
		&code.ExpiresAt, &code.UsedAt, &code.CreatedAt,
	)
	if err := mapError(err); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get authorization code: %w", err)
	}
	code.Scopes = domain.NewScopes(scopes...)
	return &code, nil
}

// MarkCodeUsed performs the atomic single-use transition. The predicate is
// part of the statement so only one concurrent exchange can win.
func (s *Store) MarkCodeUsed(ctx context.Context, codeHash string, now time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		UPDATE authorization_codes SET used_at = $2
		WHERE code_hash = $1 AND used_at IS NULL AND expires_at > $2`,
		codeHash, now,
	)
	if err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM authorization_codes WHERE code_hash = $1)`, codeHash,
	).Scan(&exists); err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrAlreadyConsumed
}

func (s *Store) DeleteExpiredCodes(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM authorization_codes WHERE id IN (
			SELECT id FROM authorization_codes WHERE expires_at < $1 LIMIT $2
		)`, cutoff, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
