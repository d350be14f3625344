package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
)

const tokenColumns = `id, access_token_hash, COALESCE(refresh_token_hash, ''), client_id,
	user_id, scopes, expires_at, refresh_expires_at, revoked_at, created_at`

func (s *Store) CreateToken(ctx context.Context, token *domain.Token) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens
			(id, access_token_hash, refresh_token_hash, client_id, user_id, scopes, expires_at, refresh_expires_at, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		token.ID, token.AccessTokenHash, token.RefreshTokenHash, token.ClientID,
		token.UserID, token.Scopes.Values(), token.ExpiresAt, token.RefreshExpiresAt,
		token.CreatedAt,
	)
	if err := mapError(err); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *Store) GetByAccessHash(ctx context.Context, hash string) (*domain.Token, error) {
	return s.getToken(ctx, `access_token_hash = $1`, hash)
}

func (s *Store) GetByRefreshHash(ctx context.Context, hash string) (*domain.Token, error) {
	return s.getToken(ctx, `refresh_token_hash = $1`, hash)
}

func (s *Store) getToken(ctx context.Context, predicate string, hash string) (*domain.Token, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		token  domain.Token
		scopes []string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE `+predicate, hash,
	).Scan(
		&token.ID, &token.AccessTokenHash, &token.RefreshTokenHash, &token.ClientID,
		&token.UserID, &scopes, &token.ExpiresAt, &token.RefreshExpiresAt,
		&token.RevokedAt, &token.CreatedAt,
	)
	if err := mapError(err); err != nil {
		return nil, err
	}
	token.Scopes = domain.NewScopes(scopes...)
	return &token, nil
}

// RevokeByRefreshHash is the rotation guard: the revoked_at IS NULL
// predicate makes exactly one concurrent rotation succeed.
func (s *Store) RevokeByRefreshHash(ctx context.Context, hash string, now time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		UPDATE tokens SET revoked_at = $2
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL`,
		hash, now,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tokens WHERE refresh_token_hash = $1)`, hash,
	).Scan(&exists); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrAlreadyConsumed
}

func (s *Store) RevokeByHash(ctx context.Context, hash string, now time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		UPDATE tokens SET revoked_at = $2
		WHERE (access_token_hash = $1 OR refresh_token_hash = $1) AND revoked_at IS NULL`,
		hash, now,
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tokens WHERE id IN (
			SELECT id FROM tokens
			WHERE GREATEST(expires_at, refresh_expires_at) < $1
			LIMIT $2
		)`, cutoff, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
