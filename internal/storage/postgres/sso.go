package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
)

func (s *Store) CreateSSOToken(ctx context.Context, token *domain.SSOToken) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sso_tokens
			(id, token_hash, user_id, source_app, target_app, redirect_path, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		token.ID, token.Token, token.UserID, token.SourceApp, token.TargetApp,
		token.RedirectPath, token.Scopes.Values(), token.ExpiresAt, token.CreatedAt,
	)
	if err := mapError(err); err != nil {
		return fmt.Errorf("insert sso token: %w", err)
	}
	return nil
}

func (s *Store) GetSSOToken(ctx context.Context, tokenHash string) (*domain.SSOToken, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		token  domain.SSOToken
		scopes []string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, token_hash, user_id, source_app, target_app, redirect_path, scopes, expires_at, used_at, created_at
		FROM sso_tokens WHERE token_hash = $1`, tokenHash,
	).Scan(
		&token.ID, &token.Token, &token.UserID, &token.SourceApp, &token.TargetApp,
		&token.RedirectPath, &scopes, &token.ExpiresAt, &token.UsedAt, &token.CreatedAt,
	)
	if err := mapError(err); err != nil {
		return nil, err
	}
	token.Scopes = domain.NewScopes(scopes...)
	return &token, nil
}

func (s *Store) MarkSSOTokenUsed(ctx context.Context, tokenHash string, now time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		UPDATE sso_tokens SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2`,
		tokenHash, now,
	)
	if err != nil {
		return fmt.Errorf("mark sso token used: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sso_tokens WHERE token_hash = $1)`, tokenHash,
	).Scan(&exists); err != nil {
		return fmt.Errorf("mark sso token used: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrAlreadyConsumed
}

func (s *Store) DeleteExpiredSSOTokens(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sso_tokens WHERE id IN (
			SELECT id FROM sso_tokens WHERE expires_at < $1 LIMIT $2
		)`, cutoff, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired sso tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
