package postgres

import (
	"context"
	"fmt"

	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
)

const clientColumns = `id, client_id, client_secret_hash, name, redirect_uris, scopes,
	confidential, active, COALESCE(metadata, '{}'::jsonb), created_at, updated_at`

func (s *Store) CreateClient(ctx context.Context, client *domain.Client) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_clients (id, client_id, client_secret_hash, name, redirect_uris, scopes, confidential, active, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		client.ID, client.ClientID, client.ClientSecretHash, client.Name,
		client.RedirectURIs, client.Scopes.Values(), client.Confidential,
		client.Active, client.Metadata, client.CreatedAt,
	)
	if err := mapError(err); err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	row := s.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM oauth_clients WHERE client_id = $1`, clientID)
	return scanClient(row)
}

func (s *Store) UpdateClient(ctx context.Context, client *domain.Client) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		UPDATE oauth_clients
		SET client_secret_hash = $2, name = $3, redirect_uris = $4, scopes = $5,
		    confidential = $6, active = $7, metadata = $8, updated_at = now()
		WHERE client_id = $1`,
		client.ClientID, client.ClientSecretHash, client.Name, client.RedirectURIs,
		client.Scopes.Values(), client.Confidential, client.Active, client.Metadata,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListClients(ctx context.Context) ([]*domain.Client, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM oauth_clients ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []*domain.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, client)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*domain.Client, error) {
	var (
		client domain.Client
		scopes []string
	)
	err := row.Scan(
		&client.ID, &client.ClientID, &client.ClientSecretHash, &client.Name,
		&client.RedirectURIs, &scopes, &client.Confidential, &client.Active,
		&client.Metadata, &client.CreatedAt, &client.UpdatedAt,
	)
	if err := mapError(err); err != nil {
		return nil, fmt.Errorf("scan client: %w", err)
	}
	client.Scopes = domain.NewScopes(scopes...)
	return &client, nil
}
