package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
)

func (s *Store) CreateEndpoint(ctx context.Context, endpoint *domain.WebhookEndpoint) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_endpoints (id, client_id, url, secret, events, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		endpoint.ID, endpoint.ClientID, endpoint.URL, endpoint.Secret,
		endpoint.Events, endpoint.Active, endpoint.CreatedAt,
	)
	if err := mapError(err); err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context) ([]*domain.WebhookEndpoint, error) {
	return s.queryEndpoints(ctx, `
		SELECT id, client_id, url, secret, events, active, created_at
		FROM webhook_endpoints ORDER BY created_at`)
}

func (s *Store) ActiveEndpointsForClient(ctx context.Context, clientID string) ([]*domain.WebhookEndpoint, error) {
	return s.queryEndpoints(ctx, `
		SELECT id, client_id, url, secret, events, active, created_at
		FROM webhook_endpoints
		WHERE active AND (client_id = $1 OR client_id = '')`, clientID)
}

func (s *Store) queryEndpoints(ctx context.Context, sql string, args ...any) ([]*domain.WebhookEndpoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhook endpoints: %w", err)
	}
	defer rows.Close()

	var out []*domain.WebhookEndpoint
	for rows.Next() {
		var endpoint domain.WebhookEndpoint
		if err := rows.Scan(
			&endpoint.ID, &endpoint.ClientID, &endpoint.URL, &endpoint.Secret,
			&endpoint.Events, &endpoint.Active, &endpoint.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		out = append(out, &endpoint)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateEndpoint(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_endpoints SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
