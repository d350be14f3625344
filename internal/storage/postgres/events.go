package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
)

func (s *Store) AppendEvent(ctx context.Context, event *domain.Event) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (id, type, client_id, user_id, payload, delivered, attempts, last_error, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.Type, event.ClientID, event.UserID, event.Payload,
		event.Delivered, event.Attempts, event.LastError, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) UpdateEventDelivery(ctx context.Context, id uuid.UUID, delivered bool, attempts int, lastError string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		UPDATE events SET delivered = $2, attempts = $3, last_error = $4 WHERE id = $1`,
		id, delivered, attempts, lastError,
	)
	if err != nil {
		return fmt.Errorf("update event delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, client_id, user_id, COALESCE(payload, '{}'::jsonb), delivered, attempts, last_error, occurred_at
		FROM events ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(
			&event.ID, &event.Type, &event.ClientID, &event.UserID, &event.Payload,
			&event.Delivered, &event.Attempts, &event.LastError, &event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, &event)
	}
	return out, rows.Err()
}
