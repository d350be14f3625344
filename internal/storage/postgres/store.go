// Package postgres implements the storage contracts on PostgreSQL via pgx.
// The single-use and rotation guarantees are enforced with conditional
// UPDATE statements whose predicates are re-evaluated at write time, so they
// hold across concurrent requests and service replicas.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/peeap/identity-service/internal/storage"
)

const uniqueViolation = "23505"

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// New constructs a Store. queryTimeout bounds every statement; storage
// timeouts surface to callers as hard failures.
func New(pool *pgxpool.Pool, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &Store{pool: pool, queryTimeout: queryTimeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrConflict
	}
	return err
}
