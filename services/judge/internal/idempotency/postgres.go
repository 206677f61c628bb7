package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTable = `CREATE TABLE IF NOT EXISTS processed_events (
	event_id   TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type postgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func newPostgresStore(ctx context.Context, pool *pgxpool.Pool, ttl time.Duration) (*postgresStore, error) {
	if _, err := pool.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create processed_events: %w", err)
	}
	return &postgresStore{pool: pool, ttl: ttl}, nil
}

// Seen ignores rows older than the TTL.
func (s *postgresStore) Seen(ctx context.Context, eventID string) (bool, error) {
	const q = `SELECT EXISTS (
	             SELECT 1 FROM processed_events
	             WHERE event_id = $1 AND created_at >= now() - make_interval(secs => $2))`

	var seen bool
	if err := s.pool.QueryRow(ctx, q, eventID, s.ttl.Seconds()).Scan(&seen); err != nil {
		return false, err
	}
	return seen, nil
}

// Mark upserts the row so an expired mark is refreshed.
func (s *postgresStore) Mark(ctx context.Context, eventID string) error {
	const q = `INSERT INTO processed_events (event_id, created_at)
	           VALUES ($1, now())
	           ON CONFLICT (event_id) DO UPDATE SET created_at = now()`

	_, err := s.pool.Exec(ctx, q, eventID)
	return err
}
