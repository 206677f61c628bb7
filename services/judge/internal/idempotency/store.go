// Package idempotency deduplicates redelivered lifecycle notifications by
// event id.
//
// Primary backend: Redis keys with TTL.
// Fallback: Postgres processed_events upserts.
// If neither is available, an in-memory store is used (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Store remembers which events have been processed. Callers ask Seen before
// handling an event and Mark it only once handling succeeded, so a failed
// or interrupted attempt is always redelivered.
type Store interface {
	// Seen reports whether eventID was marked within the TTL.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Mark records eventID as processed.
	Mark(ctx context.Context, eventID string) error
}

const defaultTTL = 72 * time.Hour

type Options struct {
	Redis      redis.Cmdable
	Pool       *pgxpool.Pool
	Prefix     string
	TTL        time.Duration
	Production bool
}

// NewStore picks the best available backend: Redis > Postgres > in-memory.
// In production the in-memory fallback is refused.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	if opts.Prefix == "" {
		opts.Prefix = "judge"
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Redis != nil {
		return newRedisStore(opts.Redis, opts.Prefix, opts.TTL), nil
	}
	if opts.Pool != nil {
		pg, err := newPostgresStore(ctx, opts.Pool, opts.TTL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	if opts.Production {
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(opts.TTL), nil
}
