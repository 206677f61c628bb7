package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func newRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *redisStore {
	return &redisStore{client: client, prefix: prefix + ":idempotent:", ttl: ttl}
}

func (s *redisStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) Mark(ctx context.Context, eventID string) error {
	return s.client.Set(ctx, s.prefix+eventID, 1, s.ttl).Err()
}
