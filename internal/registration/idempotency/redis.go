package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "checkin:idem:"
	pendingMarker = "__pending__"
)

// Redis shares keys across server replicas.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Reserve(ctx context.Context, key string, ttl time.Duration) (Outcome, string, error) {
	k := keyPrefix + key
	// Two rounds: the key can expire between a failed SETNX and the GET.
	for range 2 {
		ok, err := s.client.SetNX(ctx, k, pendingMarker, ttl).Result()
		if err != nil {
			return 0, "", fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			return Reserved, "", nil
		}
		val, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, "", fmt.Errorf("redis get: %w", err)
		}
		if val == pendingMarker {
			return InFlight, "", nil
		}
		return Completed, val, nil
	}
	return InFlight, "", nil
}

func (s *Redis) Complete(ctx context.Context, key, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, code, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Redis) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
