package allocator

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkin:seq:"

// raiseScript sets the counter to ARGV[1] unless it is already higher.
var raiseScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if floor > current then
  redis.call("SET", KEYS[1], floor)
  return floor
end
return current
`)

// RedisSource keeps per-tag counters in Redis with INCR. Seed it from the
// store's high-water mark on start-up so a fresh Redis cannot reissue codes.
type RedisSource struct {
	client redis.UniversalClient
}

func NewRedisSource(client redis.UniversalClient) *RedisSource {
	return &RedisSource{client: client}
}

func (s *RedisSource) Next(ctx context.Context, tag string) (int64, error) {
	n, err := s.client.Incr(ctx, keyPrefix+tag).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// Seed raises the counter for tag to at least floor.
func (s *RedisSource) Seed(ctx context.Context, tag string, floor int64) error {
	if err := raiseScript.Run(ctx, s.client, []string{keyPrefix + tag}, floor).Err(); err != nil {
		return fmt.Errorf("redis seed %s: %w", tag, err)
	}
	return nil
}

// Current returns the last issued value for tag, 0 when none.
func (s *RedisSource) Current(ctx context.Context, tag string) (int64, error) {
	n, err := s.client.Get(ctx, keyPrefix+tag).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}
