// internal/replay/redis.go
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"recaptcha-gate/internal/common/config"
)

// RedisStore is the shared Store for multi-instance deployments. SetNX with
// a TTL gives the first-use check atomically.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	return &RedisStore{client: rdb}
}

// Ping tests the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) MarkUsed(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	fresh, err := s.client.SetNX(ctx, tokenKey(token), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return fresh, nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
