package redis

import (
	"context"
	"fmt"
	"time"

	"aquarium-monitor/internal/common/config"

	"github.com/go-redis/redis/v8"
)

// Client alias so callers do not import go-redis directly for the type
type Client = redis.Client

// NewRedisClient creates a go-redis client from config; it does not dial
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
}

// Connect creates a client and pings it; the client is closed on failure
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := NewRedisClient(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Close closes client if not nil
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
