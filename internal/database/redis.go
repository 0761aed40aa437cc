package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/keystone/internal/config"
)

// NewRedis creates the session backend client from the given config and
// pings it with the same retry policy as MariaDB.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ping := func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	if err := pingWithRetry(ctx, "redis", ping); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
