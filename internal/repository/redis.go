package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/fundgate/internal/config"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "fundgate"

// RedisClient is shared by the gateway's Redis-backed stores. Every key they
// write lives under one namespace, so several ledgers can share a server.
type RedisClient struct {
	Client *redis.Client
	prefix string
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := strings.Trim(cfg.Redis.KeyPrefix, ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisClient{Client: rdb, prefix: prefix}, nil
}

// Key joins parts under the client's namespace, e.g. fundgate:idem:desk:1.
func (r *RedisClient) Key(parts ...string) string {
	return r.prefix + ":" + strings.Join(parts, ":")
}

// Ping reports whether the server answers within the context deadline.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}
