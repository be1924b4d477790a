package pkg

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/content-import-service/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient opens the client shared by the redis job store and the
// category cache. Startup fails when the server does not answer a PING
// within REDIS_CONNECT_TIMEOUT.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if cfg.Redis.PoolSize > 0 {
		opt.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.ConnectTimeout > 0 {
		opt.DialTimeout = cfg.Redis.ConnectTimeout
	}

	client := redis.NewClient(opt)

	pingCtx := ctx
	if cfg.Redis.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Redis.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s not reachable: %w", opt.Addr, err)
	}

	return client, nil
}
