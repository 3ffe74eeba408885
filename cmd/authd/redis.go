package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/pkg/logger"
)

// newRedisClient connects to Redis for the shared rate-limit counters.
// Returns nil when Redis is unreachable so callers fall back to the
// in-memory store.
func newRedisClient(cfg *config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, using in-memory rate limits")
		client.Close()
		return nil
	}
	return client
}
