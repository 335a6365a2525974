package database

import (
	"context"
	"fmt"
	"time"

	"github.com/healthharbor/prevcare/pkg/common/config"
	"github.com/healthharbor/prevcare/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// NewRedis builds a Redis client for the rate limiter. A failed ping is
// logged but not fatal; callers may fall back to in-process limiting.
func NewRedis(cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Log.WithError(err).Warn("Failed to connect to Redis")
	} else {
		logger.Log.Info("Connected to Redis")
	}

	return client
}
