package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis from a redis:// URL or a host:port address
func NewRedisClient(ctx context.Context, logger *slog.Logger, cfg *config.RedisConfig) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: cfg.URL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info("Connected to Redis")
	return client, nil
}
