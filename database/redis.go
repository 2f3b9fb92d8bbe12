package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mabletask/tracker/config"
	"mabletask/tracker/logger"
)

// ErrEmptyRedisAddress is returned when Redis is enabled without an address.
var ErrEmptyRedisAddress = errors.New("redis address is required")

// NewRedisClient connects to the Redis instance holding last-visit markers.
func NewRedisClient(cfg config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyRedisAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("Connected to Redis", logger.String("address", cfg.Address))
	return client, nil
}
