package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps go-redis client with optional logger.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Redis client connected", zap.String("addr", addr))
	return &Client{Client: rdb, logger: logger}, nil
}

// NewOptional creates a Redis client, returning nil (not an error) when the
// server is unreachable. Callers treat a nil client as "single-process mode"
// and fall back to in-memory state services.
func NewOptional(ctx context.Context, addr, password string, db int, logger *zap.Logger) *Client {
	c, err := NewClient(ctx, addr, password, db, logger)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-process state", zap.String("addr", addr), zap.Error(err))
		return nil
	}
	return c
}
