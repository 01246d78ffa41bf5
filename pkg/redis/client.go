package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dialTimeout = 5 * time.Second

// Options locates the Redis instance that carries collection change events.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int // 0 keeps the go-redis default
}

func (o Options) redisOptions() *redis.Options {
	return &redis.Options{
		Addr:        o.Addr,
		Password:    o.Password,
		DB:          o.DB,
		PoolSize:    o.PoolSize,
		DialTimeout: dialTimeout,
		ClientName:  "campus-gigs",
	}
}

// Client wraps the go-redis client used for collection change fan-out.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// NewClient connects to Redis and fails unless a PING succeeds.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(opts.redisOptions())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	logger.Info("Redis client connected",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("pool_size", rdb.Options().PoolSize),
	)
	return &Client{Client: rdb, logger: logger}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if err := c.Client.Close(); err != nil {
		c.logger.Warn("redis close", zap.Error(err))
		return err
	}
	return nil
}
