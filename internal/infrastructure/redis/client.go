package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrotrack/plotmanager/internal/reliability/circuitbreaker"
)

// Client wraps the Redis client. Reads and writes go through a circuit
// breaker.
type Client struct {
	rdb     *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connected", slog.String("addr", opts.Addr))
	return NewFromRedis(rdb, logger), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.New(5, 1, 10*time.Second)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("redis circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &Client{rdb: rdb, breaker: breaker, logger: logger}
}

// Set stores a value with optional TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.breaker.Execute(func() error {
		return c.rdb.Set(ctx, key, value, ttl).Err()
	})
}

// Exists reports whether key is present
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := c.breaker.Execute(func() error {
		var err error
		n, err = c.rdb.Exists(ctx, key).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks connectivity, bypassing the breaker
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
