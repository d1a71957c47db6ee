package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/traffic-prediction/pkg/config"
)

// defaultOpTimeout bounds a single Redis operation when the config carries none.
const defaultOpTimeout = 3 * time.Second

// Client wraps the Redis client
type Client struct {
	*redis.Client
	opTimeout time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	opTimeout := defaultOpTimeout
	if cfg.OpTimeout > 0 {
		opTimeout = time.Duration(cfg.OpTimeout) * time.Second
	}

	return &Client{Client: client, opTimeout: opTimeout}, nil
}

// NewFromClient wraps an existing go-redis client (used by tests with redismock)
func NewFromClient(client *redis.Client) *Client {
	return &Client{Client: client, opTimeout: defaultOpTimeout}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// SetWithExpiration sets a key-value pair with expiration
func (c *Client) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.Set(ctx, key, value, expiration).Err()
}

// GetString gets a string value by key
func (c *Client) GetString(ctx context.Context, key string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.Get(ctx, key).Result()
}

// PushToList appends a value to the list stored at key
func (c *Client) PushToList(ctx context.Context, key string, value interface{}) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.RPush(ctx, key, value).Err()
}

// ListRange returns all elements of the list stored at key, in insertion order.
// A missing key yields an empty slice, not an error.
func (c *Client) ListRange(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.LRange(ctx, key, 0, -1).Result()
}

// ScanKeys returns all keys matching the given pattern
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var keys []string
	iter := c.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Delete deletes a key
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.Del(ctx, keys...).Err()
}

// Exists checks if a key exists
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	result, err := c.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// IsNotFound reports whether the error means the key does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// isRedisRetryable reports whether an operation failed in a way worth retrying
func isRedisRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "broken pipe")
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.Client.Close()
}
