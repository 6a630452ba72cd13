// Package cache stores evaluation results in Redis so repeated evaluations of
// the same model and corpus are served without touching the model.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Brownie44l1/fer-inference/internal/config"
	"github.com/Brownie44l1/fer-inference/internal/evaluation"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

const defaultConnectTimeout = 10 * time.Second

// Client wraps a Redis client
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis, retrying with exponential backoff until
// cfg.ConnectTimeout elapses.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout
	if policy.MaxElapsedTime <= 0 {
		policy.MaxElapsedTime = defaultConnectTimeout
	}

	err := backoff.Retry(func() error {
		return rdb.Ping(ctx).Err()
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Addr)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get loads a cached result. A missing key is not an error.
func (c *Client) Get(ctx context.Context, key string) (*evaluation.Result, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var r evaluation.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, errors.Wrapf(err, "decode cached result %s", key)
	}
	return &r, true, nil
}

// Set stores a result with the given TTL. A zero TTL keeps it until evicted.
func (c *Client) Set(ctx context.Context, key string, r *evaluation.Result, ttl time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// Delete removes cached results
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}
