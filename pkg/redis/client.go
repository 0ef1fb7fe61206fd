// Package redis backs the per-user import lock and the dead-letter stream for
// Kafka import requests that could not be applied.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is the shared connection pool used by Locker and DeadLetterQueue.
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient dials Redis and pings it until it answers or connectTimeout passes.
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout
	ping := func() error { return rdb.Ping(ctx).Err() }
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.addr(), err)
	}

	logger.WithContext(ctx).WithFields(map[string]any{"addr": cfg.addr(), "db": cfg.DB}).Info("redis connected")
	return &Client{rdb: rdb, logger: logger}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
