// Package cache connects to Dragonfly/Redis and keeps deterministic
// allocation results under content-addressed keys.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 3 * time.Second
)

// Cache is a connected Redis/Dragonfly client.
type Cache struct {
	client *redis.Client
}

// ParseURL checks a redis:// or rediss:// connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New connects and pings the server.
func New(ctx context.Context, url string) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout

	c := &Cache{client: redis.NewClient(opts)}
	if err := c.HealthCheck(ctx); err != nil {
		c.client.Close()
		return nil, err
	}
	return c, nil
}

// Addr is the server address, for logs.
func (c *Cache) Addr() string {
	return c.client.Options().Addr
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// HealthCheck pings the server.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging cache: %w", err)
	}
	return nil
}
