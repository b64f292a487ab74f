// Package redis holds the optional Redis-backed services shared by every
// cryptoarb process using the same server: a per-venue request budget and
// leases on origin loops. All keys live under one namespace.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// defaultNamespace prefixes every key written by this package.
const defaultNamespace = "cryptoarb"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace prefixes keys. Defaults to "cryptoarb".
	Namespace string
}

// Client is a connected Redis handle scoped to one key namespace.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New dials Redis and fails unless the server answers a PING.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, ns: ns}, nil
}

// key joins the namespace, a kind and a name: "cryptoarb:lock:origin:Kraken".
func (c *Client) key(kind, name string) string {
	return c.ns + ":" + kind + ":" + name
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
