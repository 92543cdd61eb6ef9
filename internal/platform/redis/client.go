// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis connects the API to the Redis instance that holds the shared
/auth request counters, so every instance behind the load balancer enforces
one window per client.

Keys are namespaced with [Key]; nothing else in the process writes to Redis.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/bazaar/internal/platform/constants"
)

const (
	dialTimeout = 3 * time.Second
	ioTimeout   = 500 * time.Millisecond
	pingTimeout = 2 * time.Second

	// defaultPoolSize applies when Options.PoolSize is unset.
	defaultPoolSize = 10
)

// Options describes the connection. URL follows the redis:// or rediss:// scheme.
type Options struct {
	URL      string
	PoolSize int
}

/*
NewClient dials Redis and pings it once before returning.

A limiter check sits on the request path of every /auth call, so reads and
writes time out well under a second and a single retry is allowed.
*/
func NewClient(context stdctx.Context, opts Options, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.PoolSize = opts.PoolSize
	if options.PoolSize <= 0 {
		options.PoolSize = defaultPoolSize
	}
	options.MinIdleConns = max(1, options.PoolSize/5)
	options.MaxRetries = 1

	options.DialTimeout = dialTimeout
	options.ReadTimeout = ioTimeout
	options.WriteTimeout = ioTimeout

	client := redis.NewClient(options)

	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
		slog.Int("pool_size", options.PoolSize),
	)

	return client, nil
}

// Ping is the readiness probe for the limiter store.
func Ping(context stdctx.Context, client redis.UniversalClient) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	return nil
}

// Key joins parts under the application namespace, e.g. "bazaar-api:ratelimit:auth:10.0.0.1".
func Key(parts ...string) string {
	return constants.AppName + ":" + strings.Join(parts, ":")
}
