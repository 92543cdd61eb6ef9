// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package redis_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/taibuivan/bazaar/internal/platform/redis"
)

/*
TestNewClient connects to an in-process Redis and fails once it is gone.
*/
func TestNewClient(t *testing.T) {
	server := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := redisstore.NewClient(context.Background(), redisstore.Options{URL: "redis://" + server.Addr()}, logger)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 10, client.Options().PoolSize)
	assert.NoError(t, redisstore.Ping(context.Background(), client))

	server.Close()
	assert.Error(t, redisstore.Ping(context.Background(), client))
}

/*
TestNewClient_PoolSize honours an explicit pool size.
*/
func TestNewClient_PoolSize(t *testing.T) {
	server := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := redisstore.NewClient(context.Background(), redisstore.Options{URL: "redis://" + server.Addr(), PoolSize: 25}, logger)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 25, client.Options().PoolSize)
	assert.Equal(t, 5, client.Options().MinIdleConns)
}

/*
TestNewClient_InvalidURL rejects malformed connection strings before dialing.
*/
func TestNewClient_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := redisstore.NewClient(context.Background(), redisstore.Options{URL: "://nope"}, logger)
	assert.Error(t, err)
}

/*
TestKey namespaces keys under the application name.
*/
func TestKey(t *testing.T) {
	assert.Equal(t, "bazaar-api:ratelimit:auth:10.0.0.1", redisstore.Key("ratelimit", "auth", "10.0.0.1"))
}
