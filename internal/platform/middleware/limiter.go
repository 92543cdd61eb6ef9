// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/constants"
	"github.com/taibuivan/bazaar/internal/platform/ctxutil"
	redisstore "github.com/taibuivan/bazaar/internal/platform/redis"
	"github.com/taibuivan/bazaar/internal/platform/respond"
)

// fixedWindowLua increments the counter and starts the window on first hit.
// Returns {count, remaining window in ms}.
const fixedWindowLua = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

// WindowLimiter counts requests per key in fixed windows stored in Redis, so the
// limit holds across every API instance.
type WindowLimiter struct {
	client redis.Cmdable
	script *redis.Script
	limit  int64
	window time.Duration
	scope  string
}

// NewWindowLimiter allows limit hits per window for each key.
func NewWindowLimiter(client redis.Cmdable, limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		client: client,
		script: redis.NewScript(fixedWindowLua),
		limit:  int64(limit),
		window: window,
		scope:  constants.RedisScopeAuthLimit,
	}
}

// Allow records one hit for key and reports whether it is within the limit.
// When refused, retryAfter is the time left in the current window.
func (limiter *WindowLimiter) Allow(context context.Context, key string) (bool, time.Duration, error) {
	result, err := limiter.script.Run(context, limiter.client,
		[]string{redisstore.Key(limiter.scope, key)},
		limiter.window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: eval failed: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script result %v", result)
	}

	count, ttl := result[0], time.Duration(result[1])*time.Millisecond
	if count > limiter.limit {
		return false, ttl, nil
	}
	return true, 0, nil
}

// AuthRateLimit applies a [WindowLimiter] keyed by client IP.
//
// Redis failures fail open: the request proceeds and a warning is logged,
// since the global per-IP limiter still applies.
func AuthRateLimit(limiter *WindowLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			allowed, retryAfter, err := limiter.Allow(request.Context(), RealIP(request))
			if err != nil {
				ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "auth_rate_limit_unavailable",
					slog.Any("error", err),
				)
				next.ServeHTTP(writer, request)
				return
			}

			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				writer.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(seconds))
				respond.Error(writer, request, apperr.RateLimited(seconds))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
