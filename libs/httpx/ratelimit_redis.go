package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared by every replica through Redis.
type RedisRateLimiter struct {
	rdb      redis.Scripter
	limit    int
	window   time.Duration
	prefix   string
	key      KeyFunc
	logger   *slog.Logger
	failOpen bool
}

type RedisLimiterOptions struct {
	Limit  int
	Window time.Duration
	Prefix string
	Key    KeyFunc
	Logger *slog.Logger
	// FailOpen lets requests through when Redis is unreachable.
	FailOpen bool
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb redis.Scripter, opts RedisLimiterOptions) *RedisRateLimiter {
	rl := &RedisRateLimiter{
		rdb:      rdb,
		limit:    opts.Limit,
		window:   opts.Window,
		prefix:   strings.TrimSpace(opts.Prefix),
		key:      opts.Key,
		logger:   opts.Logger,
		failOpen: opts.FailOpen,
	}
	if rl.limit <= 0 {
		rl.limit = 60
	}
	if rl.window <= 0 {
		rl.window = time.Minute
	}
	if rl.prefix == "" {
		rl.prefix = "rl"
	}
	if rl.key == nil {
		rl.key = ClientAddr
	}
	if rl.logger == nil {
		rl.logger = slog.Default()
	}
	return rl
}

func (rl *RedisRateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, err := rl.incr(r.Context(), rl.prefix+":"+rl.key(r))
			if err != nil {
				rl.logger.Warn("redis rate limiter error", "err", err)
				if rl.failOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}
			if count > int64(rl.limit) {
				w.Header().Set("Retry-After", retryAfterSeconds(rl.window))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, error) {
	res, err := redisFixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
