package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisRateLimitPrefix  = "unhazzle:ratelimit:"
	redisRateLimitTimeout = 250 * time.Millisecond
)

// redisRateLimiter shares fixed windows across API replicas. INCR, EXPIRE NX
// and PTTL go out in one MULTI so a window's expiry is set exactly once.
type redisRateLimiter struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	timeout time.Duration
	release func() error
}

// NewRedisRateLimiter dials Redis and owns the connection.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping rate limit redis: %w", err)
	}
	rl := newRedisRateLimiter(client, logger)
	rl.release = client.Close
	return rl, nil
}

// NewRedisRateLimiterFromClient borrows client; Close leaves it open.
func NewRedisRateLimiterFromClient(client redis.UniversalClient, logger *slog.Logger) RateLimiter {
	return newRedisRateLimiter(client, logger)
}

func newRedisRateLimiter(client redis.UniversalClient, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger.With("component", "rate_limiter"),
		timeout: redisRateLimitTimeout,
	}
}

// Allow lets the request through when Redis cannot answer.
func (rl *redisRateLimiter) Allow(ctx context.Context, key string, rule RateRule) RateDecision {
	if rule.unlimited() {
		return RateDecision{Allowed: true}
	}
	rule = rule.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	redisKey := redisRateLimitPrefix + key
	var (
		hits *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, rule.Window)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logger.Warn("rate limit check failed, allowing request", "key", key, "error", err)
		return RateDecision{Allowed: true}
	}
	reset := ttl.Val()
	if reset <= 0 {
		reset = rule.Window
	}
	return decide(rule, int(hits.Val()), time.Now().Add(reset))
}

func (rl *redisRateLimiter) Close() {
	if rl.release != nil {
		_ = rl.release()
	}
}
