package geo

import (
	"context"
	_ "embed"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed rolling_window.lua
var rollingWindowLua string

var rollingWindowScript = redis.NewScript(rollingWindowLua)

// RedisRateLimiter shares provider budgets across instances using a sorted-set rolling window.
// When Redis is unreachable it defers to the fallback limiter.
type RedisRateLimiter struct {
	rdb          redis.Scripter
	quotas       map[string]int
	defaultQuota int
	window       time.Duration
	fallback     RateLimiter
	logger       *slog.Logger
	now          func() time.Time
}

func NewRedisRateLimiter(rdb redis.Scripter, quotas map[string]int, defaultQuota int, fallback RateLimiter, logger *slog.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		rdb:          rdb,
		quotas:       quotas,
		defaultQuota: defaultQuota,
		window:       time.Minute,
		fallback:     fallback,
		logger:       logger,
		now:          time.Now,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, provider string) bool {
	quota := l.quotas[provider]
	if quota <= 0 {
		quota = l.defaultQuota
	}

	key := "mailguard:geo:budget:" + provider
	res, err := rollingWindowScript.Run(ctx, l.rdb, []string{key},
		l.now().UnixMilli(), l.window.Milliseconds(), quota, uuid.NewString()).Int()
	if err != nil {
		l.logger.Warn("shared rate limiter unavailable, using local budget", "provider", provider, "error", err)
		return l.fallback.Allow(ctx, provider)
	}
	return res == 1
}
