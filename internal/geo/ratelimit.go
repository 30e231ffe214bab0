package geo

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces each provider's per-minute request budget. Allow never blocks;
// false means the budget is spent and the caller must not contact the provider.
type RateLimiter interface {
	Allow(ctx context.Context, provider string) bool
}

// LocalRateLimiter keeps a rolling one-minute log of admitted calls per provider in
// process memory. It mirrors rolling_window.lua: entries at or before now-window are
// dropped and a call is admitted only while fewer than quota entries remain.
type LocalRateLimiter struct {
	mu           sync.Mutex
	quotas       map[string]int
	defaultQuota int
	window       time.Duration
	calls        map[string][]time.Time
	now          func() time.Time
}

func NewLocalRateLimiter(quotas map[string]int, defaultQuota int) *LocalRateLimiter {
	return &LocalRateLimiter{
		quotas:       quotas,
		defaultQuota: defaultQuota,
		window:       time.Minute,
		calls:        make(map[string][]time.Time),
		now:          time.Now,
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, provider string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	calls := l.calls[provider]
	expired := 0
	for expired < len(calls) && !calls[expired].After(cutoff) {
		expired++
	}
	calls = calls[expired:]

	if len(calls) >= l.quota(provider) {
		l.calls[provider] = calls
		return false
	}
	l.calls[provider] = append(calls, now)
	return true
}

func (l *LocalRateLimiter) quota(provider string) int {
	if q := l.quotas[provider]; q > 0 {
		return q
	}
	return l.defaultQuota
}
