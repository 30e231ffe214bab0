package geo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/BradenHooton/mailguard/internal/metrics"
	"github.com/BradenHooton/mailguard/internal/models"
)

// CacheStore persists resolved locations keyed by IP
type CacheStore interface {
	GetByIP(ctx context.Context, ip string) (*models.GeoCacheEntry, error)
	Upsert(ctx context.Context, entry *models.GeoCacheEntry) error
}

// defaultFlightTimeout bounds a shared lookup once it is detached from its first caller
const defaultFlightTimeout = 30 * time.Second

// Resolver turns IP addresses into locations. It never fails: every error path
// yields models.DefaultLocation().
type Resolver struct {
	cache         CacheStore
	provider      Provider
	limiter       RateLimiter
	metered       bool
	ttl           time.Duration
	flightTimeout time.Duration
	group         singleflight.Group
	exhaustedLog  rate.Sometimes
	logger        *slog.Logger
	now           func() time.Time
}

func NewResolver(cache CacheStore, provider Provider, limiter RateLimiter, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:         cache,
		provider:      provider,
		limiter:       limiter,
		metered:       isMetered(provider),
		ttl:           ttl,
		flightTimeout: defaultFlightTimeout,
		exhaustedLog:  rate.Sometimes{Interval: 10 * time.Second},
		logger:        logger,
		now:           time.Now,
	}
}

// Resolve returns the location of ip. Non-public addresses short-circuit to the default,
// fresh cache entries are returned without an upstream call, and concurrent lookups of
// the same IP share a single upstream request. The shared request is not cancelled
// when the caller that started it goes away.
func (r *Resolver) Resolve(ctx context.Context, ip string) models.LocationInfo {
	if !IsPublicIP(ip) {
		return models.DefaultLocation()
	}

	entry, err := r.cache.GetByIP(ctx, ip)
	switch {
	case err == nil && entry.IsFresh(r.now(), r.ttl):
		metrics.GeoCacheHits.Inc()
		return entry.Location
	case err != nil && !errors.Is(err, models.ErrNotFound):
		r.logger.Warn("geo cache read failed", "ip", ip, "error", err)
	}
	metrics.GeoCacheMisses.Inc()

	v, _, _ := r.group.Do(ip, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.flightTimeout)
		defer cancel()
		return r.fetch(flightCtx, ip), nil
	})
	return v.(models.LocationInfo)
}

func (r *Resolver) fetch(ctx context.Context, ip string) models.LocationInfo {
	name := r.provider.Name()

	if r.metered && !r.limiter.Allow(ctx, name) {
		metrics.GeoUpstreamRequests.WithLabelValues(name, "rate_limited").Inc()
		r.exhaustedLog.Do(func() {
			r.logger.Warn("geo provider budget exhausted", "provider", name, "ip", ip)
		})
		return models.DefaultLocation()
	}

	loc, err := r.provider.Lookup(ctx, ip)
	if err != nil {
		metrics.GeoUpstreamRequests.WithLabelValues(name, "failure").Inc()
		r.logger.Warn("geo lookup failed", "provider", name, "ip", ip, "error", err)
		return models.DefaultLocation()
	}
	metrics.GeoUpstreamRequests.WithLabelValues(name, "success").Inc()

	if err := r.cache.Upsert(ctx, &models.GeoCacheEntry{
		IPAddress:   ip,
		Location:    loc,
		Provider:    name,
		LastUpdated: r.now(),
	}); err != nil {
		r.logger.Error("geo cache write failed", "ip", ip, "error", err)
	}

	return loc
}
