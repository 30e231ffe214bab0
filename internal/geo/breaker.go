package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/BradenHooton/mailguard/internal/metrics"
	"github.com/BradenHooton/mailguard/internal/models"
)

// BreakerProvider stops calling a failing upstream for a cool-down period.
// While open, lookups fail immediately and the resolver degrades to the default location.
type BreakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[models.LocationInfo]
}

func NewBreakerProvider(next Provider, logger *slog.Logger) *BreakerProvider {
	name := "geo-" + next.Name()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[models.LocationInfo](gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("geo provider circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerProvider{next: next, cb: cb}
}

func (b *BreakerProvider) Name() string { return b.next.Name() }

func (b *BreakerProvider) Lookup(ctx context.Context, ip string) (models.LocationInfo, error) {
	loc, err := b.cb.Execute(func() (models.LocationInfo, error) {
		return b.next.Lookup(ctx, ip)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.GeoUpstreamRequests.WithLabelValues(b.next.Name(), "rejected").Inc()
		return models.LocationInfo{}, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	return loc, err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
