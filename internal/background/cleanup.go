package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/mailguard/internal/metrics"
)

// GeoCachePurger deletes cached geolocations last refreshed before cutoff
type GeoCachePurger interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// LoginRecordPurger deletes ended login records older than cutoff
type LoginRecordPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically purges stale geolocation cache entries and old login history
type CleanupManager struct {
	geoCache     GeoCachePurger
	loginRecords LoginRecordPurger
	logger       *slog.Logger
	interval     time.Duration
	cacheTTL     time.Duration
	retention    time.Duration
	now          func() time.Time
}

// NewCleanupManager creates a new cleanup manager.
// A zero retention disables login record purging.
func NewCleanupManager(
	geoCache GeoCachePurger,
	loginRecords LoginRecordPurger,
	logger *slog.Logger,
	interval, cacheTTL, retention time.Duration,
) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		geoCache:     geoCache,
		loginRecords: loginRecords,
		logger:       logger,
		interval:     interval,
		cacheTTL:     cacheTTL,
		retention:    retention,
		now:          time.Now,
	}
}

// Serve runs the cleanup loop until ctx is cancelled
func (cm *CleanupManager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-ctx.Done():
			cm.logger.Info("cleanup manager stopped")
			return ctx.Err()
		}
	}
}

func (cm *CleanupManager) String() string {
	return "cleanup-manager"
}

// RunOnce performs a single purge pass. Failures are logged and retried on the next tick.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now()

	if cm.geoCache != nil && cm.cacheTTL > 0 {
		n, err := cm.geoCache.DeleteStale(cleanupCtx, now.Add(-cm.cacheTTL))
		if err != nil {
			cm.logger.Error("failed to purge geo cache", slog.Any("error", err))
		} else if n > 0 {
			metrics.CleanupRemoved.WithLabelValues("geo_cache").Add(float64(n))
			cm.logger.Info("geo cache purge completed", slog.Int64("rows_deleted", n))
		}
	}

	if cm.loginRecords != nil && cm.retention > 0 {
		n, err := cm.loginRecords.DeleteOlderThan(cleanupCtx, now.Add(-cm.retention))
		if err != nil {
			cm.logger.Error("failed to purge login records", slog.Any("error", err))
		} else if n > 0 {
			metrics.CleanupRemoved.WithLabelValues("login_records").Add(float64(n))
			cm.logger.Info("login record purge completed", slog.Int64("rows_deleted", n))
		}
	}
}
