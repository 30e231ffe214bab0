package geo

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/mailguard/internal/config"
	"github.com/BradenHooton/mailguard/internal/models"
)

// BuildProvider selects the configured provider. A local MaxMind database takes
// precedence; otherwise the named catalogue entry is used behind a circuit breaker.
func BuildProvider(cfg config.GeoConfig, catalogue map[string]config.GeoProviderConfig, logger *slog.Logger) (Provider, error) {
	if cfg.MaxMindDBPath != "" {
		mm, err := OpenMaxMind(cfg.MaxMindDBPath)
		if err != nil {
			return nil, err
		}
		logger.Info("using local maxmind geolocation database", "path", cfg.MaxMindDBPath)
		return mm, nil
	}

	entry, ok := catalogue[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown geo provider %q", models.ErrConfiguration, cfg.Provider)
	}

	httpProvider, err := NewHTTPProvider(cfg.Provider, entry, &http.Client{Timeout: cfg.HTTPTimeout})
	if err != nil {
		return nil, err
	}

	logger.Info("using http geolocation provider", "provider", cfg.Provider, "requests_per_minute", entry.RequestsPerMinute)
	return NewBreakerProvider(httpProvider, logger), nil
}

// Quotas extracts per-provider per-minute budgets from the catalogue
func Quotas(catalogue map[string]config.GeoProviderConfig) map[string]int {
	quotas := make(map[string]int, len(catalogue))
	for name, p := range catalogue {
		quotas[name] = p.RequestsPerMinute
	}
	return quotas
}
