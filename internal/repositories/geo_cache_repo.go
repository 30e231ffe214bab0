package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/BradenHooton/mailguard/internal/database"
	"github.com/BradenHooton/mailguard/internal/models"
)

// GeoCacheRepository persists resolved IP locations
type GeoCacheRepository struct {
	db *database.DB
}

// NewGeoCacheRepository creates a new GeoCacheRepository
func NewGeoCacheRepository(db *database.DB) *GeoCacheRepository {
	return &GeoCacheRepository{db: db}
}

// GetByIP returns the cached entry for ip, or ErrNotFound
func (r *GeoCacheRepository) GetByIP(ctx context.Context, ip string) (*models.GeoCacheEntry, error) {
	query := `SELECT ip_address, location, provider, last_updated FROM geo_cache WHERE ip_address = $1`

	var (
		entry models.GeoCacheEntry
		raw   []byte
	)
	err := r.db.Pool.QueryRow(ctx, query, ip).Scan(&entry.IPAddress, &raw, &entry.Provider, &entry.LastUpdated)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if err := json.Unmarshal(raw, &entry.Location); err != nil {
		return nil, fmt.Errorf("unmarshal cached location: %w", err)
	}
	return &entry, nil
}

// Upsert writes the entry keyed by IP
func (r *GeoCacheRepository) Upsert(ctx context.Context, entry *models.GeoCacheEntry) error {
	raw, err := json.Marshal(entry.Location)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	query := `
		INSERT INTO geo_cache (ip_address, location, provider, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip_address) DO UPDATE SET
			location = EXCLUDED.location,
			provider = EXCLUDED.provider,
			last_updated = EXCLUDED.last_updated
	`

	_, err = r.db.Pool.Exec(ctx, query, entry.IPAddress, raw, entry.Provider, entry.LastUpdated)
	return database.MapPostgresError(err)
}

// DeleteStale removes entries last updated before the cutoff
func (r *GeoCacheRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM geo_cache WHERE last_updated < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
