package repositories

import (
	"context"

	"github.com/BradenHooton/mailguard/internal/database"
	"github.com/BradenHooton/mailguard/internal/models"
)

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// SettingsRepository reads runtime settings from system_settings
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the raw value for key, or ErrNotFound
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return "", database.MapPostgresError(err)
	}
	return value, nil
}

// AdminRepository lists notification recipients
type AdminRepository struct {
	db *database.DB
}

// NewAdminRepository creates a new AdminRepository
func NewAdminRepository(db *database.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// ListActiveAdministrators returns active admin users ordered by email
func (r *AdminRepository) ListActiveAdministrators(ctx context.Context) ([]models.Administrator, error) {
	query := `
		SELECT id, email, name FROM users
		WHERE role = 'admin' AND status = 'active'
		ORDER BY email
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var admins []models.Administrator
	for rows.Next() {
		var a models.Administrator
		if err := rows.Scan(&a.ID, &a.Email, &a.Name); err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}
