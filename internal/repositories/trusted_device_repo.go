package repositories

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/BradenHooton/mailguard/internal/database"
	"github.com/BradenHooton/mailguard/internal/models"
)

// TrustedDeviceRepository handles database operations for trusted devices
type TrustedDeviceRepository struct {
	db *database.DB
}

// NewTrustedDeviceRepository creates a new TrustedDeviceRepository
func NewTrustedDeviceRepository(db *database.DB) *TrustedDeviceRepository {
	return &TrustedDeviceRepository{db: db}
}

const trustedDeviceColumns = `id, user_id, device_fingerprint, device_name, device, ip_address, is_trusted, last_used_at, created_at`

func scanTrustedDevice(scanner rowScanner) (*models.TrustedDevice, error) {
	var (
		d      models.TrustedDevice
		device []byte
	)
	err := scanner.Scan(
		&d.ID, &d.UserID, &d.DeviceFingerprint, &d.DeviceName, &device,
		&d.IPAddress, &d.IsTrusted, &d.LastUsedAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if err := json.Unmarshal(device, &d.Device); err != nil {
		return nil, fmt.Errorf("unmarshal device: %w", err)
	}
	return &d, nil
}

// FindTrusted returns the user's trusted device with the given fingerprint, or ErrNotFound
func (r *TrustedDeviceRepository) FindTrusted(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error) {
	query := `SELECT ` + trustedDeviceColumns + ` FROM trusted_devices
		WHERE user_id = $1 AND device_fingerprint = $2 AND is_trusted`

	return scanTrustedDevice(r.db.Pool.QueryRow(ctx, query, userID, fingerprint))
}

// CountTrusted counts the user's trusted devices
func (r *TrustedDeviceRepository) CountTrusted(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM trusted_devices WHERE user_id = $1 AND is_trusted`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&count)
	return count, err
}

// Upsert creates the device or refreshes its last-used time and IP. The trust flag of an
// existing row is left alone so a revoked device stays revoked.
func (r *TrustedDeviceRepository) Upsert(ctx context.Context, d *models.TrustedDevice) error {
	device, err := json.Marshal(d.Device)
	if err != nil {
		return fmt.Errorf("marshal device: %w", err)
	}

	query := `
		INSERT INTO trusted_devices (id, user_id, device_fingerprint, device_name, device, ip_address, is_trusted, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, device_fingerprint) DO UPDATE SET
			device_name = EXCLUDED.device_name,
			device = EXCLUDED.device,
			ip_address = EXCLUDED.ip_address,
			last_used_at = GREATEST(trusted_devices.last_used_at, EXCLUDED.last_used_at)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		d.ID, d.UserID, d.DeviceFingerprint, d.DeviceName, device, d.IPAddress, d.IsTrusted, d.LastUsedAt,
	)
	return database.MapPostgresError(err)
}

// ListByUser returns all of the user's devices, most recently used first
func (r *TrustedDeviceRepository) ListByUser(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	query := `SELECT ` + trustedDeviceColumns + ` FROM trusted_devices
		WHERE user_id = $1 ORDER BY last_used_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var out []*models.TrustedDevice
	for rows.Next() {
		d, err := scanTrustedDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Revoke withdraws trust from a device. Returns ErrNotFound if the device does not exist.
func (r *TrustedDeviceRepository) Revoke(ctx context.Context, id string) (*models.TrustedDevice, error) {
	query := `UPDATE trusted_devices SET is_trusted = FALSE WHERE id = $1 RETURNING ` + trustedDeviceColumns

	return scanTrustedDevice(r.db.Pool.QueryRow(ctx, query, id))
}
