package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/mailguard/internal/database"
	"github.com/BradenHooton/mailguard/internal/geo"
	"github.com/BradenHooton/mailguard/internal/models"
)

// LoginRecordRepository handles database operations for login records
type LoginRecordRepository struct {
	db *database.DB
}

// NewLoginRecordRepository creates a new LoginRecordRepository
func NewLoginRecordRepository(db *database.DB) *LoginRecordRepository {
	return &LoginRecordRepository{db: db}
}

const loginRecordColumns = `id, user_id, ip_address, user_agent, session_hash, device_fingerprint,
	location, device, risk_score, is_suspicious, anomalies, is_active, login_time, logout_time`

// Create inserts a login record
func (r *LoginRecordRepository) Create(ctx context.Context, rec *models.LoginRecord) error {
	location, err := json.Marshal(rec.Location)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	device, err := json.Marshal(rec.Device)
	if err != nil {
		return fmt.Errorf("marshal device: %w", err)
	}
	anomalies := rec.Anomalies
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}
	anomaliesJSON, err := json.Marshal(anomalies)
	if err != nil {
		return fmt.Errorf("marshal anomalies: %w", err)
	}

	query := `
		INSERT INTO login_records (id, user_id, ip_address, user_agent, session_hash, device_fingerprint,
			location, device, risk_score, is_suspicious, anomalies, is_active, login_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.IPAddress,
		rec.UserAgent,
		rec.SessionHash,
		rec.DeviceFingerprint,
		location,
		device,
		rec.RiskScore,
		rec.IsSuspicious,
		anomaliesJSON,
		rec.IsActive,
		rec.LoginTime,
	)
	return database.MapPostgresError(err)
}

// FindRecentLocations returns the user's most recent resolved locations in [since, until), newest first
func (r *LoginRecordRepository) FindRecentLocations(ctx context.Context, userID string, since, until time.Time, limit int) ([]models.LocatedLogin, error) {
	query := `
		SELECT location, ip_address, login_time FROM login_records
		WHERE user_id = $1 AND login_time >= $2 AND login_time < $3
			AND location ? 'latitude' AND location ? 'longitude'
		ORDER BY login_time DESC
		LIMIT $4
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, since, until, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var out []models.LocatedLogin
	for rows.Next() {
		var (
			raw []byte
			ll  models.LocatedLogin
		)
		if err := rows.Scan(&raw, &ll.IPAddress, &ll.LoginTime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &ll.Location); err != nil {
			return nil, fmt.Errorf("unmarshal location: %w", err)
		}
		out = append(out, ll)
	}
	return out, rows.Err()
}

// CountRecentAttemptsFromIP counts recorded attempts from an IP in [since, until)
func (r *LoginRecordRepository) CountRecentAttemptsFromIP(ctx context.Context, ip string, since, until time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_records
		WHERE ip_address = $1 AND login_time >= $2 AND login_time < $3
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ip, since, until).Scan(&count)
	return count, err
}

// CountActiveSessions counts the user's active login records
func (r *LoginRecordRepository) CountActiveSessions(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM login_records WHERE user_id = $1 AND is_active`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&count)
	return count, err
}

// LoginHourHistogram buckets the user's logins in [since, until) by local hour of day,
// using the timezone resolved for each login, and keeps hours with at least minCount logins
func (r *LoginRecordRepository) LoginHourHistogram(ctx context.Context, userID string, since, until time.Time, minCount int) ([]models.HourCount, error) {
	query := `
		SELECT login_time, COALESCE(location->>'timezone', '') FROM login_records
		WHERE user_id = $1 AND login_time >= $2 AND login_time < $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, since, until)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var counts [24]int
	zones := make(map[string]*time.Location)
	for rows.Next() {
		var (
			at time.Time
			tz string
		)
		if err := rows.Scan(&at, &tz); err != nil {
			return nil, err
		}
		loc, ok := zones[tz]
		if !ok {
			loc = geo.LoadTimezone(tz)
			zones[tz] = loc
		}
		counts[at.In(loc).Hour()]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []models.HourCount
	for hour, n := range counts {
		if n >= minCount && n > 0 {
			out = append(out, models.HourCount{Hour: hour, Count: n})
		}
	}
	return out, nil
}

// GetByID returns a single login record
func (r *LoginRecordRepository) GetByID(ctx context.Context, id string) (*models.LoginRecord, error) {
	query := `SELECT ` + loginRecordColumns + ` FROM login_records WHERE id = $1`

	rec, err := scanLoginRecord(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return rec, nil
}

// ListActive returns active sessions, newest first
func (r *LoginRecordRepository) ListActive(ctx context.Context, filter models.SessionFilter) ([]*models.LoginRecord, error) {
	query := `SELECT ` + loginRecordColumns + ` FROM login_records
		WHERE is_active AND ($1 = '' OR user_id = $1)
		ORDER BY login_time DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool.Query(ctx, query, filter.UserID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var out []*models.LoginRecord
	for rows.Next() {
		rec, err := scanLoginRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Deactivate marks an active session as ended. Returns ErrNotFound if no active record matches.
func (r *LoginRecordRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE login_records SET is_active = FALSE, logout_time = $2 WHERE id = $1 AND is_active`

	tag, err := r.db.Pool.Exec(ctx, query, id, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeactivateBySession ends the active session with the given session hash
func (r *LoginRecordRepository) DeactivateBySession(ctx context.Context, userID, sessionHash string, at time.Time) error {
	query := `
		UPDATE login_records SET is_active = FALSE, logout_time = $3
		WHERE user_id = $1 AND session_hash = $2 AND is_active
	`

	tag, err := r.db.Pool.Exec(ctx, query, userID, sessionHash, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountSuspiciousSince counts suspicious logins since the given time
func (r *LoginRecordRepository) CountSuspiciousSince(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM login_records WHERE is_suspicious AND login_time >= $1`

	var count int64
	err := r.db.Pool.QueryRow(ctx, query, since).Scan(&count)
	return count, err
}

// CountAllActive counts active sessions across all users
func (r *LoginRecordRepository) CountAllActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM login_records WHERE is_active`).Scan(&count)
	return count, err
}

// DeleteOlderThan removes inactive records that ended before the cutoff
func (r *LoginRecordRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_records WHERE login_time < $1 AND NOT is_active`

	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

func scanLoginRecord(row pgx.Row) (*models.LoginRecord, error) {
	var (
		rec                              models.LoginRecord
		location, device, anomaliesBytes []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.SessionHash,
		&rec.DeviceFingerprint,
		&location,
		&device,
		&rec.RiskScore,
		&rec.IsSuspicious,
		&anomaliesBytes,
		&rec.IsActive,
		&rec.LoginTime,
		&rec.LogoutTime,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(location, &rec.Location); err != nil {
		return nil, fmt.Errorf("unmarshal location: %w", err)
	}
	if err := json.Unmarshal(device, &rec.Device); err != nil {
		return nil, fmt.Errorf("unmarshal device: %w", err)
	}
	if err := json.Unmarshal(anomaliesBytes, &rec.Anomalies); err != nil {
		return nil, fmt.Errorf("unmarshal anomalies: %w", err)
	}
	return &rec, nil
}
