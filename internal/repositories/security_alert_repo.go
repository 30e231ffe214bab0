package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/mailguard/internal/database"
	"github.com/BradenHooton/mailguard/internal/models"
)

// SecurityAlertRepository handles security alert data access
type SecurityAlertRepository struct {
	db *database.DB
}

// NewSecurityAlertRepository creates a new SecurityAlertRepository
func NewSecurityAlertRepository(db *database.DB) *SecurityAlertRepository {
	return &SecurityAlertRepository{db: db}
}

const securityAlertColumns = `id, user_id, alert_type, severity, title, description, data,
	is_resolved, resolved_by, resolved_at, resolution_notes, created_at`

func scanSecurityAlertRow(row rowScanner) (*models.SecurityAlert, error) {
	var (
		a        models.SecurityAlert
		severity string
		data     []byte
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.AlertType, &severity, &a.Title, &a.Description, &data,
		&a.IsResolved, &a.ResolvedBy, &a.ResolvedAt, &a.ResolutionNotes, &a.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	a.Severity = models.Severity(severity)
	if err := json.Unmarshal(data, &a.Data); err != nil {
		return nil, fmt.Errorf("unmarshal alert data: %w", err)
	}
	return &a, nil
}

func scanSecurityAlertRows(rows pgx.Rows) ([]*models.SecurityAlert, error) {
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)
	for rows.Next() {
		a, err := scanSecurityAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security alert rows: %w", err)
	}
	return alerts, nil
}

// Create inserts a new open alert
func (r *SecurityAlertRepository) Create(ctx context.Context, a *models.SecurityAlert) error {
	data := a.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal alert data: %w", err)
	}

	query := `
		INSERT INTO security_alerts (id, user_id, alert_type, severity, title, description, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		a.ID, a.UserID, a.AlertType, string(a.Severity), a.Title, a.Description, raw, a.CreatedAt,
	)
	return database.MapPostgresError(err)
}

// GetByID returns a single alert
func (r *SecurityAlertRepository) GetByID(ctx context.Context, id string) (*models.SecurityAlert, error) {
	query := `SELECT ` + securityAlertColumns + ` FROM security_alerts WHERE id = $1`
	return scanSecurityAlertRow(r.db.Pool.QueryRow(ctx, query, id))
}

// List returns alerts matching the filter, newest first
func (r *SecurityAlertRepository) List(ctx context.Context, f models.AlertFilter) ([]*models.SecurityAlert, error) {
	where, args := alertFilterClause(f)
	args = append(args, f.Limit, f.Offset)

	query := fmt.Sprintf(`SELECT %s FROM security_alerts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		securityAlertColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security alerts: %w", err)
	}
	return scanSecurityAlertRows(rows)
}

// Count returns the number of alerts matching the filter, ignoring limit and offset
func (r *SecurityAlertRepository) Count(ctx context.Context, f models.AlertFilter) (int64, error) {
	where, args := alertFilterClause(f)

	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM security_alerts `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count security alerts: %w", err)
	}
	return count, nil
}

func alertFilterClause(f models.AlertFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Severity != nil {
		add("severity = $%d", string(*f.Severity))
	}
	if f.AlertType != "" {
		add("alert_type = $%d", f.AlertType)
	}
	if f.Resolved != nil {
		add("is_resolved = $%d", *f.Resolved)
	}
	if f.Since != nil {
		add("created_at >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("created_at < $%d", *f.Until)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Resolve transitions an open alert to resolved. The row is locked for the check so
// concurrent resolutions cannot both succeed; an already resolved alert is left untouched
// and ErrAlertAlreadyResolved is returned.
func (r *SecurityAlertRepository) Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) (*models.SecurityAlert, error) {
	var resolved *models.SecurityAlert

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var isResolved bool
		err := tx.QueryRow(ctx, `SELECT is_resolved FROM security_alerts WHERE id = $1 FOR UPDATE`, id).Scan(&isResolved)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if isResolved {
			return models.ErrAlertAlreadyResolved
		}

		query := `
			UPDATE security_alerts
			SET is_resolved = TRUE, resolved_by = $2, resolved_at = $3, resolution_notes = $4
			WHERE id = $1
			RETURNING ` + securityAlertColumns

		var notesArg *string
		if notes != "" {
			notesArg = &notes
		}
		resolved, err = scanSecurityAlertRow(tx.QueryRow(ctx, query, id, resolvedBy, at, notesArg))
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// Stats aggregates alert counts created since the given time
func (r *SecurityAlertRepository) Stats(ctx context.Context, since time.Time) (*models.AlertStats, error) {
	stats := &models.AlertStats{
		BySeverity:  make(map[models.Severity]int64),
		ByType:      make(map[string]int64),
		WindowStart: since,
	}

	query := `
		SELECT severity, alert_type, is_resolved, COUNT(*)
		FROM security_alerts
		WHERE created_at >= $1
		GROUP BY severity, alert_type, is_resolved
	`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			severity, alertType string
			resolved            bool
			count               int64
		)
		if err := rows.Scan(&severity, &alertType, &resolved, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		if !resolved {
			stats.Unresolved += count
		}
		stats.BySeverity[models.Severity(severity)] += count
		stats.ByType[alertType] += count
	}
	return stats, rows.Err()
}
