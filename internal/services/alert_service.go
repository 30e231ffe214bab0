package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/mailguard/internal/metrics"
	"github.com/BradenHooton/mailguard/internal/models"
	"github.com/BradenHooton/mailguard/pkg/logger"
)

// AlertStore persists security alerts
type AlertStore interface {
	Create(ctx context.Context, alert *models.SecurityAlert) error
	Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) (*models.SecurityAlert, error)
}

// AlertSettings decides notification eligibility
type AlertSettings interface {
	NotifyAdmins(ctx context.Context) bool
	NotifyMinSeverity(ctx context.Context) models.Severity
}

// Enqueuer accepts notification jobs without blocking
type Enqueuer interface {
	Enqueue(job NotificationJob) error
}

// AlertDispatcher turns suspicious assessments into persisted alerts and queues
// administrator notifications for the eligible ones
type AlertDispatcher struct {
	alerts      AlertStore
	queue       Enqueuer
	settings    AlertSettings
	auditLogger *logger.AuditLogger
	logger      *slog.Logger
	now         func() time.Time
}

// NewAlertDispatcher creates a new AlertDispatcher
func NewAlertDispatcher(alerts AlertStore, queue Enqueuer, settings AlertSettings, logger *slog.Logger, auditLogger *logger.AuditLogger) *AlertDispatcher {
	return &AlertDispatcher{
		alerts:      alerts,
		queue:       queue,
		settings:    settings,
		auditLogger: auditLogger,
		logger:      logger,
		now:         time.Now,
	}
}

// Raise persists an alert for the assessment and enqueues a notification when eligible.
// Notification problems are logged; only a failed alert write is returned.
func (d *AlertDispatcher) Raise(ctx context.Context, userID string, a models.RiskAssessment) (string, error) {
	alert := buildLoginAlert(userID, a, d.now().UTC())

	if err := d.alerts.Create(ctx, alert); err != nil {
		d.logger.Error("failed to persist security alert",
			slog.String("user_id", userID),
			slog.Int("risk_score", a.TotalScore),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: create alert: %v", models.ErrPersistenceFailure, err)
	}

	metrics.AlertsRaised.WithLabelValues(string(alert.Severity)).Inc()
	d.auditLogger.LogSecurityAction(ctx, logger.AuditEvent{
		EventType: "alert_raised",
		UserID:    userID,
		TargetID:  alert.ID,
		IPAddress: a.IPAddress,
		Success:   true,
		Metadata: map[string]string{
			"severity": string(alert.Severity),
			"type":     alert.AlertType,
		},
	})

	if !d.shouldNotify(ctx, alert.Severity) {
		return alert.ID, nil
	}

	job := NotificationJob{Alert: *alert, UserEmail: a.UserEmail}
	if err := d.queue.Enqueue(job); err != nil {
		metrics.NotificationDeliveries.WithLabelValues("dropped").Inc()
		d.logger.Warn("alert notification not queued",
			slog.String("alert_id", alert.ID),
			slog.String("error", err.Error()))
	}

	return alert.ID, nil
}

// RaiseIfSuspicious raises an alert only for suspicious assessments.
// The bool reports whether an alert was created.
func (d *AlertDispatcher) RaiseIfSuspicious(ctx context.Context, userID string, a models.RiskAssessment) (string, bool, error) {
	if !a.IsSuspicious {
		return "", false, nil
	}
	id, err := d.Raise(ctx, userID, a)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Resolve closes an open alert. Resolving twice returns ErrAlertAlreadyResolved and
// leaves the first resolution intact.
func (d *AlertDispatcher) Resolve(ctx context.Context, alertID, resolvedBy, notes string) (*models.SecurityAlert, error) {
	alert, err := d.alerts.Resolve(ctx, alertID, resolvedBy, strings.TrimSpace(notes), d.now().UTC())

	d.auditLogger.LogSecurityAction(ctx, logger.AuditEvent{
		EventType: "alert_resolved",
		ActorID:   resolvedBy,
		TargetID:  alertID,
		Success:   err == nil,
	})

	if err != nil {
		if errors.Is(err, models.ErrAlertAlreadyResolved) || errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}
	return alert, nil
}

func (d *AlertDispatcher) shouldNotify(ctx context.Context, severity models.Severity) bool {
	if !d.settings.NotifyAdmins(ctx) {
		return false
	}
	return severity.Rank() >= d.settings.NotifyMinSeverity(ctx).Rank()
}

func buildLoginAlert(userID string, a models.RiskAssessment, at time.Time) *models.SecurityAlert {
	severity := models.SeverityForScore(a.TotalScore)

	reasons := make([]string, 0, len(a.Anomalies))
	for _, an := range a.Anomalies {
		reasons = append(reasons, an.Reason)
	}
	description := "Login risk score exceeded the configured threshold."
	if len(reasons) > 0 {
		description = strings.Join(reasons, "; ")
	}

	data := map[string]any{
		"risk_score":         a.TotalScore,
		"anomalies":          a.AnomalyTypes(),
		"ip_address":         a.IPAddress,
		"location":           a.Location.DisplayName(),
		"device":             a.Device.Browser + " on " + a.Device.OS,
		"device_fingerprint": a.DeviceFingerprint,
		"assessed_at":        a.AssessedAt.UTC().Format(time.RFC3339),
	}
	if a.RecordID != "" {
		data["login_record_id"] = a.RecordID
	}

	return &models.SecurityAlert{
		ID:          uuid.New().String(),
		UserID:      userID,
		AlertType:   models.AlertTypeSuspiciousLogin,
		Severity:    severity,
		Title:       fmt.Sprintf("Suspicious login detected (risk score %d)", a.TotalScore),
		Description: description,
		Data:        data,
		CreatedAt:   at,
	}
}
