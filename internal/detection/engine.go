package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/mailguard/internal/metrics"
	"github.com/BradenHooton/mailguard/internal/models"
	"github.com/BradenHooton/mailguard/pkg/logger"
)

// RecordWriter persists login records
type RecordWriter interface {
	Create(ctx context.Context, record *models.LoginRecord) error
}

// Engine scores login attempts by running an ordered list of checks
type Engine struct {
	resolver              LocationResolver
	records               RecordWriter
	devices               DeviceStore
	settings              Settings
	checks                []Check
	trustedDeviceMaxScore int
	logger                *slog.Logger
	auditLogger           *logger.AuditLogger
	now                   func() time.Time
}

// History is the full login-record storage used by the engine and its checks
type History interface {
	LoginHistory
	RecordWriter
}

// NewEngine wires the standard checks in evaluation order
func NewEngine(
	resolver LocationResolver,
	rules RuleSource,
	history History,
	devices DeviceStore,
	settings Settings,
	trustedDeviceMaxScore int,
	log *slog.Logger,
) *Engine {
	checks := []Check{
		&GeographicCheck{rules: rules, history: history},
		&IPReputationCheck{rules: rules},
		&FrequencyCheck{rules: rules, history: history},
		&NewDeviceCheck{rules: rules, devices: devices},
		&TimeOfDayCheck{rules: rules, history: history, settings: settings},
		&ConcurrentSessionCheck{rules: rules, history: history, settings: settings},
	}
	return NewEngineWithChecks(resolver, history, devices, settings, checks, trustedDeviceMaxScore, log)
}

func NewEngineWithChecks(
	resolver LocationResolver,
	records RecordWriter,
	devices DeviceStore,
	settings Settings,
	checks []Check,
	trustedDeviceMaxScore int,
	log *slog.Logger,
) *Engine {
	return &Engine{
		resolver:              resolver,
		records:               records,
		devices:               devices,
		settings:              settings,
		checks:                checks,
		trustedDeviceMaxScore: trustedDeviceMaxScore,
		logger:                log,
		auditLogger:           logger.NewAuditLogger(log),
		now:                   time.Now,
	}
}

// Detect assesses one login attempt. The returned assessment is always usable;
// a non-nil error reports a persistence failure that happened after scoring.
func (e *Engine) Detect(ctx context.Context, userID string, attempt models.LoginAttempt) (models.RiskAssessment, error) {
	started := e.now()
	at := attempt.Timestamp
	if at.IsZero() {
		at = started
	}

	device := ParseDevice(attempt.UserAgent)
	ec := &EvalContext{
		UserID:      userID,
		Attempt:     attempt,
		Location:    e.resolver.Resolve(ctx, attempt.IPAddress),
		Device:      device,
		Fingerprint: Fingerprint(device, attempt.IPAddress),
		At:          at,
	}

	anomalies := make([]models.Anomaly, 0, len(e.checks))
	total := 0
	for _, check := range e.checks {
		anomaly, err := check.Evaluate(ctx, ec)
		if err != nil {
			metrics.CheckFailures.WithLabelValues(check.Name()).Inc()
			e.logger.Warn("anomaly check failed", "check", check.Name(), "user_id", userID, "error", err)
			continue
		}
		if anomaly == nil {
			continue
		}
		anomalies = append(anomalies, *anomaly)
		total += anomaly.RiskScore
	}

	assessment := models.RiskAssessment{
		UserID:            userID,
		UserEmail:         attempt.UserEmail,
		IPAddress:         attempt.IPAddress,
		TotalScore:        total,
		IsSuspicious:      total >= e.settings.RiskThreshold(ctx),
		Anomalies:         anomalies,
		Location:          ec.Location,
		Device:            device,
		DeviceFingerprint: ec.Fingerprint,
		AssessedAt:        at,
	}

	err := e.persist(ctx, ec, &assessment)

	metrics.ObserveDetection(assessment.IsSuspicious, assessment.AnomalyTypes(), e.now().Sub(started))
	e.auditLogger.LogRiskAssessment(ctx, userID, attempt.IPAddress, total, assessment.IsSuspicious, assessment.AnomalyTypes())

	return assessment, err
}

func (e *Engine) persist(ctx context.Context, ec *EvalContext, a *models.RiskAssessment) error {
	record := &models.LoginRecord{
		ID:                uuid.NewString(),
		UserID:            ec.UserID,
		IPAddress:         ec.Attempt.IPAddress,
		UserAgent:         ec.Attempt.UserAgent,
		SessionHash:       ec.Attempt.SessionHash,
		DeviceFingerprint: ec.Fingerprint,
		Location:          ec.Location,
		Device:            ec.Device,
		RiskScore:         a.TotalScore,
		IsSuspicious:      a.IsSuspicious,
		Anomalies:         a.Anomalies,
		IsActive:          true,
		LoginTime:         ec.At,
	}

	var persistErr error
	if err := e.records.Create(ctx, record); err != nil {
		e.logger.Error("failed to persist login record", "user_id", ec.UserID, "error", err)
		persistErr = fmt.Errorf("%w: login record: %v", models.ErrPersistenceFailure, err)
	} else {
		a.RecordID = record.ID
	}

	if a.TotalScore < e.trustedDeviceMaxScore {
		device := &models.TrustedDevice{
			ID:                uuid.NewString(),
			UserID:            ec.UserID,
			DeviceFingerprint: ec.Fingerprint,
			DeviceName:        DeviceName(ec.Device),
			Device:            ec.Device,
			IPAddress:         ec.Attempt.IPAddress,
			IsTrusted:         true,
			LastUsedAt:        ec.At,
		}
		if err := e.devices.Upsert(ctx, device); err != nil {
			e.logger.Error("failed to upsert trusted device", "user_id", ec.UserID, "error", err)
			if persistErr == nil {
				persistErr = fmt.Errorf("%w: trusted device: %v", models.ErrPersistenceFailure, err)
			}
		}
	}

	return persistErr
}
