package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/mailguard/internal/models"
	"github.com/BradenHooton/mailguard/pkg/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	// DefaultStatsWindow is used when the caller does not specify one
	DefaultStatsWindow = 24 * time.Hour
)

// AlertReader is the read side of alert storage
type AlertReader interface {
	GetByID(ctx context.Context, id string) (*models.SecurityAlert, error)
	List(ctx context.Context, filter models.AlertFilter) ([]*models.SecurityAlert, error)
	Count(ctx context.Context, filter models.AlertFilter) (int64, error)
	Stats(ctx context.Context, since time.Time) (*models.AlertStats, error)
}

// SessionStore manages login records as sessions
type SessionStore interface {
	ListActive(ctx context.Context, filter models.SessionFilter) ([]*models.LoginRecord, error)
	Deactivate(ctx context.Context, id string, at time.Time) error
	DeactivateBySession(ctx context.Context, userID, sessionHash string, at time.Time) error
	CountSuspiciousSince(ctx context.Context, since time.Time) (int64, error)
	CountAllActive(ctx context.Context) (int64, error)
}

// DeviceManager lists and revokes trusted devices
type DeviceManager interface {
	ListByUser(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
	Revoke(ctx context.Context, id string) (*models.TrustedDevice, error)
}

// RuleLister lists stored rules regardless of state
type RuleLister interface {
	ListAll(ctx context.Context) ([]models.RiskRule, error)
}

// RuleReloader refreshes the in-memory rule set
type RuleReloader interface {
	Load(ctx context.Context) error
	All() []models.RiskRule
}

// SecurityService backs the admin security console and the logout hook
type SecurityService struct {
	alerts      AlertReader
	sessions    SessionStore
	devices     DeviceManager
	rules       RuleLister
	registry    RuleReloader
	auditLogger *logger.AuditLogger
	logger      *slog.Logger
	now         func() time.Time
}

// NewSecurityService creates a new SecurityService
func NewSecurityService(
	alerts AlertReader,
	sessions SessionStore,
	devices DeviceManager,
	rules RuleLister,
	registry RuleReloader,
	logger *slog.Logger,
	auditLogger *logger.AuditLogger,
) *SecurityService {
	return &SecurityService{
		alerts:      alerts,
		sessions:    sessions,
		devices:     devices,
		rules:       rules,
		registry:    registry,
		auditLogger: auditLogger,
		logger:      logger,
		now:         time.Now,
	}
}

// ListAlerts returns one page of alerts and the total matching the filter
func (s *SecurityService) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.SecurityAlert, int64, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	alerts, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	total, err := s.alerts.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return alerts, total, nil
}

// GetAlert returns a single alert
func (s *SecurityService) GetAlert(ctx context.Context, id string) (*models.SecurityAlert, error) {
	return s.alerts.GetByID(ctx, id)
}

// Stats aggregates alerts and login activity over the trailing window
func (s *SecurityService) Stats(ctx context.Context, window time.Duration) (*models.AlertStats, error) {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	since := s.now().UTC().Add(-window)

	stats, err := s.alerts.Stats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert stats: %w", err)
	}
	if stats.SuspiciousLogins, err = s.sessions.CountSuspiciousSince(ctx, since); err != nil {
		return nil, fmt.Errorf("failed to count suspicious logins: %w", err)
	}
	if stats.ActiveSessions, err = s.sessions.CountAllActive(ctx); err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return stats, nil
}

// ListActiveSessions returns active login records, newest first
func (s *SecurityService) ListActiveSessions(ctx context.Context, filter models.SessionFilter) ([]*models.LoginRecord, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	return s.sessions.ListActive(ctx, filter)
}

// TerminateSession force-ends a session from the console
func (s *SecurityService) TerminateSession(ctx context.Context, actorID, recordID string) error {
	err := s.sessions.Deactivate(ctx, recordID, s.now().UTC())

	s.auditLogger.LogSecurityAction(ctx, logger.AuditEvent{
		EventType: "session_terminated",
		ActorID:   actorID,
		TargetID:  recordID,
		Success:   err == nil,
	})
	return err
}

// EndSession marks the user's session inactive on logout
func (s *SecurityService) EndSession(ctx context.Context, userID, sessionHash string) error {
	return s.sessions.DeactivateBySession(ctx, userID, sessionHash, s.now().UTC())
}

// ListUserDevices returns all devices known for a user
func (s *SecurityService) ListUserDevices(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if devices == nil {
		devices = []*models.TrustedDevice{}
	}
	return devices, nil
}

// RevokeDevice withdraws trust from a device. A later low-risk login from it trusts it again.
func (s *SecurityService) RevokeDevice(ctx context.Context, actorID, deviceID string) (*models.TrustedDevice, error) {
	device, err := s.devices.Revoke(ctx, deviceID)

	event := logger.AuditEvent{
		EventType: "device_revoked",
		ActorID:   actorID,
		TargetID:  deviceID,
		Success:   err == nil,
	}
	if device != nil {
		event.UserID = device.UserID
	}
	s.auditLogger.LogSecurityAction(ctx, event)

	if err != nil {
		return nil, err
	}
	return device, nil
}

// ListRules returns every stored rule
func (s *SecurityService) ListRules(ctx context.Context) ([]models.RiskRule, error) {
	rules, err := s.rules.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	if rules == nil {
		rules = []models.RiskRule{}
	}
	return rules, nil
}

// ReloadRules refreshes the registry and returns the number of active rules
func (s *SecurityService) ReloadRules(ctx context.Context, actorID string) (int, error) {
	err := s.registry.Load(ctx)

	s.auditLogger.LogSecurityAction(ctx, logger.AuditEvent{
		EventType: "rules_reloaded",
		ActorID:   actorID,
		Success:   err == nil,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reload rules: %w", err)
	}
	return len(s.registry.All()), nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
