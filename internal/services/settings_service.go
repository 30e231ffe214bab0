package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BradenHooton/mailguard/internal/config"
	"github.com/BradenHooton/mailguard/internal/models"
)

// Runtime setting keys in system_settings
const (
	SettingRiskThreshold         = "security.risk_threshold"
	SettingMaxConcurrentSessions = "security.max_concurrent_sessions"
	SettingNotifyAdmins          = "security.notify_admins"
	SettingNotifyMinSeverity     = "security.notify_min_severity"
	SettingAlertTemplateSubject  = "security.alert_template_subject"
	SettingAlertTemplateBody     = "security.alert_template_body"
	SettingNormalLoginHours      = "security.normal_login_hours"
)

// SettingsStore reads raw setting values
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// SettingsService exposes typed runtime settings. Values are read on every call so
// changes in system_settings apply without a restart; missing or unparsable values
// fall back to the process defaults.
type SettingsService struct {
	store    SettingsStore
	defaults config.DetectionConfig
	logger   *slog.Logger
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(store SettingsStore, defaults config.DetectionConfig, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		store:    store,
		defaults: defaults,
		logger:   logger,
	}
}

func (s *SettingsService) raw(ctx context.Context, key string) (string, bool) {
	value, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("failed to read setting, using default",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// intSetting reads an integer setting no smaller than floor, falling back to def otherwise
func (s *SettingsService) intSetting(ctx context.Context, key string, def, floor int) int {
	value, ok := s.raw(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < floor {
		s.logger.Warn("invalid integer setting, using default",
			slog.String("key", key),
			slog.String("value", value))
		return def
	}
	return n
}

// RiskThreshold is the suspicious cutoff for total scores
func (s *SettingsService) RiskThreshold(ctx context.Context) int {
	return s.intSetting(ctx, SettingRiskThreshold, s.defaults.RiskThreshold, 0)
}

// MaxConcurrentSessions is the active-session limit per user. Values below 1 are rejected.
func (s *SettingsService) MaxConcurrentSessions(ctx context.Context) int {
	return s.intSetting(ctx, SettingMaxConcurrentSessions, s.defaults.MaxConcurrentSessions, 1)
}

// NormalLoginHours is the fallback set of unsurprising login hours
func (s *SettingsService) NormalLoginHours(ctx context.Context) []int {
	value, ok := s.raw(ctx, SettingNormalLoginHours)
	if !ok {
		return s.defaults.NormalLoginHours
	}
	hours, err := config.ParseHourSet(value)
	if err != nil {
		s.logger.Warn("invalid login hours setting, using default",
			slog.String("value", value),
			slog.String("error", err.Error()))
		return s.defaults.NormalLoginHours
	}
	return hours
}

// NotifyAdmins reports whether administrator notifications are enabled
func (s *SettingsService) NotifyAdmins(ctx context.Context) bool {
	value, ok := s.raw(ctx, SettingNotifyAdmins)
	if !ok {
		return true
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		s.logger.Warn("invalid notify_admins setting, using default", slog.String("value", value))
		return true
	}
	return enabled
}

// NotifyMinSeverity is the lowest severity that triggers a notification
func (s *SettingsService) NotifyMinSeverity(ctx context.Context) models.Severity {
	value, ok := s.raw(ctx, SettingNotifyMinSeverity)
	if !ok {
		return models.SeverityMedium
	}
	sev, valid := models.ParseSeverity(strings.ToLower(value))
	if !valid {
		s.logger.Warn("invalid severity floor setting, using default", slog.String("value", value))
		return models.SeverityMedium
	}
	return sev
}

// AlertTemplate returns the configured notification template. Unset parts use the default.
func (s *SettingsService) AlertTemplate(ctx context.Context) AlertTemplate {
	t := DefaultAlertTemplate
	if subject, ok := s.raw(ctx, SettingAlertTemplateSubject); ok {
		t.Subject = subject
	}
	if body, ok := s.raw(ctx, SettingAlertTemplateBody); ok {
		t.Body = body
	}
	return t
}
