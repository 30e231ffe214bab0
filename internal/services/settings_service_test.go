package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/mailguard/internal/config"
	"github.com/BradenHooton/mailguard/internal/models"
	"github.com/BradenHooton/mailguard/internal/services"
)

func testDetectionDefaults() config.DetectionConfig {
	return config.DetectionConfig{
		RiskThreshold:         50,
		TrustedDeviceMaxScore: 30,
		MaxConcurrentSessions: 5,
		NormalLoginHours:      []int{8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22},
	}
}

func newTestSettings(values map[string]string) *services.SettingsService {
	return services.NewSettingsService(
		&services.MockSettingsStore{Values: values},
		testDetectionDefaults(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestSettingsService_Defaults(t *testing.T) {
	s := newTestSettings(nil)
	ctx := context.Background()

	assert.Equal(t, 50, s.RiskThreshold(ctx))
	assert.Equal(t, 5, s.MaxConcurrentSessions(ctx))
	assert.Equal(t, testDetectionDefaults().NormalLoginHours, s.NormalLoginHours(ctx))
	assert.True(t, s.NotifyAdmins(ctx))
	assert.Equal(t, models.SeverityMedium, s.NotifyMinSeverity(ctx))
	assert.Equal(t, services.DefaultAlertTemplate, s.AlertTemplate(ctx))
}

func TestSettingsService_StoredValues(t *testing.T) {
	s := newTestSettings(map[string]string{
		services.SettingRiskThreshold:         "65",
		services.SettingMaxConcurrentSessions: " 3 ",
		services.SettingNotifyAdmins:          "false",
		services.SettingNotifyMinSeverity:     "HIGH",
		services.SettingNormalLoginHours:      "0-2,23",
		services.SettingAlertTemplateSubject:  "Alert for {user_id}",
	})
	ctx := context.Background()

	assert.Equal(t, 65, s.RiskThreshold(ctx))
	assert.Equal(t, 3, s.MaxConcurrentSessions(ctx))
	assert.False(t, s.NotifyAdmins(ctx))
	assert.Equal(t, models.SeverityHigh, s.NotifyMinSeverity(ctx))
	assert.Equal(t, []int{0, 1, 2, 23}, s.NormalLoginHours(ctx))

	tmpl := s.AlertTemplate(ctx)
	assert.Equal(t, "Alert for {user_id}", tmpl.Subject)
	assert.Equal(t, services.DefaultAlertTemplate.Body, tmpl.Body)
}

func TestSettingsService_InvalidValuesFallBack(t *testing.T) {
	s := newTestSettings(map[string]string{
		services.SettingRiskThreshold:         "lots",
		services.SettingMaxConcurrentSessions: "-1",
		services.SettingNotifyAdmins:          "maybe",
		services.SettingNotifyMinSeverity:     "urgent",
		services.SettingNormalLoginHours:      "25-30",
	})
	ctx := context.Background()

	assert.Equal(t, 50, s.RiskThreshold(ctx))
	assert.Equal(t, 5, s.MaxConcurrentSessions(ctx))
	assert.True(t, s.NotifyAdmins(ctx))
	assert.Equal(t, models.SeverityMedium, s.NotifyMinSeverity(ctx))
	assert.Equal(t, testDetectionDefaults().NormalLoginHours, s.NormalLoginHours(ctx))
}

func TestSettingsService_ZeroSessionLimitFallsBack(t *testing.T) {
	s := newTestSettings(map[string]string{
		services.SettingMaxConcurrentSessions: "0",
		services.SettingRiskThreshold:         "0",
	})
	ctx := context.Background()

	assert.Equal(t, 5, s.MaxConcurrentSessions(ctx))
	assert.Equal(t, 0, s.RiskThreshold(ctx))
}

func TestSettingsService_StoreErrorFallsBack(t *testing.T) {
	s := services.NewSettingsService(
		&services.MockSettingsStore{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", errors.New("connection refused")
			},
		},
		testDetectionDefaults(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	assert.Equal(t, 50, s.RiskThreshold(context.Background()))
	assert.True(t, s.NotifyAdmins(context.Background()))
}
