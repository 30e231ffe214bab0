package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/mailguard/internal/models"
)

// MockAlertRepository implements AlertStore and AlertReader for testing
type MockAlertRepository struct {
	CreateFunc  func(ctx context.Context, alert *models.SecurityAlert) error
	ResolveFunc func(ctx context.Context, id, resolvedBy, notes string, at time.Time) (*models.SecurityAlert, error)
	GetByIDFunc func(ctx context.Context, id string) (*models.SecurityAlert, error)
	ListFunc    func(ctx context.Context, filter models.AlertFilter) ([]*models.SecurityAlert, error)
	CountFunc   func(ctx context.Context, filter models.AlertFilter) (int64, error)
	StatsFunc   func(ctx context.Context, since time.Time) (*models.AlertStats, error)
}

func (m *MockAlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, alert)
	}
	return nil
}

func (m *MockAlertRepository) Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) (*models.SecurityAlert, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, id, resolvedBy, notes, at)
	}
	return nil, models.ErrNotFound
}

func (m *MockAlertRepository) GetByID(ctx context.Context, id string) (*models.SecurityAlert, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]*models.SecurityAlert, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []*models.SecurityAlert{}, nil
}

func (m *MockAlertRepository) Count(ctx context.Context, filter models.AlertFilter) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, filter)
	}
	return 0, nil
}

func (m *MockAlertRepository) Stats(ctx context.Context, since time.Time) (*models.AlertStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, since)
	}
	return &models.AlertStats{
		BySeverity:  map[models.Severity]int64{},
		ByType:      map[string]int64{},
		WindowStart: since,
	}, nil
}

// MockSettingsStore implements SettingsStore over a map
type MockSettingsStore struct {
	Values  map[string]string
	GetFunc func(ctx context.Context, key string) (string, error)
}

func (m *MockSettingsStore) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	if v, ok := m.Values[key]; ok {
		return v, nil
	}
	return "", models.ErrNotFound
}

// MockAdminLister implements AdminLister for testing
type MockAdminLister struct {
	ListActiveAdministratorsFunc func(ctx context.Context) ([]models.Administrator, error)
}

func (m *MockAdminLister) ListActiveAdministrators(ctx context.Context) ([]models.Administrator, error) {
	if m.ListActiveAdministratorsFunc != nil {
		return m.ListActiveAdministratorsFunc(ctx)
	}
	return []models.Administrator{}, nil
}

// SentMessage is one call recorded by MockMailer
type SentMessage struct {
	To      string
	Message RenderedMessage
}

// MockMailer implements Mailer and records every send attempt
type MockMailer struct {
	SendFunc func(ctx context.Context, to string, msg RenderedMessage) error

	mu   sync.Mutex
	sent []SentMessage
}

func (m *MockMailer) Send(ctx context.Context, to string, msg RenderedMessage) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{To: to, Message: msg})
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, to, msg)
	}
	return nil
}

// Sent returns a copy of the recorded sends
func (m *MockMailer) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// MockEnqueuer implements Enqueuer and records accepted jobs
type MockEnqueuer struct {
	EnqueueFunc func(job NotificationJob) error
	Jobs        []NotificationJob
}

func (m *MockEnqueuer) Enqueue(job NotificationJob) error {
	if m.EnqueueFunc != nil {
		if err := m.EnqueueFunc(job); err != nil {
			return err
		}
	}
	m.Jobs = append(m.Jobs, job)
	return nil
}

// MockAlertSettings implements AlertSettings and TemplateSource with fixed values
type MockAlertSettings struct {
	Enabled  bool
	Floor    models.Severity
	Template *AlertTemplate
}

func (m *MockAlertSettings) NotifyAdmins(ctx context.Context) bool {
	return m.Enabled
}

func (m *MockAlertSettings) NotifyMinSeverity(ctx context.Context) models.Severity {
	if m.Floor == "" {
		return models.SeverityMedium
	}
	return m.Floor
}

func (m *MockAlertSettings) AlertTemplate(ctx context.Context) AlertTemplate {
	if m.Template != nil {
		return *m.Template
	}
	return DefaultAlertTemplate
}

// MockSessionStore implements SessionStore for testing
type MockSessionStore struct {
	ListActiveFunc           func(ctx context.Context, filter models.SessionFilter) ([]*models.LoginRecord, error)
	DeactivateFunc           func(ctx context.Context, id string, at time.Time) error
	DeactivateBySessionFunc  func(ctx context.Context, userID, sessionHash string, at time.Time) error
	CountSuspiciousSinceFunc func(ctx context.Context, since time.Time) (int64, error)
	CountAllActiveFunc       func(ctx context.Context) (int64, error)
}

func (m *MockSessionStore) ListActive(ctx context.Context, filter models.SessionFilter) ([]*models.LoginRecord, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, filter)
	}
	return []*models.LoginRecord{}, nil
}

func (m *MockSessionStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id, at)
	}
	return nil
}

func (m *MockSessionStore) DeactivateBySession(ctx context.Context, userID, sessionHash string, at time.Time) error {
	if m.DeactivateBySessionFunc != nil {
		return m.DeactivateBySessionFunc(ctx, userID, sessionHash, at)
	}
	return nil
}

func (m *MockSessionStore) CountSuspiciousSince(ctx context.Context, since time.Time) (int64, error) {
	if m.CountSuspiciousSinceFunc != nil {
		return m.CountSuspiciousSinceFunc(ctx, since)
	}
	return 0, nil
}

func (m *MockSessionStore) CountAllActive(ctx context.Context) (int64, error) {
	if m.CountAllActiveFunc != nil {
		return m.CountAllActiveFunc(ctx)
	}
	return 0, nil
}

// MockDeviceManager implements DeviceManager for testing
type MockDeviceManager struct {
	ListByUserFunc func(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
	RevokeFunc     func(ctx context.Context, id string) (*models.TrustedDevice, error)
}

func (m *MockDeviceManager) ListByUser(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockDeviceManager) Revoke(ctx context.Context, id string) (*models.TrustedDevice, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockRuleStore implements RuleLister and RuleReloader for testing
type MockRuleStore struct {
	ListAllFunc func(ctx context.Context) ([]models.RiskRule, error)
	LoadFunc    func(ctx context.Context) error
	Rules       []models.RiskRule
}

func (m *MockRuleStore) ListAll(ctx context.Context) ([]models.RiskRule, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx)
	}
	return m.Rules, nil
}

func (m *MockRuleStore) Load(ctx context.Context) error {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	return nil
}

func (m *MockRuleStore) All() []models.RiskRule {
	return m.Rules
}

// NewTestAssessment builds an assessment with one anomaly carrying the whole score
func NewTestAssessment(userID string, score int, suspicious bool) models.RiskAssessment {
	return models.RiskAssessment{
		RecordID:     "record-1",
		UserID:       userID,
		UserEmail:    "alice@example.com",
		IPAddress:    "203.0.113.7",
		TotalScore:   score,
		IsSuspicious: suspicious,
		Anomalies: []models.Anomaly{
			{Type: "ip_reputation", RiskScore: score, Reason: "Suspicious IP characteristics: Tor exit node"},
		},
		Location: models.LocationInfo{
			Country:     "Germany",
			Region:      "Berlin",
			City:        "Berlin",
			Timezone:    "Europe/Berlin",
			ThreatLevel: models.ThreatLevelHigh,
			IsTor:       true,
		},
		Device: models.DeviceInfo{
			Type:    models.DeviceTypeDesktop,
			Browser: "Firefox",
			OS:      "Linux",
		},
		DeviceFingerprint: "fp-1",
		AssessedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// NewTestAlert builds an open alert
func NewTestAlert(id, userID string, severity models.Severity) *models.SecurityAlert {
	return &models.SecurityAlert{
		ID:          id,
		UserID:      userID,
		AlertType:   models.AlertTypeSuspiciousLogin,
		Severity:    severity,
		Title:       "Suspicious login detected (risk score 65)",
		Description: "Suspicious IP characteristics: Tor exit node",
		Data:        map[string]any{"risk_score": 65, "ip_address": "203.0.113.7"},
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}
