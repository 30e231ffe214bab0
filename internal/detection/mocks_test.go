package detection

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/mailguard/internal/models"
)

type MockResolver struct {
	ResolveFunc func(ctx context.Context, ip string) models.LocationInfo
}

func (m *MockResolver) Resolve(ctx context.Context, ip string) models.LocationInfo {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, ip)
	}
	return models.DefaultLocation()
}

type MockRules map[string]models.RiskRule

func (m MockRules) Get(name string) (models.RiskRule, bool) {
	r, ok := m[name]
	return r, ok
}

type MockHistory struct {
	FindRecentLocationsFunc       func(ctx context.Context, userID string, since, until time.Time, limit int) ([]models.LocatedLogin, error)
	CountRecentAttemptsFromIPFunc func(ctx context.Context, ip string, since, until time.Time) (int, error)
	CountActiveSessionsFunc       func(ctx context.Context, userID string) (int, error)
	LoginHourHistogramFunc        func(ctx context.Context, userID string, since, until time.Time, minCount int) ([]models.HourCount, error)
	CreateFunc                    func(ctx context.Context, record *models.LoginRecord) error

	Created []*models.LoginRecord
}

func (m *MockHistory) FindRecentLocations(ctx context.Context, userID string, since, until time.Time, limit int) ([]models.LocatedLogin, error) {
	if m.FindRecentLocationsFunc != nil {
		return m.FindRecentLocationsFunc(ctx, userID, since, until, limit)
	}
	return nil, nil
}

func (m *MockHistory) CountRecentAttemptsFromIP(ctx context.Context, ip string, since, until time.Time) (int, error) {
	if m.CountRecentAttemptsFromIPFunc != nil {
		return m.CountRecentAttemptsFromIPFunc(ctx, ip, since, until)
	}
	return 0, nil
}

func (m *MockHistory) CountActiveSessions(ctx context.Context, userID string) (int, error) {
	if m.CountActiveSessionsFunc != nil {
		return m.CountActiveSessionsFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockHistory) LoginHourHistogram(ctx context.Context, userID string, since, until time.Time, minCount int) ([]models.HourCount, error) {
	if m.LoginHourHistogramFunc != nil {
		return m.LoginHourHistogramFunc(ctx, userID, since, until, minCount)
	}
	return nil, nil
}

func (m *MockHistory) Create(ctx context.Context, record *models.LoginRecord) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, record)
	}
	m.Created = append(m.Created, record)
	return nil
}

type MockDeviceStore struct {
	FindTrustedFunc  func(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error)
	CountTrustedFunc func(ctx context.Context, userID string) (int, error)
	UpsertFunc       func(ctx context.Context, device *models.TrustedDevice) error

	Upserted []*models.TrustedDevice
}

func (m *MockDeviceStore) FindTrusted(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error) {
	if m.FindTrustedFunc != nil {
		return m.FindTrustedFunc(ctx, userID, fingerprint)
	}
	return nil, models.ErrNotFound
}

func (m *MockDeviceStore) CountTrusted(ctx context.Context, userID string) (int, error) {
	if m.CountTrustedFunc != nil {
		return m.CountTrustedFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockDeviceStore) Upsert(ctx context.Context, device *models.TrustedDevice) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, device)
	}
	m.Upserted = append(m.Upserted, device)
	return nil
}

type MockSettings struct {
	Threshold   int
	MaxSessions int
	NormalHours []int
}

func (m *MockSettings) RiskThreshold(ctx context.Context) int         { return m.Threshold }
func (m *MockSettings) MaxConcurrentSessions(ctx context.Context) int { return m.MaxSessions }
func (m *MockSettings) NormalLoginHours(ctx context.Context) []int    { return m.NormalHours }

func defaultSettings() *MockSettings {
	hours := make([]int, 0, 15)
	for h := 8; h <= 22; h++ {
		hours = append(hours, h)
	}
	return &MockSettings{Threshold: 50, MaxSessions: 5, NormalHours: hours}
}

// staticCheck contributes a fixed score, or fails when err is set
type staticCheck struct {
	name  string
	score int
	err   error
}

func (c staticCheck) Name() string { return c.name }

func (c staticCheck) Evaluate(ctx context.Context, ec *EvalContext) (*models.Anomaly, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.score == 0 {
		return nil, nil
	}
	return &models.Anomaly{Type: c.name, RiskScore: c.score, Reason: c.name}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustRule(name string, ruleType models.RuleType, score int, raw string) models.RiskRule {
	cond, err := models.ParseRuleCondition(ruleType, []byte(raw))
	if err != nil {
		panic(err)
	}
	return models.RiskRule{Name: name, Type: ruleType, Enabled: true, RiskScore: score, RawCondition: []byte(raw), Condition: cond}
}

func defaultRules() MockRules {
	return MockRules{
		models.RuleGeographicAnomaly: mustRule(models.RuleGeographicAnomaly, models.RuleTypeGeographic, 40, `{"max_distance_km":500,"time_window_hours":6}`),
		models.RuleIPReputation:      mustRule(models.RuleIPReputation, models.RuleTypeIPReputation, 50, `{}`),
		models.RuleLoginFrequency:    mustRule(models.RuleLoginFrequency, models.RuleTypeFrequency, 30, `{"max_attempts":5,"time_window_minutes":30}`),
		models.RuleNewDevice:         mustRule(models.RuleNewDevice, models.RuleTypeDevice, 20, `{}`),
		models.RuleTimeAnomaly:       mustRule(models.RuleTimeAnomaly, models.RuleTypeTime, 15, `{}`),
	}
}

func floatPtr(f float64) *float64 { return &f }

func cityLocation(city, country, tz string, lat, lon float64) models.LocationInfo {
	return models.LocationInfo{
		Country: country, Region: models.UnknownLocation, City: city,
		Latitude: floatPtr(lat), Longitude: floatPtr(lon),
		Timezone: tz, ISP: "Example ISP", ThreatLevel: models.ThreatLevelLow,
	}
}

const chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
