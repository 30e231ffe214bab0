package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/mailguard/internal/auth"
	"github.com/BradenHooton/mailguard/internal/models"
	pkghttp "github.com/BradenHooton/mailguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds admin claims to the request context
func WithAdminContext(req *http.Request, userID string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Type:   auth.TokenTypeAccess,
		Role:   models.RoleAdmin,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParams attaches chi route parameters to the request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockDetector implements Detector for testing
type MockDetector struct {
	DetectFunc func(ctx context.Context, userID string, attempt models.LoginAttempt) (models.RiskAssessment, error)
}

func (m *MockDetector) Detect(ctx context.Context, userID string, attempt models.LoginAttempt) (models.RiskAssessment, error) {
	if m.DetectFunc == nil {
		return models.RiskAssessment{UserID: userID, IPAddress: attempt.IPAddress, Anomalies: []models.Anomaly{}}, nil
	}
	return m.DetectFunc(ctx, userID, attempt)
}

// MockAlerter implements SuspiciousLoginAlerter for testing
type MockAlerter struct {
	RaiseIfSuspiciousFunc func(ctx context.Context, userID string, a models.RiskAssessment) (string, bool, error)
}

func (m *MockAlerter) RaiseIfSuspicious(ctx context.Context, userID string, a models.RiskAssessment) (string, bool, error) {
	if m.RaiseIfSuspiciousFunc == nil {
		return "", false, nil
	}
	return m.RaiseIfSuspiciousFunc(ctx, userID, a)
}

// MockSessionEnder implements SessionEnder for testing
type MockSessionEnder struct {
	EndSessionFunc func(ctx context.Context, userID, sessionHash string) error
}

func (m *MockSessionEnder) EndSession(ctx context.Context, userID, sessionHash string) error {
	if m.EndSessionFunc == nil {
		return nil
	}
	return m.EndSessionFunc(ctx, userID, sessionHash)
}

// MockSecurityConsoleService implements SecurityConsoleService for testing
type MockSecurityConsoleService struct {
	ListAlertsFunc         func(ctx context.Context, filter models.AlertFilter) ([]*models.SecurityAlert, int64, error)
	GetAlertFunc           func(ctx context.Context, id string) (*models.SecurityAlert, error)
	StatsFunc              func(ctx context.Context, window time.Duration) (*models.AlertStats, error)
	ListActiveSessionsFunc func(ctx context.Context, filter models.SessionFilter) ([]*models.LoginRecord, error)
	TerminateSessionFunc   func(ctx context.Context, actorID, recordID string) error
	ListUserDevicesFunc    func(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
	RevokeDeviceFunc       func(ctx context.Context, actorID, deviceID string) (*models.TrustedDevice, error)
	ListRulesFunc          func(ctx context.Context) ([]models.RiskRule, error)
	ReloadRulesFunc        func(ctx context.Context, actorID string) (int, error)
}

func (m *MockSecurityConsoleService) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.SecurityAlert, int64, error) {
	if m.ListAlertsFunc == nil {
		return []*models.SecurityAlert{}, 0, nil
	}
	return m.ListAlertsFunc(ctx, filter)
}

func (m *MockSecurityConsoleService) GetAlert(ctx context.Context, id string) (*models.SecurityAlert, error) {
	if m.GetAlertFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetAlertFunc(ctx, id)
}

func (m *MockSecurityConsoleService) Stats(ctx context.Context, window time.Duration) (*models.AlertStats, error) {
	if m.StatsFunc == nil {
		return &models.AlertStats{}, nil
	}
	return m.StatsFunc(ctx, window)
}

func (m *MockSecurityConsoleService) ListActiveSessions(ctx context.Context, filter models.SessionFilter) ([]*models.LoginRecord, error) {
	if m.ListActiveSessionsFunc == nil {
		return []*models.LoginRecord{}, nil
	}
	return m.ListActiveSessionsFunc(ctx, filter)
}

func (m *MockSecurityConsoleService) TerminateSession(ctx context.Context, actorID, recordID string) error {
	if m.TerminateSessionFunc == nil {
		return nil
	}
	return m.TerminateSessionFunc(ctx, actorID, recordID)
}

func (m *MockSecurityConsoleService) ListUserDevices(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	if m.ListUserDevicesFunc == nil {
		return []*models.TrustedDevice{}, nil
	}
	return m.ListUserDevicesFunc(ctx, userID)
}

func (m *MockSecurityConsoleService) RevokeDevice(ctx context.Context, actorID, deviceID string) (*models.TrustedDevice, error) {
	if m.RevokeDeviceFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RevokeDeviceFunc(ctx, actorID, deviceID)
}

func (m *MockSecurityConsoleService) ListRules(ctx context.Context) ([]models.RiskRule, error) {
	if m.ListRulesFunc == nil {
		return []models.RiskRule{}, nil
	}
	return m.ListRulesFunc(ctx)
}

func (m *MockSecurityConsoleService) ReloadRules(ctx context.Context, actorID string) (int, error) {
	if m.ReloadRulesFunc == nil {
		return 0, nil
	}
	return m.ReloadRulesFunc(ctx, actorID)
}

// MockAlertResolver implements AlertResolver for testing
type MockAlertResolver struct {
	ResolveFunc func(ctx context.Context, alertID, resolvedBy, notes string) (*models.SecurityAlert, error)
}

func (m *MockAlertResolver) Resolve(ctx context.Context, alertID, resolvedBy, notes string) (*models.SecurityAlert, error) {
	if m.ResolveFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ResolveFunc(ctx, alertID, resolvedBy, notes)
}
