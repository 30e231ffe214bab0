package handlers_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/mailguard/internal/handlers"
	"github.com/BradenHooton/mailguard/internal/models"
)

func newAdminHandler(svc *handlers.MockSecurityConsoleService, resolver *handlers.MockAlertResolver) *handlers.AdminHandler {
	if svc == nil {
		svc = &handlers.MockSecurityConsoleService{}
	}
	if resolver == nil {
		resolver = &handlers.MockAlertResolver{}
	}
	return handlers.NewAdminHandler(svc, resolver, discardLogger())
}

// ── ListAlerts ────────────────────────────────────────────────────────────────

func TestListAlerts_PassesFilters(t *testing.T) {
	var got models.AlertFilter
	svc := &handlers.MockSecurityConsoleService{
		ListAlertsFunc: func(ctx context.Context, f models.AlertFilter) ([]*models.SecurityAlert, int64, error) {
			got = f
			return []*models.SecurityAlert{{ID: "a1", Severity: models.SeverityHigh}}, 1, nil
		},
	}
	h := newAdminHandler(svc, nil)

	req := httptest.NewRequest("GET", "/admin/security/alerts?severity=HIGH&type=suspicious_login&resolved=false&since=2026-03-01T00:00:00Z&user=user-1&limit=10&offset=20", nil)
	w := httptest.NewRecorder()
	h.ListAlerts(w, req)

	var resp handlers.AlertListResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, int64(1), resp.Total)
	require.Len(t, resp.Alerts, 1)

	require.NotNil(t, got.Severity)
	assert.Equal(t, models.SeverityHigh, *got.Severity)
	assert.Equal(t, "suspicious_login", got.AlertType)
	require.NotNil(t, got.Resolved)
	assert.False(t, *got.Resolved)
	require.NotNil(t, got.Since)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got.Since.UTC())
	assert.Nil(t, got.Until)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, 20, got.Offset)
}

func TestListAlerts_InvalidFilters_Returns400(t *testing.T) {
	queries := []string{
		"severity=urgent",
		"resolved=maybe",
		"since=yesterday",
		"limit=0",
		"limit=500",
		"offset=-1",
		"since=2026-03-02T00:00:00Z&until=2026-03-01T00:00:00Z",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			h := newAdminHandler(nil, nil)
			w := httptest.NewRecorder()
			h.ListAlerts(w, httptest.NewRequest("GET", "/admin/security/alerts?"+q, nil))
			handlers.AssertErrorResponse(t, w, 400, "bad_request")
		})
	}
}

func TestListAlerts_ServiceError_Returns500(t *testing.T) {
	svc := &handlers.MockSecurityConsoleService{
		ListAlertsFunc: func(ctx context.Context, f models.AlertFilter) ([]*models.SecurityAlert, int64, error) {
			return nil, 0, errors.New("database connection lost")
		},
	}
	h := newAdminHandler(svc, nil)

	w := httptest.NewRecorder()
	h.ListAlerts(w, httptest.NewRequest("GET", "/admin/security/alerts", nil))

	handlers.AssertErrorResponse(t, w, 500, "internal_error")
}

// ── GetAlert / ResolveAlert ───────────────────────────────────────────────────

func TestGetAlert(t *testing.T) {
	svc := &handlers.MockSecurityConsoleService{
		GetAlertFunc: func(ctx context.Context, id string) (*models.SecurityAlert, error) {
			if id == "a1" {
				return &models.SecurityAlert{ID: "a1"}, nil
			}
			return nil, models.ErrNotFound
		},
	}
	h := newAdminHandler(svc, nil)

	w := httptest.NewRecorder()
	h.GetAlert(w, handlers.WithURLParams(httptest.NewRequest("GET", "/admin/security/alerts/a1", nil), map[string]string{"id": "a1"}))
	var alert models.SecurityAlert
	handlers.AssertJSONResponse(t, w, 200, &alert)
	assert.Equal(t, "a1", alert.ID)

	w = httptest.NewRecorder()
	h.GetAlert(w, handlers.WithURLParams(httptest.NewRequest("GET", "/admin/security/alerts/zz", nil), map[string]string{"id": "zz"}))
	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestResolveAlert(t *testing.T) {
	var gotBy, gotNotes string
	resolver := &handlers.MockAlertResolver{
		ResolveFunc: func(ctx context.Context, alertID, resolvedBy, notes string) (*models.SecurityAlert, error) {
			switch alertID {
			case "open":
				gotBy, gotNotes = resolvedBy, notes
				return &models.SecurityAlert{ID: alertID, IsResolved: true, ResolvedBy: &resolvedBy}, nil
			case "closed":
				return nil, models.ErrAlertAlreadyResolved
			default:
				return nil, models.ErrNotFound
			}
		},
	}
	h := newAdminHandler(nil, resolver)

	req := handlers.NewTestRequest(t, "POST", "/admin/security/alerts/open/resolve", map[string]string{"notes": "known VPN"})
	req = handlers.WithAdminContext(handlers.WithURLParams(req, map[string]string{"id": "open"}), "admin-1")
	w := httptest.NewRecorder()
	h.ResolveAlert(w, req)

	var alert models.SecurityAlert
	handlers.AssertJSONResponse(t, w, 200, &alert)
	assert.True(t, alert.IsResolved)
	assert.Equal(t, "admin-1", gotBy)
	assert.Equal(t, "known VPN", gotNotes)

	req = handlers.WithAdminContext(handlers.WithURLParams(httptest.NewRequest("POST", "/admin/security/alerts/closed/resolve", nil), map[string]string{"id": "closed"}), "admin-1")
	w = httptest.NewRecorder()
	h.ResolveAlert(w, req)
	handlers.AssertErrorResponse(t, w, 409, "conflict")

	req = handlers.WithAdminContext(handlers.WithURLParams(httptest.NewRequest("POST", "/admin/security/alerts/nope/resolve", nil), map[string]string{"id": "nope"}), "admin-1")
	w = httptest.NewRecorder()
	h.ResolveAlert(w, req)
	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestResolveAlert_WithoutClaims_Returns401(t *testing.T) {
	h := newAdminHandler(nil, nil)

	w := httptest.NewRecorder()
	h.ResolveAlert(w, httptest.NewRequest("POST", "/admin/security/alerts/a1/resolve", nil))

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

// ── Stats / Sessions / Devices / Rules ───────────────────────────────────────

func TestGetStats(t *testing.T) {
	var gotWindow time.Duration
	svc := &handlers.MockSecurityConsoleService{
		StatsFunc: func(ctx context.Context, window time.Duration) (*models.AlertStats, error) {
			gotWindow = window
			return &models.AlertStats{Total: 4, SuspiciousLogins: 9}, nil
		},
	}
	h := newAdminHandler(svc, nil)

	w := httptest.NewRecorder()
	h.GetStats(w, httptest.NewRequest("GET", "/admin/security/stats?window=168h", nil))

	var stats models.AlertStats
	handlers.AssertJSONResponse(t, w, 200, &stats)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(9), stats.SuspiciousLogins)
	assert.Equal(t, 168*time.Hour, gotWindow)

	w = httptest.NewRecorder()
	h.GetStats(w, httptest.NewRequest("GET", "/admin/security/stats?window=-1h", nil))
	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestTerminateSession(t *testing.T) {
	var gotActor, gotID string
	svc := &handlers.MockSecurityConsoleService{
		TerminateSessionFunc: func(ctx context.Context, actorID, recordID string) error {
			if recordID == "missing" {
				return models.ErrNotFound
			}
			gotActor, gotID = actorID, recordID
			return nil
		},
	}
	h := newAdminHandler(svc, nil)

	req := handlers.WithAdminContext(handlers.WithURLParams(httptest.NewRequest("POST", "/admin/security/sessions/r1/terminate", nil), map[string]string{"id": "r1"}), "admin-1")
	w := httptest.NewRecorder()
	h.TerminateSession(w, req)
	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "admin-1", gotActor)
	assert.Equal(t, "r1", gotID)

	req = handlers.WithAdminContext(handlers.WithURLParams(httptest.NewRequest("POST", "/admin/security/sessions/missing/terminate", nil), map[string]string{"id": "missing"}), "admin-1")
	w = httptest.NewRecorder()
	h.TerminateSession(w, req)
	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestListSessions_PassesUserFilter(t *testing.T) {
	var got models.SessionFilter
	svc := &handlers.MockSecurityConsoleService{
		ListActiveSessionsFunc: func(ctx context.Context, f models.SessionFilter) ([]*models.LoginRecord, error) {
			got = f
			return []*models.LoginRecord{{ID: "r1", UserID: "user-1", IsActive: true}}, nil
		},
	}
	h := newAdminHandler(svc, nil)

	w := httptest.NewRecorder()
	h.ListSessions(w, httptest.NewRequest("GET", "/admin/security/sessions?user=user-1&limit=5", nil))

	var resp struct {
		Sessions []models.LoginRecord `json:"sessions"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp.Sessions, 1)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, 5, got.Limit)
}

func TestRevokeDevice(t *testing.T) {
	svc := &handlers.MockSecurityConsoleService{
		RevokeDeviceFunc: func(ctx context.Context, actorID, deviceID string) (*models.TrustedDevice, error) {
			if deviceID == "d1" {
				return &models.TrustedDevice{ID: "d1", IsTrusted: false}, nil
			}
			return nil, models.ErrNotFound
		},
	}
	h := newAdminHandler(svc, nil)

	req := handlers.WithAdminContext(handlers.WithURLParams(httptest.NewRequest("DELETE", "/admin/security/devices/d1", nil), map[string]string{"id": "d1"}), "admin-1")
	w := httptest.NewRecorder()
	h.RevokeDevice(w, req)
	var device models.TrustedDevice
	handlers.AssertJSONResponse(t, w, 200, &device)
	assert.False(t, device.IsTrusted)

	req = handlers.WithAdminContext(handlers.WithURLParams(httptest.NewRequest("DELETE", "/admin/security/devices/d2", nil), map[string]string{"id": "d2"}), "admin-1")
	w = httptest.NewRecorder()
	h.RevokeDevice(w, req)
	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestReloadRules(t *testing.T) {
	svc := &handlers.MockSecurityConsoleService{
		ReloadRulesFunc: func(ctx context.Context, actorID string) (int, error) { return 5, nil },
	}
	h := newAdminHandler(svc, nil)

	req := handlers.WithAdminContext(httptest.NewRequest("POST", "/admin/security/rules/reload", nil), "admin-1")
	w := httptest.NewRecorder()
	h.ReloadRules(w, req)

	var resp map[string]int
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 5, resp["active_rules"])
}
