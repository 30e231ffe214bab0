package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/mailguard/internal/auth"
	"github.com/BradenHooton/mailguard/internal/models"
	pkghttp "github.com/BradenHooton/mailguard/pkg/http"
)

// SecurityConsoleService defines the admin security console contract
type SecurityConsoleService interface {
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.SecurityAlert, int64, error)
	GetAlert(ctx context.Context, id string) (*models.SecurityAlert, error)
	Stats(ctx context.Context, window time.Duration) (*models.AlertStats, error)
	ListActiveSessions(ctx context.Context, filter models.SessionFilter) ([]*models.LoginRecord, error)
	TerminateSession(ctx context.Context, actorID, recordID string) error
	ListUserDevices(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
	RevokeDevice(ctx context.Context, actorID, deviceID string) (*models.TrustedDevice, error)
	ListRules(ctx context.Context) ([]models.RiskRule, error)
	ReloadRules(ctx context.Context, actorID string) (int, error)
}

// AlertResolver resolves alerts
type AlertResolver interface {
	Resolve(ctx context.Context, alertID, resolvedBy, notes string) (*models.SecurityAlert, error)
}

// AdminHandler handles admin security console HTTP requests.
type AdminHandler struct {
	service  SecurityConsoleService
	resolver AlertResolver
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service SecurityConsoleService, resolver AlertResolver, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, resolver: resolver, logger: logger}
}

// AlertListResponse is one page of alerts
type AlertListResponse struct {
	Alerts []*models.SecurityAlert `json:"alerts"`
	Total  int64                   `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// ResolveAlertRequest carries optional resolution notes
type ResolveAlertRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// ListAlerts handles GET /admin/security/alerts
func (h *AdminHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAlertFilter(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	alerts, total, err := h.service.ListAlerts(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list alerts", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Failed to retrieve alerts")
		return
	}

	limit, offset := filter.Limit, filter.Offset
	if limit <= 0 {
		limit = 50
	}
	pkghttp.WriteJSON(w, http.StatusOK, AlertListResponse{
		Alerts: alerts,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetAlert handles GET /admin/security/alerts/{id}
func (h *AdminHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.service.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, err, "alert")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// ResolveAlert handles POST /admin/security/alerts/{id}/resolve
func (h *AdminHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ResolveAlertRequest
	if r.ContentLength != 0 {
		if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		if err := ValidateRequest(&req); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
	}

	alert, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "id"), claims.UserID, req.Notes)
	if err != nil {
		if errors.Is(err, models.ErrAlertAlreadyResolved) {
			pkghttp.WriteConflict(w, "Alert is already resolved")
			return
		}
		h.writeLookupError(w, err, "alert")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// GetStats handles GET /admin/security/stats
// Accepts optional ?window=<duration> (e.g. 24h, 168h).
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > 90*24*time.Hour {
			pkghttp.WriteBadRequest(w, "window must be a positive duration up to 2160h")
			return
		}
		window = d
	}

	stats, err := h.service.Stats(r.Context(), window)
	if err != nil {
		h.logger.Error("failed to load security stats", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Failed to retrieve security stats")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// ListSessions handles GET /admin/security/sessions
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessions, err := h.service.ListActiveSessions(r.Context(), models.SessionFilter{
		UserID: r.URL.Query().Get("user"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.logger.Error("failed to list sessions", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Failed to retrieve sessions")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// TerminateSession handles POST /admin/security/sessions/{id}/terminate
func (h *AdminHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.TerminateSession(r.Context(), claims.UserID, chi.URLParam(r, "id")); err != nil {
		h.writeLookupError(w, err, "session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUserDevices handles GET /admin/security/users/{userID}/devices
func (h *AdminHandler) ListUserDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.service.ListUserDevices(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("failed to list devices", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Failed to retrieve devices")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// RevokeDevice handles DELETE /admin/security/devices/{id}
func (h *AdminHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	device, err := h.service.RevokeDevice(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, err, "device")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, device)
}

// ListRules handles GET /admin/security/rules
func (h *AdminHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		h.logger.Error("failed to list rules", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Failed to retrieve rules")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// ReloadRules handles POST /admin/security/rules/reload
func (h *AdminHandler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	n, err := h.service.ReloadRules(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("failed to reload rules", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Failed to reload rules")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"active_rules": n})
}

func (h *AdminHandler) writeLookupError(w http.ResponseWriter, err error, resource string) {
	if errors.Is(err, models.ErrNotFound) {
		pkghttp.WriteNotFound(w, strings.ToUpper(resource[:1])+resource[1:]+" not found")
		return
	}
	h.logger.Error("admin request failed",
		slog.String("resource", resource),
		slog.String("error", err.Error()))
	pkghttp.WriteInternalError(w, "Internal server error")
}

func parseAlertFilter(r *http.Request) (models.AlertFilter, error) {
	q := r.URL.Query()

	limit, offset, err := parsePaging(r)
	if err != nil {
		return models.AlertFilter{}, err
	}

	filter := models.AlertFilter{
		UserID:    q.Get("user"),
		AlertType: q.Get("type"),
		Limit:     limit,
		Offset:    offset,
	}

	if raw := q.Get("severity"); raw != "" {
		sev, ok := models.ParseSeverity(strings.ToLower(raw))
		if !ok {
			return filter, fmt.Errorf("severity must be one of: low medium high critical")
		}
		filter.Severity = &sev
	}
	if raw := q.Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("resolved must be true or false")
		}
		filter.Resolved = &resolved
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("since must be an RFC3339 timestamp")
		}
		filter.Since = &since
	}
	if raw := q.Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("until must be an RFC3339 timestamp")
		}
		filter.Until = &until
	}
	if filter.Since != nil && filter.Until != nil && !filter.Since.Before(*filter.Until) {
		return filter, fmt.Errorf("since must be before until")
	}

	return filter, nil
}

func parsePaging(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	limit, offset := 0, 0

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return 0, 0, fmt.Errorf("limit must be between 1 and 200")
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}
