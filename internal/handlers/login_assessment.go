package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/mailguard/internal/models"
	pkghttp "github.com/BradenHooton/mailguard/pkg/http"
)

// Detector scores a login attempt. It always returns an assessment; a non-nil error
// reports a persistence problem alongside it.
type Detector interface {
	Detect(ctx context.Context, userID string, attempt models.LoginAttempt) (models.RiskAssessment, error)
}

// SuspiciousLoginAlerter raises alerts for suspicious assessments
type SuspiciousLoginAlerter interface {
	RaiseIfSuspicious(ctx context.Context, userID string, a models.RiskAssessment) (string, bool, error)
}

// SessionEnder closes a session on logout
type SessionEnder interface {
	EndSession(ctx context.Context, userID, sessionHash string) error
}

// LoginAssessmentHandler is called by the login route after credentials check out
type LoginAssessmentHandler struct {
	detector           Detector
	alerter            SuspiciousLoginAlerter
	sessions           SessionEnder
	autoBlockThreshold int
	logger             *slog.Logger
}

// NewLoginAssessmentHandler creates a new LoginAssessmentHandler.
// autoBlockThreshold <= 0 disables blocking decisions.
func NewLoginAssessmentHandler(detector Detector, alerter SuspiciousLoginAlerter, sessions SessionEnder, autoBlockThreshold int, logger *slog.Logger) *LoginAssessmentHandler {
	return &LoginAssessmentHandler{
		detector:           detector,
		alerter:            alerter,
		sessions:           sessions,
		autoBlockThreshold: autoBlockThreshold,
		logger:             logger,
	}
}

// LoginAssessmentResponse is returned to the login route
type LoginAssessmentResponse struct {
	Assessment models.RiskAssessment `json:"assessment"`
	AlertID    string                `json:"alert_id,omitempty"`
	Blocked    bool                  `json:"blocked"`
}

// LogoutRequest identifies the session being closed
type LogoutRequest struct {
	UserID      string `json:"user_id" validate:"required,max=128"`
	SessionHash string `json:"session_hash" validate:"required,max=256"`
}

// Assess handles POST /internal/login-assessments
func (h *LoginAssessmentHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var attempt models.LoginAttempt
	if err := pkghttp.DecodeJSON(w, r, &attempt); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(&attempt); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()

	assessment, err := h.detector.Detect(ctx, attempt.UserID, attempt)
	if err != nil {
		h.logger.Error("login assessment returned with persistence failure",
			slog.String("user_id", attempt.UserID),
			slog.String("error", err.Error()))
	}

	alertID, _, err := h.alerter.RaiseIfSuspicious(ctx, attempt.UserID, assessment)
	if err != nil {
		h.logger.Error("failed to raise security alert",
			slog.String("user_id", attempt.UserID),
			slog.String("error", err.Error()))
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginAssessmentResponse{
		Assessment: assessment,
		AlertID:    alertID,
		Blocked:    h.autoBlockThreshold > 0 && assessment.TotalScore >= h.autoBlockThreshold,
	})
}

// Logout handles POST /internal/logouts
func (h *LoginAssessmentHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.sessions.EndSession(r.Context(), req.UserID, req.SessionHash); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "no active session found")
			return
		}
		h.logger.Error("failed to end session",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Failed to end session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
