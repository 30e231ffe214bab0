package logger

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType string
	ActorID   string
	UserID    string
	TargetID  string
	IPAddress string
	Success   bool
	Metadata  map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogRiskAssessment records the outcome of a login risk assessment
func (al *AuditLogger) LogRiskAssessment(ctx context.Context, userID, ipAddress string, score int, suspicious bool, anomalies []string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "risk"),
		slog.String("event_type", "login_assessed"),
		slog.String("user_id", userID),
		slog.Int("risk_score", score),
		slog.Bool("suspicious", suspicious),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	if len(anomalies) > 0 {
		attrs = append(attrs, slog.String("anomalies", strings.Join(anomalies, ",")))
	}

	level := slog.LevelInfo
	if suspicious {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogSecurityAction logs administrative and alerting actions
func (al *AuditLogger) LogSecurityAction(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.TargetID != "" {
		attrs = append(attrs, slog.String("target_id", event.TargetID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}

	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
	}
}
