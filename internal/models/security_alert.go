package models

import "time"

// Severity classifies an alert; derived from the risk score band
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities (low < medium < high < critical). Unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// ParseSeverity returns the severity for a string, or false if it is not one of the four levels
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(s)
	return sev, sev.Rank() >= 0
}

// SeverityForScore maps a risk score onto the alert severity bands
func SeverityForScore(score int) Severity {
	switch {
	case score >= 80:
		return SeverityCritical
	case score >= 60:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Alert types raised by the dispatcher
const (
	AlertTypeSuspiciousLogin = "suspicious_login"
)

// SecurityAlert is an administrator-facing alert. Open -> Resolved is terminal.
type SecurityAlert struct {
	ID              string         `db:"id" json:"id"`
	UserID          string         `db:"user_id" json:"user_id"`
	AlertType       string         `db:"alert_type" json:"alert_type"`
	Severity        Severity       `db:"severity" json:"severity"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	Data            map[string]any `db:"data" json:"data"`
	IsResolved      bool           `db:"is_resolved" json:"is_resolved"`
	ResolvedBy      *string        `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolutionNotes *string        `db:"resolution_notes" json:"resolution_notes,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// AlertFilter holds the pass-through filters of the admin alert list
type AlertFilter struct {
	UserID    string
	Severity  *Severity
	AlertType string
	Resolved  *bool
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// AlertStats aggregates alert counts for the admin dashboard
type AlertStats struct {
	Total            int64              `json:"total"`
	Unresolved       int64              `json:"unresolved"`
	BySeverity       map[Severity]int64 `json:"by_severity"`
	ByType           map[string]int64   `json:"by_type"`
	SuspiciousLogins int64              `json:"suspicious_logins"`
	ActiveSessions   int64              `json:"active_sessions"`
	WindowStart      time.Time          `json:"window_start"`
}

// Administrator is a notification recipient
type Administrator struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
}
