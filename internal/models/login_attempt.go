package models

import "time"

// DeviceType is the coarse device class derived from a user agent
type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeTablet  DeviceType = "tablet"
)

// LoginAttempt is the input handed to the risk engine by the login route.
// It is never stored as-is.
type LoginAttempt struct {
	UserID      string    `json:"user_id" validate:"required,max=128"`
	UserEmail   string    `json:"user_email" validate:"omitempty,email"`
	IPAddress   string    `json:"ip_address" validate:"required,ip"`
	UserAgent   string    `json:"user_agent" validate:"max=1024"`
	SessionHash string    `json:"session_hash" validate:"max=256"`
	Timestamp   time.Time `json:"timestamp"`
}

// DeviceInfo is derived deterministically from the raw user agent
type DeviceInfo struct {
	Type           DeviceType `json:"type"`
	Browser        string     `json:"browser"`
	BrowserVersion string     `json:"browser_version"`
	OS             string     `json:"os"`
	OSVersion      string     `json:"os_version"`
}

// LoginRecord is the persisted row combining attempt, location, device and assessment
type LoginRecord struct {
	ID                string       `db:"id" json:"id"`
	UserID            string       `db:"user_id" json:"user_id"`
	IPAddress         string       `db:"ip_address" json:"ip_address"`
	UserAgent         string       `db:"user_agent" json:"user_agent"`
	SessionHash       string       `db:"session_hash" json:"-"`
	DeviceFingerprint string       `db:"device_fingerprint" json:"device_fingerprint"`
	Location          LocationInfo `db:"location" json:"location"`
	Device            DeviceInfo   `db:"device" json:"device"`
	RiskScore         int          `db:"risk_score" json:"risk_score"`
	IsSuspicious      bool         `db:"is_suspicious" json:"is_suspicious"`
	Anomalies         []Anomaly    `db:"anomalies" json:"anomalies"`
	IsActive          bool         `db:"is_active" json:"is_active"`
	LoginTime         time.Time    `db:"login_time" json:"login_time"`
	LogoutTime        *time.Time   `db:"logout_time" json:"logout_time,omitempty"`
}

// SessionFilter narrows active-session queries from the admin console
type SessionFilter struct {
	UserID string
	Limit  int
	Offset int
}

// HourCount is one bucket of a user's login-hour histogram
type HourCount struct {
	Hour  int
	Count int
}
