package models

import "time"

// TrustedDevice is a device fingerprint previously associated with low-risk logins
type TrustedDevice struct {
	ID                string     `db:"id" json:"id"`
	UserID            string     `db:"user_id" json:"user_id"`
	DeviceFingerprint string     `db:"device_fingerprint" json:"device_fingerprint"`
	DeviceName        string     `db:"device_name" json:"device_name"`
	Device            DeviceInfo `db:"device" json:"device"`
	IPAddress         string     `db:"ip_address" json:"ip_address"`
	IsTrusted         bool       `db:"is_trusted" json:"is_trusted"`
	LastUsedAt        time.Time  `db:"last_used_at" json:"last_used_at"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}
