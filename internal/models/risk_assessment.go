package models

import "time"

// Anomaly is one triggered check with its contribution and explanation
type Anomaly struct {
	Type      string         `json:"type"`
	RiskScore int            `json:"risk_score"`
	Reason    string         `json:"reason"`
	Details   map[string]any `json:"details,omitempty"`
}

// RiskAssessment is the immutable outcome of evaluating one login attempt
type RiskAssessment struct {
	RecordID          string       `json:"record_id,omitempty"`
	UserID            string       `json:"user_id"`
	UserEmail         string       `json:"-"`
	IPAddress         string       `json:"ip_address"`
	TotalScore        int          `json:"total_score"`
	IsSuspicious      bool         `json:"is_suspicious"`
	Anomalies         []Anomaly    `json:"anomalies"`
	Location          LocationInfo `json:"location"`
	Device            DeviceInfo   `json:"device"`
	DeviceFingerprint string       `json:"device_fingerprint"`
	AssessedAt        time.Time    `json:"assessed_at"`
}

// AnomalyTypes lists the triggered check names in evaluation order
func (a *RiskAssessment) AnomalyTypes() []string {
	types := make([]string, 0, len(a.Anomalies))
	for _, an := range a.Anomalies {
		types = append(types, an.Type)
	}
	return types
}
