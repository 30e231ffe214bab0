package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// RuleType identifies which check family a rule configures
type RuleType string

const (
	RuleTypeGeographic   RuleType = "geographic"
	RuleTypeIPReputation RuleType = "ip_reputation"
	RuleTypeFrequency    RuleType = "frequency"
	RuleTypeDevice       RuleType = "device"
	RuleTypeTime         RuleType = "time"
	RuleTypeConcurrency  RuleType = "concurrency"
)

// Rule names the engine looks up in the registry
const (
	RuleGeographicAnomaly = "geographic_anomaly"
	RuleIPReputation      = "ip_reputation"
	RuleLoginFrequency    = "login_frequency"
	RuleNewDevice         = "new_device"
	RuleTimeAnomaly       = "time_anomaly"
	RuleConcurrentSession = "concurrent_sessions"
)

// RiskRule is one externally configured detection rule. Condition is parsed and
// validated when the rule is loaded, so a rule in the registry always carries a
// usable condition of the type matching Type.
type RiskRule struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Type         RuleType        `db:"rule_type" json:"rule_type"`
	Enabled      bool            `db:"enabled" json:"enabled"`
	RiskScore    int             `db:"risk_score" json:"risk_score"`
	RawCondition json.RawMessage `db:"conditions" json:"conditions"`
	Condition    RuleCondition   `db:"-" json:"-"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// RuleCondition is the typed condition payload of a rule.
// The set of implementations is closed: one per RuleType.
type RuleCondition interface {
	RuleType() RuleType
	validate() error
}

// GeographicCondition flags logins far from a recent prior login
type GeographicCondition struct {
	MaxDistanceKm   float64 `json:"max_distance_km"`
	TimeWindowHours float64 `json:"time_window_hours"`
}

func (GeographicCondition) RuleType() RuleType { return RuleTypeGeographic }

func (c GeographicCondition) validate() error {
	if c.MaxDistanceKm <= 0 {
		return fmt.Errorf("max_distance_km must be positive")
	}
	if c.TimeWindowHours <= 0 {
		return fmt.Errorf("time_window_hours must be positive")
	}
	return nil
}

// IPReputationCondition holds the per-factor contributions. Absent fields take defaults;
// an explicit 0 switches that factor off.
type IPReputationCondition struct {
	ProxyScore        int `json:"proxy_score"`
	VPNScore          int `json:"vpn_score"`
	TorScore          int `json:"tor_score"`
	HighThreatScore   int `json:"high_threat_score"`
	MediumThreatScore int `json:"medium_threat_score"`
}

func (IPReputationCondition) RuleType() RuleType { return RuleTypeIPReputation }

func (c IPReputationCondition) validate() error {
	for _, v := range []int{c.ProxyScore, c.VPNScore, c.TorScore, c.HighThreatScore, c.MediumThreatScore} {
		if v < 0 {
			return fmt.Errorf("reputation factor scores cannot be negative")
		}
	}
	return nil
}

func defaultIPReputationCondition() IPReputationCondition {
	return IPReputationCondition{
		ProxyScore:        20,
		VPNScore:          15,
		TorScore:          30,
		HighThreatScore:   25,
		MediumThreatScore: 15,
	}
}

// FrequencyCondition flags bursts of attempts from one IP
type FrequencyCondition struct {
	MaxAttempts       int `json:"max_attempts"`
	TimeWindowMinutes int `json:"time_window_minutes"`
}

func (FrequencyCondition) RuleType() RuleType { return RuleTypeFrequency }

func (c FrequencyCondition) validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.TimeWindowMinutes <= 0 {
		return fmt.Errorf("time_window_minutes must be positive")
	}
	return nil
}

// DeviceCondition has no tunables; the rule only carries a score
type DeviceCondition struct{}

func (DeviceCondition) RuleType() RuleType { return RuleTypeDevice }
func (DeviceCondition) validate() error    { return nil }

// TimeCondition configures how the historical login-hour distribution is built
type TimeCondition struct {
	HistoryDays      int `json:"history_days"`
	MinLoginsPerHour int `json:"min_logins_per_hour"`
}

func (TimeCondition) RuleType() RuleType { return RuleTypeTime }

func (c TimeCondition) validate() error {
	if c.HistoryDays < 0 || c.MinLoginsPerHour < 0 {
		return fmt.Errorf("history_days and min_logins_per_hour cannot be negative")
	}
	return nil
}

func (c TimeCondition) withDefaults() TimeCondition {
	if c.HistoryDays == 0 {
		c.HistoryDays = 30
	}
	if c.MinLoginsPerHour == 0 {
		c.MinLoginsPerHour = 3
	}
	return c
}

// ConcurrencyCondition optionally overrides the max-sessions setting
type ConcurrencyCondition struct {
	MaxSessions int `json:"max_sessions"`
}

func (ConcurrencyCondition) RuleType() RuleType { return RuleTypeConcurrency }

func (c ConcurrencyCondition) validate() error {
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions cannot be negative")
	}
	return nil
}

// ParseRuleCondition decodes and validates a raw condition payload for the given rule type.
// Errors wrap ErrConfiguration.
func ParseRuleCondition(ruleType RuleType, raw []byte) (RuleCondition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var cond RuleCondition
	var err error

	switch ruleType {
	case RuleTypeGeographic:
		var c GeographicCondition
		err = json.Unmarshal(raw, &c)
		cond = c
	case RuleTypeIPReputation:
		c := defaultIPReputationCondition()
		err = json.Unmarshal(raw, &c)
		cond = c
	case RuleTypeFrequency:
		var c FrequencyCondition
		err = json.Unmarshal(raw, &c)
		cond = c
	case RuleTypeDevice:
		var c DeviceCondition
		err = json.Unmarshal(raw, &c)
		cond = c
	case RuleTypeTime:
		var c TimeCondition
		err = json.Unmarshal(raw, &c)
		cond = c.withDefaults()
	case RuleTypeConcurrency:
		var c ConcurrencyCondition
		err = json.Unmarshal(raw, &c)
		cond = c
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ErrConfiguration, ruleType)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: malformed %s condition: %v", ErrConfiguration, ruleType, err)
	}
	if err := cond.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s condition: %v", ErrConfiguration, ruleType, err)
	}

	return cond, nil
}
