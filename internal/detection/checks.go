package detection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BradenHooton/mailguard/internal/geo"
	"github.com/BradenHooton/mailguard/internal/models"
)

const (
	recentLocationLookback = 24 * time.Hour
	recentLocationLimit    = 5
	concurrentSessionScore = 25
)

// GeographicCheck flags a login far away from a recent prior login
type GeographicCheck struct {
	rules   RuleSource
	history LoginHistory
}

func (c *GeographicCheck) Name() string { return models.RuleGeographicAnomaly }

func (c *GeographicCheck) Evaluate(ctx context.Context, ec *EvalContext) (*models.Anomaly, error) {
	rule, cond, ok, err := ruleCondition[models.GeographicCondition](c.rules, models.RuleGeographicAnomaly)
	if err != nil || !ok {
		return nil, err
	}
	if !ec.Location.HasCoordinates() {
		return nil, nil
	}

	prior, err := c.history.FindRecentLocations(ctx, ec.UserID, ec.At.Add(-recentLocationLookback), ec.At, recentLocationLimit)
	if err != nil {
		return nil, fmt.Errorf("recent locations: %w", err)
	}

	window := time.Duration(cond.TimeWindowHours * float64(time.Hour))
	for _, p := range prior {
		dist, ok := geo.Distance(ec.Location, p.Location)
		if !ok {
			continue
		}
		elapsed := ec.At.Sub(p.LoginTime)
		if elapsed < 0 {
			elapsed = -elapsed
		}
		if dist <= cond.MaxDistanceKm || elapsed >= window {
			continue
		}

		hours := elapsed.Hours()
		return &models.Anomaly{
			Type:      models.RuleGeographicAnomaly,
			RiskScore: rule.RiskScore,
			Reason: fmt.Sprintf("Login from %s is %.0f km from the previous login in %s %.1f hours earlier",
				ec.Location.DisplayName(), dist, p.Location.DisplayName(), hours),
			Details: map[string]any{
				"distance_km":       round1(dist),
				"hours_since":       round1(hours),
				"current_location":  ec.Location.DisplayName(),
				"previous_location": p.Location.DisplayName(),
				"previous_ip":       p.IPAddress,
				"max_distance_km":   cond.MaxDistanceKm,
			},
		}, nil
	}
	return nil, nil
}

// IPReputationCheck scores proxy, VPN, Tor and threat-level signals of the source IP
type IPReputationCheck struct {
	rules RuleSource
}

func (c *IPReputationCheck) Name() string { return models.RuleIPReputation }

func (c *IPReputationCheck) Evaluate(_ context.Context, ec *EvalContext) (*models.Anomaly, error) {
	rule, cond, ok, err := ruleCondition[models.IPReputationCondition](c.rules, models.RuleIPReputation)
	if err != nil || !ok {
		return nil, err
	}

	loc := ec.Location
	score := 0
	var factors []string
	if loc.IsProxy {
		score += cond.ProxyScore
		factors = append(factors, "proxy")
	}
	if loc.IsVPN {
		score += cond.VPNScore
		factors = append(factors, "VPN")
	}
	if loc.IsTor {
		score += cond.TorScore
		factors = append(factors, "Tor")
	}
	switch loc.ThreatLevel {
	case models.ThreatLevelHigh:
		score += cond.HighThreatScore
		factors = append(factors, "high threat level")
	case models.ThreatLevelMedium:
		score += cond.MediumThreatScore
		factors = append(factors, "medium threat level")
	}

	if len(factors) == 0 {
		return nil, nil
	}
	score = min(score, rule.RiskScore)

	return &models.Anomaly{
		Type:      models.RuleIPReputation,
		RiskScore: score,
		Reason:    "Suspicious IP characteristics: " + strings.Join(factors, ", "),
		Details: map[string]any{
			"ip_address":   ec.Attempt.IPAddress,
			"is_proxy":     loc.IsProxy,
			"is_vpn":       loc.IsVPN,
			"is_tor":       loc.IsTor,
			"threat_level": string(loc.ThreatLevel),
			"isp":          loc.ISP,
		},
	}, nil
}

// FrequencyCheck flags bursts of login attempts from one IP
type FrequencyCheck struct {
	rules   RuleSource
	history LoginHistory
}

func (c *FrequencyCheck) Name() string { return models.RuleLoginFrequency }

func (c *FrequencyCheck) Evaluate(ctx context.Context, ec *EvalContext) (*models.Anomaly, error) {
	rule, cond, ok, err := ruleCondition[models.FrequencyCondition](c.rules, models.RuleLoginFrequency)
	if err != nil || !ok {
		return nil, err
	}

	window := time.Duration(cond.TimeWindowMinutes) * time.Minute
	count, err := c.history.CountRecentAttemptsFromIP(ctx, ec.Attempt.IPAddress, ec.At.Add(-window), ec.At)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if count < cond.MaxAttempts {
		return nil, nil
	}

	return &models.Anomaly{
		Type:      models.RuleLoginFrequency,
		RiskScore: rule.RiskScore,
		Reason: fmt.Sprintf("%d login attempts from %s in the last %d minutes",
			count, ec.Attempt.IPAddress, cond.TimeWindowMinutes),
		Details: map[string]any{
			"attempt_count":       count,
			"max_attempts":        cond.MaxAttempts,
			"time_window_minutes": cond.TimeWindowMinutes,
		},
	}, nil
}

// NewDeviceCheck flags an unknown device for users who already have trusted devices
type NewDeviceCheck struct {
	rules   RuleSource
	devices DeviceStore
}

func (c *NewDeviceCheck) Name() string { return models.RuleNewDevice }

func (c *NewDeviceCheck) Evaluate(ctx context.Context, ec *EvalContext) (*models.Anomaly, error) {
	rule, _, ok, err := ruleCondition[models.DeviceCondition](c.rules, models.RuleNewDevice)
	if err != nil || !ok {
		return nil, err
	}

	_, err = c.devices.FindTrusted(ctx, ec.UserID, ec.Fingerprint)
	switch {
	case err == nil:
		return nil, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("find trusted device: %w", err)
	}

	known, err := c.devices.CountTrusted(ctx, ec.UserID)
	if err != nil {
		return nil, fmt.Errorf("count trusted devices: %w", err)
	}
	if known == 0 {
		return nil, nil
	}

	return &models.Anomaly{
		Type:      models.RuleNewDevice,
		RiskScore: rule.RiskScore,
		Reason:    "Login from a new device: " + DeviceName(ec.Device),
		Details: map[string]any{
			"device_type":        string(ec.Device.Type),
			"browser":            ec.Device.Browser,
			"os":                 ec.Device.OS,
			"known_device_count": known,
		},
	}, nil
}

// TimeOfDayCheck flags logins outside the user's usual hours in the local timezone
type TimeOfDayCheck struct {
	rules    RuleSource
	history  LoginHistory
	settings Settings
}

func (c *TimeOfDayCheck) Name() string { return models.RuleTimeAnomaly }

func (c *TimeOfDayCheck) Evaluate(ctx context.Context, ec *EvalContext) (*models.Anomaly, error) {
	rule, cond, ok, err := ruleCondition[models.TimeCondition](c.rules, models.RuleTimeAnomaly)
	if err != nil || !ok {
		return nil, err
	}

	tz := geo.LoadTimezone(ec.Location.Timezone)
	hour := ec.At.In(tz).Hour()

	since := ec.At.AddDate(0, 0, -cond.HistoryDays)
	buckets, err := c.history.LoginHourHistogram(ctx, ec.UserID, since, ec.At, cond.MinLoginsPerHour)
	if err != nil {
		return nil, fmt.Errorf("login hour histogram: %w", err)
	}

	basis := "historical"
	usual := make([]int, 0, len(buckets))
	for _, b := range buckets {
		usual = append(usual, b.Hour)
	}
	if len(usual) == 0 {
		basis = "default"
		usual = c.settings.NormalLoginHours(ctx)
	}

	if slices.Contains(usual, hour) {
		return nil, nil
	}

	return &models.Anomaly{
		Type:      models.RuleTimeAnomaly,
		RiskScore: rule.RiskScore,
		Reason:    fmt.Sprintf("Login at %02d:00 %s is outside the user's usual login hours", hour, tz.String()),
		Details: map[string]any{
			"hour":        hour,
			"timezone":    tz.String(),
			"usual_hours": usual,
			"basis":       basis,
		},
	}, nil
}

// ConcurrentSessionCheck flags users with too many active sessions.
// It is always enabled; an optional concurrency rule may override the session limit.
type ConcurrentSessionCheck struct {
	rules    RuleSource
	history  LoginHistory
	settings Settings
}

func (c *ConcurrentSessionCheck) Name() string { return models.RuleConcurrentSession }

func (c *ConcurrentSessionCheck) Evaluate(ctx context.Context, ec *EvalContext) (*models.Anomaly, error) {
	limit := c.settings.MaxConcurrentSessions(ctx)
	if _, cond, ok, err := ruleCondition[models.ConcurrencyCondition](c.rules, models.RuleConcurrentSession); err != nil {
		return nil, err
	} else if ok && cond.MaxSessions > 0 {
		limit = cond.MaxSessions
	}

	active, err := c.history.CountActiveSessions(ctx, ec.UserID)
	if err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}
	if active < limit {
		return nil, nil
	}

	return &models.Anomaly{
		Type:      models.RuleConcurrentSession,
		RiskScore: concurrentSessionScore,
		Reason:    fmt.Sprintf("%d active sessions (limit %d)", active, limit),
		Details: map[string]any{
			"active_sessions": active,
			"max_sessions":    limit,
		},
	}, nil
}

func round1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}
