package detection

import (
	"context"
	"time"

	"github.com/BradenHooton/mailguard/internal/models"
)

// EvalContext carries everything resolved for one login attempt before the checks run
type EvalContext struct {
	UserID      string
	Attempt     models.LoginAttempt
	Location    models.LocationInfo
	Device      models.DeviceInfo
	Fingerprint string
	At          time.Time
}

// Check is one anomaly detector. It returns nil when the attempt is not anomalous
// for this signal; a returned error disables the check for this attempt only.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, ec *EvalContext) (*models.Anomaly, error)
}

// RuleSource looks up enabled rules by name
type RuleSource interface {
	Get(name string) (models.RiskRule, bool)
}

// LoginHistory is the slice of login-record storage the checks read
type LoginHistory interface {
	FindRecentLocations(ctx context.Context, userID string, since, until time.Time, limit int) ([]models.LocatedLogin, error)
	CountRecentAttemptsFromIP(ctx context.Context, ip string, since, until time.Time) (int, error)
	CountActiveSessions(ctx context.Context, userID string) (int, error)
	LoginHourHistogram(ctx context.Context, userID string, since, until time.Time, minCount int) ([]models.HourCount, error)
}

// DeviceStore reads and maintains a user's trusted devices
type DeviceStore interface {
	FindTrusted(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error)
	CountTrusted(ctx context.Context, userID string) (int, error)
	Upsert(ctx context.Context, device *models.TrustedDevice) error
}

// Settings exposes the runtime-tunable values the engine needs on every attempt
type Settings interface {
	RiskThreshold(ctx context.Context) int
	MaxConcurrentSessions(ctx context.Context) int
	NormalLoginHours(ctx context.Context) []int
}

// LocationResolver resolves IPs; it never fails
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) models.LocationInfo
}
