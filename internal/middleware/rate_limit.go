package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/mailguard/internal/auth"
	pkghttp "github.com/BradenHooton/mailguard/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAssessmentRateLimit is the per-caller budget for the internal login assessment endpoints
func DefaultAssessmentRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 600}
}

// DefaultConsoleRateLimit is the per-administrator budget for the security console
func DefaultConsoleRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 120}
}

// RateLimitByIP limits requests per client IP. Forwarding headers are honoured
// only when the connecting peer is a trusted proxy.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByUserID limits requests per authenticated caller, falling back to
// the client IP when no claims are present.
func RateLimitByUserID(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "user:" + claims.UserID, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
}
