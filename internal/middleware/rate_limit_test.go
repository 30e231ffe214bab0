package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/mailguard/internal/auth"
	"github.com/BradenHooton/mailguard/internal/models"
	pkghttp "github.com/BradenHooton/mailguard/pkg/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withClaims(req *http.Request, userID string) *http.Request {
	claims := &models.TokenClaims{UserID: userID, Type: auth.TokenTypeAccess, Role: models.RoleAdmin}
	return req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
}

func TestRateLimitByUserID_Returns429AfterLimit(t *testing.T) {
	handler := RateLimitByUserID(RateLimitConfig{RequestsPerMinute: 3}, nil)(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, withClaims(httptest.NewRequest("GET", "/admin/security/alerts", nil), "admin-limit"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withClaims(httptest.NewRequest("GET", "/admin/security/alerts", nil), "admin-limit"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

func TestRateLimitByUserID_IsolatesUserBuckets(t *testing.T) {
	handler := RateLimitByUserID(RateLimitConfig{RequestsPerMinute: 1}, nil)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withClaims(httptest.NewRequest("GET", "/", nil), "admin-a"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withClaims(httptest.NewRequest("GET", "/", nil), "admin-b"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withClaims(httptest.NewRequest("GET", "/", nil), "admin-a"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitByUserID_FallsBackToIP(t *testing.T) {
	handler := RateLimitByUserID(RateLimitConfig{RequestsPerMinute: 1}, nil)(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.4:5000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.4:5001"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitByIP_IgnoresSpoofedForwardedFor(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1}, nil)(okHandler())

	for i, spoof := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest("POST", "/internal/login-assessments", nil)
		req.RemoteAddr = "203.0.113.50:4000"
		req.Header.Set("X-Forwarded-For", spoof)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		assert.Equal(t, want, w.Code)
	}
}

func TestRateLimitByIP_TrustedProxyKeysOnClient(t *testing.T) {
	ipConfig, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})
	assert.NoError(t, err)
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1}, ipConfig)(okHandler())

	for _, client := range []string{"192.0.2.10", "192.0.2.11"} {
		req := httptest.NewRequest("POST", "/internal/login-assessments", nil)
		req.RemoteAddr = "10.1.2.3:4000"
		req.Header.Set("X-Forwarded-For", client)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, client)
	}
}
