package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/mailguard/internal/models"
)

const testSecret = "test-secret-key-that-is-at-least-32-characters-long"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		if claims != nil {
			w.Header().Set("X-User", claims.UserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret)

	token, err := tm.GenerateToken("admin-1", "admin@example.com", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsBadTokens(t *testing.T) {
	tm := NewTokenManager(testSecret)

	expired, err := tm.GenerateToken("admin-1", "", models.RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = tm.ValidateToken(expired)
	assert.Error(t, err)

	other, err := NewTokenManager("another-secret-key-that-is-also-32-chars-long").GenerateToken("admin-1", "", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = tm.ValidateToken(other)
	assert.Error(t, err)

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.TokenClaims{
		Type:   "refresh",
		UserID: "admin-1",
		Role:   models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := refresh.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = tm.ValidateToken(signed)
	assert.Error(t, err)

	_, err = tm.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager(testSecret)
	valid, err := tm.GenerateToken("svc-login", "", models.RoleService, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AuthMiddleware(tm)(okHandler()).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "svc-login", w.Header().Get("X-User"))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager(testSecret)
	admin, _ := tm.GenerateToken("admin-1", "", models.RoleAdmin, time.Hour)
	service, _ := tm.GenerateToken("svc-login", "", models.RoleService, time.Hour)

	handler := AuthMiddleware(tm)(RequireRole(models.RoleAdmin)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+service)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	RequireRole(models.RoleAdmin)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
