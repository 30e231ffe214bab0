package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "github.com/BradenHooton/mailguard/pkg/http"
)

func mustIPConfig(t *testing.T, cidrs ...string) *pkghttp.IPConfig {
	t.Helper()
	cfg, err := pkghttp.NewIPConfig(cidrs)
	require.NoError(t, err)
	return cfg
}

func TestExtractClientIP_DirectConnectionIgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	ip := pkghttp.ExtractClientIP(req, mustIPConfig(t, "10.0.0.0/8", "127.0.0.1"))

	assert.Equal(t, "203.0.113.10", ip)
}

func TestExtractClientIP_TrustedProxyUsesForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 203.0.113.42, 10.0.0.7")

	ip := pkghttp.ExtractClientIP(req, mustIPConfig(t, "10.0.0.0/8"))

	assert.Equal(t, "203.0.113.42", ip, "rightmost untrusted hop wins")
}

func TestExtractClientIP_TrustedProxyFallsBackToRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Real-IP", "203.0.113.42")

	ip := pkghttp.ExtractClientIP(req, mustIPConfig(t, "10.0.0.0/8"))

	assert.Equal(t, "203.0.113.42", ip)
}

func TestExtractClientIP_IPv6(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	req.Header.Set("X-Forwarded-For", "2001:db8:ffff::5")

	ip := pkghttp.ExtractClientIP(req, mustIPConfig(t, "2001:db8::/48"))

	assert.Equal(t, "2001:db8:ffff::5", ip)
}

func TestExtractClientIP_NilConfig(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.1:1234"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, "198.51.100.1", pkghttp.ExtractClientIP(req, nil))
}

func TestNewIPConfig_Invalid(t *testing.T) {
	_, err := pkghttp.NewIPConfig([]string{"10.0.0.0/33"})
	assert.Error(t, err)

	_, err = pkghttp.NewIPConfig([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"trailing data", `{"name":"x"}{"name":"y"}`, true},
		{"malformed", `{"name":`, true},
		{"too large", `{"name":"` + strings.Repeat("a", pkghttp.MaxBodyBytes) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.payload))
			var dst body
			err := pkghttp.DecodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", dst.Name)
		})
	}
}
