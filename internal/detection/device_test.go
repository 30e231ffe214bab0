package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/mailguard/internal/models"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		wantType models.DeviceType
	}{
		{"windows chrome", chromeWindowsUA, models.DeviceTypeDesktop},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", models.DeviceTypeMobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Safari/604.1", models.DeviceTypeTablet},
		{"android tablet", "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36", models.DeviceTypeTablet},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36", models.DeviceTypeMobile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDevice(tt.ua)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, got, ParseDevice(tt.ua))
		})
	}
}

func TestParseDevice_ChromeOnWindows(t *testing.T) {
	got := ParseDevice(chromeWindowsUA)
	assert.Equal(t, "Chrome", got.Browser)
	assert.Equal(t, "120.0.0.0", got.BrowserVersion)
	assert.Contains(t, got.OS, "Windows")
}

func TestParseDevice_EmptyUserAgent(t *testing.T) {
	got := ParseDevice("  ")
	assert.Equal(t, models.DeviceInfo{Type: models.DeviceTypeDesktop, Browser: models.UnknownLocation, OS: models.UnknownLocation}, got)
}

func TestFingerprint(t *testing.T) {
	d := ParseDevice(chromeWindowsUA)

	assert.Equal(t, Fingerprint(d, "8.8.8.8"), Fingerprint(d, "8.8.8.8"))
	assert.NotEqual(t, Fingerprint(d, "8.8.8.8"), Fingerprint(d, "8.8.4.4"))
	assert.Len(t, Fingerprint(d, "8.8.8.8"), 64)

	other := d
	other.BrowserVersion = "121.0.0.0"
	assert.Equal(t, Fingerprint(d, "8.8.8.8"), Fingerprint(other, "8.8.8.8"), "browser upgrades keep the fingerprint")
}
