package detection

import (
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/blake2b"

	"github.com/BradenHooton/mailguard/internal/models"
)

// ParseDevice derives device info from a raw user-agent string.
// The result depends only on the input.
func ParseDevice(rawUA string) models.DeviceInfo {
	info := models.DeviceInfo{
		Type:    models.DeviceTypeDesktop,
		Browser: models.UnknownLocation,
		OS:      models.UnknownLocation,
	}
	if strings.TrimSpace(rawUA) == "" {
		return info
	}

	ua := useragent.New(rawUA)

	if name, version := ua.Browser(); name != "" {
		info.Browser = name
		info.BrowserVersion = version
	}

	osInfo := ua.OSInfo()
	if osInfo.Name != "" {
		info.OS = osInfo.Name
		info.OSVersion = osInfo.Version
	}

	lower := strings.ToLower(rawUA)
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") ||
		(strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")):
		info.Type = models.DeviceTypeTablet
	case ua.Mobile() || strings.Contains(lower, "mobile"):
		info.Type = models.DeviceTypeMobile
	}

	return info
}

// Fingerprint hashes device type, browser, OS and source IP into a stable identifier
func Fingerprint(device models.DeviceInfo, ip string) string {
	sum := blake2b.Sum256([]byte(strings.Join([]string{
		string(device.Type), device.Browser, device.OS, ip,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// DeviceName is the human-readable label stored with a trusted device
func DeviceName(device models.DeviceInfo) string {
	return device.Browser + " on " + device.OS
}
