package logger

import (
	"net/url"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return "[invalid-email]"
	}

	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	// Keep only the TLD visible
	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return local + "@" + strings.Join(labels, ".")
}

var sensitiveParams = []string{"token", "secret", "password", "api_key", "apikey", "email", "auth"}

// SanitizeQueryString reports whether the raw query carries a parameter whose name
// looks sensitive, in which case the whole query should be redacted from logs
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable queries are redacted rather than logged verbatim
		return true
	}
	for key := range values {
		key = strings.ToLower(key)
		for _, s := range sensitiveParams {
			if strings.Contains(key, s) {
				return true
			}
		}
	}
	return false
}
