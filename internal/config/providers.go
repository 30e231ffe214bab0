package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// GeoProviderConfig describes one upstream geolocation provider.
// EndpointTemplate may contain {ip} and {key} placeholders.
type GeoProviderConfig struct {
	Format            string `koanf:"format"`
	EndpointTemplate  string `koanf:"endpoint"`
	APIKey            string `koanf:"api_key"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
}

// providerCatalogueDefaults is the lowest koanf layer; it only carries the fallback quota
type providerCatalogueDefaults struct {
	DefaultRequestsPerMinute int `koanf:"default_requests_per_minute"`
}

// BuiltinGeoProviders returns the providers known without any catalogue file
func BuiltinGeoProviders() map[string]GeoProviderConfig {
	return map[string]GeoProviderConfig{
		"ip-api": {
			Format:            "ip-api",
			EndpointTemplate:  "http://ip-api.com/json/{ip}?fields=status,message,country,regionName,city,lat,lon,timezone,isp,proxy,hosting",
			RequestsPerMinute: 45,
		},
		"ipinfo": {
			Format:            "ipinfo",
			EndpointTemplate:  "https://ipinfo.io/{ip}/json?token={key}",
			RequestsPerMinute: 50,
		},
		"ipapi-co": {
			Format:            "ipapi-co",
			EndpointTemplate:  "https://ipapi.co/{ip}/json/",
			RequestsPerMinute: 30,
		},
	}
}

// LoadGeoProviders merges the builtin providers with an optional YAML catalogue and
// GEO_PROVIDERS__<NAME>__<FIELD> environment overrides (ENV > file > builtin).
//
//	providers:
//	  ipinfo:
//	    api_key: abc
//	    requests_per_minute: 100
func LoadGeoProviders(path string) (map[string]GeoProviderConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(providerCatalogueDefaults{DefaultRequestsPerMinute: 30}, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load provider defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("geo provider file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load geo provider file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("GEO_PROVIDERS__", ".", func(s string) string {
		s = strings.TrimPrefix(s, "GEO_PROVIDERS__")
		return "providers." + strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load geo provider environment: %w", err)
	}

	var loaded map[string]GeoProviderConfig
	if err := k.Unmarshal("providers", &loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geo providers: %w", err)
	}

	providers := BuiltinGeoProviders()
	for name, p := range loaded {
		base, ok := providers[name]
		if !ok {
			base = GeoProviderConfig{Format: name}
		}
		if p.Format != "" {
			base.Format = p.Format
		}
		if p.EndpointTemplate != "" {
			base.EndpointTemplate = p.EndpointTemplate
		}
		if p.APIKey != "" {
			base.APIKey = p.APIKey
		}
		if p.RequestsPerMinute > 0 {
			base.RequestsPerMinute = p.RequestsPerMinute
		}
		providers[name] = base
	}

	fallbackQuota := k.Int("default_requests_per_minute")
	for name, p := range providers {
		if p.RequestsPerMinute <= 0 {
			p.RequestsPerMinute = fallbackQuota
			providers[name] = p
		}
		if p.EndpointTemplate == "" {
			return nil, fmt.Errorf("geo provider %q has no endpoint", name)
		}
	}

	return providers, nil
}

// ProviderNames lists configured provider names in stable order
func ProviderNames(providers map[string]GeoProviderConfig) []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
