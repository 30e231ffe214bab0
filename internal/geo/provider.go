package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/BradenHooton/mailguard/internal/config"
	"github.com/BradenHooton/mailguard/internal/models"
)

// Provider resolves a public IP into a normalized location.
// Errors wrap models.ErrUpstreamUnavailable.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (models.LocationInfo, error)
}

// LocalProvider is implemented by providers that answer from local data. They carry no
// request quota, so the resolver does not meter them.
type LocalProvider interface {
	Provider
	Local() bool
}

func isMetered(p Provider) bool {
	lp, ok := p.(LocalProvider)
	return !ok || !lp.Local()
}

const maxResponseBytes = 64 << 10

// HTTPProvider queries a JSON geolocation API described by an endpoint template
type HTTPProvider struct {
	name     string
	format   string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPProvider builds a provider from a catalogue entry. The format selects the normalizer.
func NewHTTPProvider(name string, cfg config.GeoProviderConfig, client *http.Client) (*HTTPProvider, error) {
	if _, ok := normalizers[cfg.Format]; !ok {
		return nil, fmt.Errorf("%w: geo provider %q has unsupported format %q", models.ErrConfiguration, name, cfg.Format)
	}
	if !strings.Contains(cfg.EndpointTemplate, "{ip}") {
		return nil, fmt.Errorf("%w: geo provider %q endpoint lacks {ip}", models.ErrConfiguration, name)
	}
	return &HTTPProvider{
		name:     name,
		format:   cfg.Format,
		endpoint: cfg.EndpointTemplate,
		apiKey:   cfg.APIKey,
		client:   client,
	}, nil
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (models.LocationInfo, error) {
	endpoint := strings.NewReplacer(
		"{ip}", url.PathEscape(ip),
		"{key}", url.QueryEscape(p.apiKey),
	).Replace(p.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.LocationInfo{}, fmt.Errorf("%w: build request: %v", models.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.LocationInfo{}, fmt.Errorf("%w: %s request failed: %v", models.ErrUpstreamUnavailable, p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.LocationInfo{}, fmt.Errorf("%w: %s returned status %d", models.ErrUpstreamUnavailable, p.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.LocationInfo{}, fmt.Errorf("%w: %s read body: %v", models.ErrUpstreamUnavailable, p.name, err)
	}

	loc, err := normalizers[p.format](body)
	if err != nil {
		return models.LocationInfo{}, fmt.Errorf("%w: %s: %v", models.ErrUpstreamUnavailable, p.name, err)
	}
	return loc, nil
}

type normalizer func(body []byte) (models.LocationInfo, error)

var normalizers = map[string]normalizer{
	"ip-api":   normalizeIPAPI,
	"ipinfo":   normalizeIPInfo,
	"ipapi-co": normalizeIPAPICo,
}

// ip-api.com
type ipAPIResponse struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	Country    string   `json:"country"`
	RegionName string   `json:"regionName"`
	City       string   `json:"city"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Timezone   string   `json:"timezone"`
	ISP        string   `json:"isp"`
	Proxy      bool     `json:"proxy"`
	Hosting    bool     `json:"hosting"`
}

func normalizeIPAPI(body []byte) (models.LocationInfo, error) {
	var r ipAPIResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return models.LocationInfo{}, fmt.Errorf("malformed payload: %w", err)
	}
	if r.Status != "success" {
		return models.LocationInfo{}, fmt.Errorf("lookup failed: %s", r.Message)
	}

	loc := baseLocation(r.Country, r.RegionName, r.City, r.Timezone, r.ISP)
	loc.Latitude, loc.Longitude = r.Lat, r.Lon
	loc.IsProxy = r.Proxy
	loc.ThreatLevel = threatLevel(loc, r.Hosting)
	return loc, nil
}

// ipinfo.io; privacy is only populated on paid plans
type ipInfoResponse struct {
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Timezone string `json:"timezone"`
	Bogon    bool   `json:"bogon"`
	Privacy  *struct {
		VPN     bool `json:"vpn"`
		Proxy   bool `json:"proxy"`
		Tor     bool `json:"tor"`
		Hosting bool `json:"hosting"`
	} `json:"privacy"`
}

func normalizeIPInfo(body []byte) (models.LocationInfo, error) {
	var r ipInfoResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return models.LocationInfo{}, fmt.Errorf("malformed payload: %w", err)
	}
	if r.Bogon {
		return models.LocationInfo{}, fmt.Errorf("bogon address")
	}

	loc := baseLocation(r.Country, r.Region, r.City, r.Timezone, r.Org)
	if lat, lon, ok := parseLatLon(r.Loc); ok {
		loc.Latitude, loc.Longitude = &lat, &lon
	}

	hosting := false
	if r.Privacy != nil {
		loc.IsVPN = r.Privacy.VPN
		loc.IsProxy = r.Privacy.Proxy
		loc.IsTor = r.Privacy.Tor
		hosting = r.Privacy.Hosting
	}
	loc.ThreatLevel = threatLevel(loc, hosting)
	return loc, nil
}

// ipapi.co
type ipAPICoResponse struct {
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	CountryName string   `json:"country_name"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Timezone    string   `json:"timezone"`
	Org         string   `json:"org"`
}

func normalizeIPAPICo(body []byte) (models.LocationInfo, error) {
	var r ipAPICoResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return models.LocationInfo{}, fmt.Errorf("malformed payload: %w", err)
	}
	if r.Error {
		return models.LocationInfo{}, fmt.Errorf("lookup failed: %s", r.Reason)
	}

	loc := baseLocation(r.CountryName, r.Region, r.City, r.Timezone, r.Org)
	loc.Latitude, loc.Longitude = r.Latitude, r.Longitude
	loc.ThreatLevel = threatLevel(loc, false)
	return loc, nil
}

// baseLocation fills textual fields, substituting placeholders for empty ones
func baseLocation(country, region, city, timezone, isp string) models.LocationInfo {
	loc := models.DefaultLocation()
	if country != "" {
		loc.Country = country
	}
	if region != "" {
		loc.Region = region
	}
	if city != "" {
		loc.City = city
	}
	if timezone != "" {
		loc.Timezone = timezone
	}
	if isp != "" {
		loc.ISP = isp
	}
	return loc
}

func threatLevel(loc models.LocationInfo, hosting bool) models.ThreatLevel {
	switch {
	case loc.IsTor:
		return models.ThreatLevelHigh
	case loc.IsProxy || loc.IsVPN || hosting:
		return models.ThreatLevelMedium
	default:
		return models.ThreatLevelLow
	}
}

func parseLatLon(s string) (float64, float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
