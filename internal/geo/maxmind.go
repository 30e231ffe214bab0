package geo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"

	"github.com/BradenHooton/mailguard/internal/models"
)

// cityRecord is the subset of a GeoLite2/GeoIP2 City record we read
type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	Country struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Location struct {
		TimeZone  string   `maxminddb:"time_zone"`
		Latitude  *float64 `maxminddb:"latitude"`
		Longitude *float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
	Traits struct {
		IsAnonymousProxy bool   `maxminddb:"is_anonymous_proxy"`
		ISP              string `maxminddb:"isp"`
	} `maxminddb:"traits"`
}

// MaxMindProvider resolves locations from a local .mmdb database without network calls
type MaxMindProvider struct {
	reader *maxminddb.Reader
}

// OpenMaxMind memory-maps the database file at path
func OpenMaxMind(path string) (*MaxMindProvider, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open maxmind database: %v", models.ErrConfiguration, err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

func (p *MaxMindProvider) Name() string { return "maxmind" }

// Local reports that lookups read the memory-mapped database and never leave the process
func (p *MaxMindProvider) Local() bool { return true }

func (p *MaxMindProvider) Lookup(_ context.Context, ipStr string) (models.LocationInfo, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return models.LocationInfo{}, fmt.Errorf("%w: invalid ip", models.ErrUpstreamUnavailable)
	}

	var rec cityRecord
	if err := p.reader.Lookup(ip, &rec); err != nil {
		return models.LocationInfo{}, fmt.Errorf("%w: maxmind lookup: %v", models.ErrUpstreamUnavailable, err)
	}

	region := ""
	if len(rec.Subdivisions) > 0 {
		region = rec.Subdivisions[0].Names["en"]
	}

	loc := baseLocation(rec.Country.Names["en"], region, rec.City.Names["en"], rec.Location.TimeZone, rec.Traits.ISP)
	loc.Latitude, loc.Longitude = rec.Location.Latitude, rec.Location.Longitude
	loc.IsProxy = rec.Traits.IsAnonymousProxy
	loc.ThreatLevel = threatLevel(loc, false)
	return loc, nil
}

func (p *MaxMindProvider) Close() error {
	return p.reader.Close()
}
