package models

import "time"

// ThreatLevel classifies the reputation of a source IP
type ThreatLevel string

const (
	ThreatLevelLow    ThreatLevel = "low"
	ThreatLevelMedium ThreatLevel = "medium"
	ThreatLevelHigh   ThreatLevel = "high"
)

// Rank orders threat levels so they can be compared (low < medium < high).
// Unknown values rank as low.
func (t ThreatLevel) Rank() int {
	switch t {
	case ThreatLevelHigh:
		return 2
	case ThreatLevelMedium:
		return 1
	default:
		return 0
	}
}

// UnknownLocation is the placeholder used for every unresolvable field
const UnknownLocation = "Unknown"

// LocationInfo is the canonical, provider-independent geolocation of an IP
type LocationInfo struct {
	Country     string      `json:"country"`
	Region      string      `json:"region"`
	City        string      `json:"city"`
	Latitude    *float64    `json:"latitude,omitempty"`
	Longitude   *float64    `json:"longitude,omitempty"`
	Timezone    string      `json:"timezone"`
	ISP         string      `json:"isp"`
	IsProxy     bool        `json:"is_proxy"`
	IsVPN       bool        `json:"is_vpn"`
	IsTor       bool        `json:"is_tor"`
	ThreatLevel ThreatLevel `json:"threat_level"`
}

// DefaultLocation returns the conservative result used whenever an IP cannot be resolved
func DefaultLocation() LocationInfo {
	return LocationInfo{
		Country:     UnknownLocation,
		Region:      UnknownLocation,
		City:        UnknownLocation,
		Timezone:    "UTC",
		ISP:         UnknownLocation,
		ThreatLevel: ThreatLevelLow,
	}
}

// HasCoordinates reports whether both latitude and longitude are known
func (l LocationInfo) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// DisplayName formats the location as "City, Country" for alert text
func (l LocationInfo) DisplayName() string {
	switch {
	case l.City != "" && l.City != UnknownLocation:
		return l.City + ", " + l.Country
	case l.Country != "":
		return l.Country
	default:
		return UnknownLocation
	}
}

// GeoCacheEntry is a persisted resolution result for one IP
type GeoCacheEntry struct {
	IPAddress   string       `db:"ip_address"`
	Location    LocationInfo `db:"location"`
	Provider    string       `db:"provider"`
	LastUpdated time.Time    `db:"last_updated"`
}

// IsFresh reports whether the entry is younger than ttl at the given instant
func (e *GeoCacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.LastUpdated) < ttl
}

// LocatedLogin is a prior login location used by the geographic check
type LocatedLogin struct {
	Location  LocationInfo
	IPAddress string
	LoginTime time.Time
}
