package geo

import (
	"math"

	"github.com/BradenHooton/mailguard/internal/models"
)

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance in kilometres between two locations.
// ok is false when either side lacks coordinates.
func Distance(a, b models.LocationInfo) (km float64, ok bool) {
	if !a.HasCoordinates() || !b.HasCoordinates() {
		return 0, false
	}
	return Haversine(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude), true
}

// Haversine computes the great-circle distance in kilometres between two points in degrees
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
