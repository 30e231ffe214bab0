package geo

import (
	"time"

	"github.com/BradenHooton/mailguard/internal/models"
)

// LoadTimezone returns the named IANA location, or UTC when the name is empty or unknown
func LoadTimezone(name string) *time.Location {
	if name == "" || name == models.UnknownLocation {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
