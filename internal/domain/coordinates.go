package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// gpsPattern accepts "lat,lng" decimal pairs with optional whitespace after the comma.
var gpsPattern = regexp.MustCompile(
	`^[-+]?([1-8]?\d(\.\d+)?|90(\.0+)?),\s*[-+]?(180(\.0+)?|((1[0-7]\d)|([1-9]?\d))(\.\d+)?)$`,
)

// Immutable geographic coordinates (longitude, latitude).
type Coordinates struct {
	Lon float64
	Lat float64
}

// ParseGPS parses a "lat,lng" string into coordinates.
// Latitude must be within [-90, 90] and longitude within [-180, 180].
func ParseGPS(s string) (Coordinates, error) {
	s = strings.TrimSpace(s)
	if !gpsPattern.MatchString(s) {
		return Coordinates{}, fmt.Errorf("parse gps %q: expected \"lat,lng\" decimal pair", s)
	}

	parts := strings.SplitN(s, ",", 2)
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse gps %q: latitude: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse gps %q: longitude: %w", s, err)
	}

	if lat < -90 || lat > 90 {
		return Coordinates{}, fmt.Errorf("parse gps %q: latitude %v out of range", s, lat)
	}
	if lon < -180 || lon > 180 {
		return Coordinates{}, fmt.Errorf("parse gps %q: longitude %v out of range", s, lon)
	}

	return Coordinates{Lon: lon, Lat: lat}, nil
}
