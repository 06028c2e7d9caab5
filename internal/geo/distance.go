// Package geo computes great-circle distances between location records.
package geo

import "math"

const earthRadiusKm = 6371.0

// UnknownDistance is returned when a distance cannot be computed. Callers must
// branch on it; it is never a valid distance.
const UnknownDistance = -1.0

// IsGeocoded reports whether (lat, lon) is a usable coordinate. The (0,0)
// pair is the ungeocoded sentinel, not a point in the Gulf of Guinea.
func IsGeocoded(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceMeters returns the Haversine distance between two points in metres,
// or UnknownDistance when either point is not geocoded.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	if !IsGeocoded(lat1, lon1) || !IsGeocoded(lat2, lon2) {
		return UnknownDistance
	}

	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c * 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
