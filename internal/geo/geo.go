package geo

import (
	"math"

	"github.com/example/bike-help/internal/models"
)

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Distance is Haversine over Coord pairs.
func Distance(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Within reports whether b lies within radiusMeters of a. Thresholds in the
// app are specified in meters, so this must stay geodesic, never a raw
// coordinate-delta comparison.
func Within(a, b models.Coord, radiusMeters float64) bool {
	return Distance(a, b) <= radiusMeters
}
