// Package geo provides the geocoding stack: a grid-indexed offline
// gazetteer, country boundary lookups over GeoJSON polygons, and a
// Nominatim client for places the gazetteer does not know. The
// Geocoder chains them in the configured order.
package geo

import "math"

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the great-circle distance between two points in
// meters, on a spherical earth. Zone banding and nearest-city checks
// do not need ellipsoidal accuracy.
func Distance(p1, p2 Point) float64 {
	const earthRadiusM = 6371000
	const rad = math.Pi / 180

	lat1 := p1.Lat * rad
	lat2 := p2.Lat * rad
	dLat := lat2 - lat1
	dLon := (p2.Lon - p1.Lon) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
