// Package geo provides the distance math behind spatial stop queries.
package geo

import "math"

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance in meters between two
// lat/lon points given in degrees. Inputs are not validated; coordinates
// outside the usual ranges still produce a numeric result.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Planar returns the Euclidean distance in degrees between two lat/lon
// points. Only comparable against other Planar results from the same
// neighborhood of coordinates.
func Planar(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	return math.Sqrt(dLat*dLat + dLon*dLon)
}
