package geo

import "math"

// EarthRadiusKM is the mean radius of Earth used for great-circle distance.
const EarthRadiusKM = 6371.0

// DistanceKM returns the great-circle distance in kilometers between two
// points specified by latitude and longitude in degrees.
//
// Uses the spherical law of cosines:
//
//	d = R * acos(cos(lat1)*cos(lat2)*cos(lon2-lon1) + sin(lat1)*sin(lat2))
//
// For coincident points floating-point rounding can push the acos argument
// slightly above 1, which would yield NaN; the argument is clamped to [-1, 1]
// so same-zip queries return exactly 0.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	arg := math.Cos(lat1r)*math.Cos(lat2r)*math.Cos(dLon) +
		math.Sin(lat1r)*math.Sin(lat2r)
	if arg > 1 {
		arg = 1
	} else if arg < -1 {
		arg = -1
	}

	return EarthRadiusKM * math.Acos(arg)
}

// ValidCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
