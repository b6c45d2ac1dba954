package atlas

import "math"

const earthRadiusKm = 6371.0088

// greatCircleKm returns the haversine distance between two points in km.
func greatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Penalty charges the reference leg plus twice the deviation from it, so the
// right country costs exactly the reference and every detour costs triple.
func Penalty(distance, reference int) int {
	dev := distance - reference
	if dev < 0 {
		dev = -dev
	}
	return dev*2 + reference
}
