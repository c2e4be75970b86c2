package catalog

import "math"

const earthRadiusKm = 6371.0

// DeliveryArea is a circle around the warehouse inside which the store
// delivers and installs.
type DeliveryArea struct {
	OriginLat float64
	OriginLng float64
	RadiusKm  float64
}

// Covers reports whether the point is within the delivery radius and the
// great-circle distance to it in kilometers.
func (d DeliveryArea) Covers(lat, lng float64) (bool, float64) {
	dist := haversineKm(d.OriginLat, d.OriginLng, lat, lng)
	return dist <= d.RadiusKm, dist
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
