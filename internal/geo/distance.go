package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by every distance in nodemap.
const EarthRadiusKm = 6371.0

const degToRad = math.Pi / 180

// Distance returns the great-circle distance in kilometres between two
// coordinates given in degrees, using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad
	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	a := sinLat*sinLat + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*sinLng*sinLng
	if a > 1 {
		a = 1
	}
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// SearchBounds returns the smallest box guaranteed to contain every point
// within radiusKm of (lat, lng). Near the poles, or for radii wide enough to
// wrap, the longitude range covers the whole globe.
func SearchBounds(lat, lng, radiusKm float64) BoundingBox {
	angular := radiusKm / EarthRadiusKm
	latRad := lat * degToRad
	minLat := latRad - angular
	maxLat := latRad + angular

	const halfPi = math.Pi / 2
	if minLat <= -halfPi || maxLat >= halfPi {
		return BoundingBox{
			MinLat: math.Max(minLat, -halfPi) / degToRad,
			MinLng: -180,
			MaxLat: math.Min(maxLat, halfPi) / degToRad,
			MaxLng: 180,
		}
	}

	ratio := math.Sin(angular) / math.Cos(latRad)
	if ratio >= 1 {
		return BoundingBox{MinLat: minLat / degToRad, MinLng: -180, MaxLat: maxLat / degToRad, MaxLng: 180}
	}
	dLng := math.Asin(ratio) / degToRad
	return BoundingBox{
		MinLat: minLat / degToRad,
		MinLng: WrapLng(lng - dLng),
		MaxLat: maxLat / degToRad,
		MaxLng: WrapLng(lng + dLng),
	}
}

// WrapLng normalizes a longitude into [-180, 180).
func WrapLng(lng float64) float64 {
	if lng >= -180 && lng < 180 {
		return lng
	}
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

// ClampLat limits a latitude to [-90, 90].
func ClampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
