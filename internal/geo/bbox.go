package geo

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// BoundingBox is a lat/lng rectangle in degrees. A box whose MinLng is
// greater than its MaxLng crosses the antimeridian.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// World returns the box covering the whole globe.
func World() BoundingBox {
	return BoundingBox{MinLat: -90, MinLng: -180, MaxLat: 90, MaxLng: 180}
}

// IsZero reports whether the box is unset.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// CrossesAntimeridian reports whether the box wraps across ±180°.
func (b BoundingBox) CrossesAntimeridian() bool {
	return b.MinLng > b.MaxLng
}

// Normalize clamps latitudes, wraps longitudes and orders the latitude
// bounds. A longitude span of 360° or more becomes the full range.
func (b BoundingBox) Normalize() BoundingBox {
	minLat, maxLat := ClampLat(b.MinLat), ClampLat(b.MaxLat)
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	if b.MaxLng-b.MinLng >= 360 {
		return BoundingBox{MinLat: minLat, MinLng: -180, MaxLat: maxLat, MaxLng: 180}
	}
	minLng, maxLng := b.MinLng, b.MaxLng
	if minLng != -180 || maxLng != 180 {
		minLng, maxLng = WrapLng(minLng), WrapLng(maxLng)
		if maxLng == -180 {
			maxLng = 180
		}
	}
	return BoundingBox{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}
}

func (b BoundingBox) rect() s2.Rect {
	minLng, maxLng := b.MinLng, b.MaxLng
	// [-180, -180] would be read as the empty interval.
	if minLng == -180 && maxLng == -180 {
		minLng, maxLng = 180, 180
	}
	return s2.Rect{
		Lat: r1.Interval{Lo: b.MinLat * degToRad, Hi: b.MaxLat * degToRad},
		Lng: s1.IntervalFromEndpoints(minLng*degToRad, maxLng*degToRad),
	}
}

// Contains reports whether the coordinate lies inside the box.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return b.rect().ContainsLatLng(s2.LatLngFromDegrees(lat, WrapLng(lng)))
}

// Intersects reports whether the two boxes overlap.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.rect().Intersects(o.rect())
}

// Split returns the box as one or two non-wrapping boxes, splitting at the
// antimeridian when needed.
func (b BoundingBox) Split() []BoundingBox {
	if !b.CrossesAntimeridian() {
		return []BoundingBox{b}
	}
	return []BoundingBox{
		{MinLat: b.MinLat, MinLng: b.MinLng, MaxLat: b.MaxLat, MaxLng: 180},
		{MinLat: b.MinLat, MinLng: -180, MaxLat: b.MaxLat, MaxLng: b.MaxLng},
	}
}

// Pad grows the box by ratio of its span on every side.
func (b BoundingBox) Pad(ratio float64) BoundingBox {
	latSpan := b.MaxLat - b.MinLat
	lngSpan := b.MaxLng - b.MinLng
	if b.CrossesAntimeridian() {
		lngSpan += 360
	}
	dLat := latSpan * ratio
	dLng := lngSpan * ratio
	if lngSpan+2*dLng >= 360 {
		return BoundingBox{MinLat: ClampLat(b.MinLat - dLat), MinLng: -180, MaxLat: ClampLat(b.MaxLat + dLat), MaxLng: 180}
	}
	return BoundingBox{
		MinLat: ClampLat(b.MinLat - dLat),
		MinLng: WrapLng(b.MinLng - dLng),
		MaxLat: ClampLat(b.MaxLat + dLat),
		MaxLng: WrapLng(b.MaxLng + dLng),
	}
}

// TileSize is the pixel size of a web-map tile at zoom 0.
const TileSize = 256

// BoundsAround approximates the box visible in a widthPx × heightPx
// viewport centred on (lat, lng) at the given zoom on a web-mercator map.
func BoundsAround(lat, lng, zoom float64, widthPx, heightPx int) BoundingBox {
	degPerPx := 360 / (TileSize * math.Exp2(ClampZoom(zoom)))
	halfLng := float64(widthPx) / 2 * degPerPx
	halfLat := float64(heightPx) / 2 * degPerPx * math.Cos(lat*degToRad)
	if halfLng >= 180 {
		return BoundingBox{MinLat: ClampLat(lat - halfLat), MinLng: -180, MaxLat: ClampLat(lat + halfLat), MaxLng: 180}
	}
	return BoundingBox{
		MinLat: ClampLat(lat - halfLat),
		MinLng: WrapLng(lng - halfLng),
		MaxLat: ClampLat(lat + halfLat),
		MaxLng: WrapLng(lng + halfLng),
	}
}
