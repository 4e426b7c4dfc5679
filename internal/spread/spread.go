// Package spread offsets features that collapse onto the same rounded
// coordinate so they render as distinct markers.
package spread

import (
	"math"
	"sort"
	"strconv"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/geo"
)

// DisplayPoint is one render-ready marker. When GroupSize is 1 the display
// coordinate equals the true coordinate.
type DisplayPoint struct {
	TrueLat      float64         `json:"true_lat"`
	TrueLng      float64         `json:"true_lng"`
	DisplayLat   float64         `json:"display_lat"`
	DisplayLng   float64         `json:"display_lng"`
	GroupKey     string          `json:"group_key"`
	GroupSize    int             `json:"group_size"`
	IndexInGroup int             `json:"index_in_group"`
	Feature      cluster.Feature `json:"feature"`
}

// ConnectorLine links a spread marker back to its true coordinate.
type ConnectorLine struct {
	FromLat  float64 `json:"from_lat"`
	FromLng  float64 `json:"from_lng"`
	ToLat    float64 `json:"to_lat"`
	ToLng    float64 `json:"to_lng"`
	GroupKey string  `json:"group_key"`
}

// Spreader distributes co-located features on a circle.
type Spreader struct {
	Policy           geo.Policy
	BaseRadiusDeg    float64
	MaxRadiusDeg     float64
	ConnectorMinZoom float64
}

// New returns a spreader with the default radii and connector threshold.
func New(policy geo.Policy) *Spreader {
	return &Spreader{
		Policy:           policy,
		BaseRadiusDeg:    0.01,
		MaxRadiusDeg:     1.0,
		ConnectorMinZoom: 12,
	}
}

// GroupKey rounds a coordinate to precision decimal digits and formats it
// as "lat,lng".
func GroupKey(lat, lng float64, precision int) string {
	return formatRounded(lat, precision) + "," + formatRounded(geo.WrapLng(lng), precision)
}

func formatRounded(v float64, precision int) string {
	scale := math.Pow10(precision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', precision, 64)
}

// Radius is the spread circle radius in degrees for a group of n at zoom.
// Groups of up to three use the base radius, groups up to ten grow
// moderately and larger groups grow faster. Zooming in widens the circle.
func (s *Spreader) Radius(n int, zoom float64) float64 {
	var size float64
	switch {
	case n <= 3:
		size = 1
	case n <= 10:
		size = 1 + 0.15*float64(n-3)
	default:
		size = 2.05 + 0.3*float64(n-10)
	}
	zf := 0.25 + 1.25*geo.ClampZoom(zoom)/geo.MaxZoom
	return math.Min(s.BaseRadiusDeg*size*zf, s.MaxRadiusDeg)
}

// Spread returns one DisplayPoint per feature, in input order, and the
// connector lines for spread members when zoomed in past the threshold.
func (s *Spreader) Spread(features []cluster.Feature, zoom float64) ([]DisplayPoint, []ConnectorLine) {
	if len(features) == 0 {
		return nil, nil
	}
	precision := s.Policy.PrecisionForZoom(zoom)

	points := make([]DisplayPoint, len(features))
	buckets := make(map[string][]int)
	var order []string
	for i, f := range features {
		key := GroupKey(f.Lat, f.Lng, precision)
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], i)
		points[i] = DisplayPoint{
			TrueLat:    f.Lat,
			TrueLng:    f.Lng,
			DisplayLat: f.Lat,
			DisplayLng: f.Lng,
			GroupKey:   key,
			GroupSize:  1,
			Feature:    f,
		}
	}

	showConnectors := geo.ClampZoom(zoom) > s.ConnectorMinZoom
	var lines []ConnectorLine
	for _, key := range order {
		members := buckets[key]
		n := len(members)
		if n == 1 {
			continue
		}
		sort.SliceStable(members, func(a, b int) bool {
			return features[members[a]].Key() < features[members[b]].Key()
		})
		r := s.Radius(n, zoom)
		for i, fi := range members {
			p := &points[fi]
			angle := 2 * math.Pi * float64(i) / float64(n)
			p.DisplayLat = geo.ClampLat(p.TrueLat + math.Cos(angle)*r)
			p.DisplayLng = geo.WrapLng(p.TrueLng + math.Sin(angle)*r)
			p.GroupSize = n
			p.IndexInGroup = i
			if showConnectors {
				lines = append(lines, ConnectorLine{
					FromLat:  p.TrueLat,
					FromLng:  p.TrueLng,
					ToLat:    p.DisplayLat,
					ToLng:    p.DisplayLng,
					GroupKey: key,
				})
			}
		}
	}
	return points, lines
}
