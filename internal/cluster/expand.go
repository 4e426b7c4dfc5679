package cluster

import (
	"math"

	"github.com/ziadkadry99/nodemap/internal/geo"
)

// DefaultMaxZoomStep bounds how far a single expansion may zoom in.
const DefaultMaxZoomStep = 4

// Expansion is the result of clicking a cluster: its children and the
// viewport that separates them.
type Expansion struct {
	Handle    Handle    `json:"handle"`
	Children  []Feature `json:"children"`
	CenterLat float64   `json:"center_lat"`
	CenterLng float64   `json:"center_lng"`
	Zoom      float64   `json:"zoom"`
}

// Resolver turns a cluster handle into a target viewport.
type Resolver struct {
	MaxZoomStep int
}

// Expand resolves h against idx. It reports false when the handle is stale
// or does not name a cluster.
//
// The target zoom is the first level, starting one above both the current
// zoom and the cluster's own level, at which the clustering radius drops
// below the spread of the cluster's children. It never exceeds the current
// zoom plus MaxZoomStep or the leaf level, and is always strictly greater
// than the current zoom level unless the leaf level is already shown.
func (r Resolver) Expand(idx Index, h Handle, currentZoom float64) (Expansion, bool) {
	if idx == nil {
		return Expansion{}, false
	}
	f, ok := idx.Feature(h)
	if !ok || !f.IsCluster() {
		return Expansion{}, false
	}
	children, ok := idx.Children(h)
	if !ok {
		return Expansion{}, false
	}

	step := r.MaxZoomStep
	if step <= 0 {
		step = DefaultMaxZoomStep
	}
	policy := idx.Policy()
	leaf := policy.LeafLevel()
	cur := policy.LevelForZoom(currentZoom)
	spread := childSpread(children)

	z := max(cur+1, h.Zoom+1)
	for z < leaf {
		radius := policy.RadiusForZoom(float64(z))
		if radius <= 0 || radius < spread {
			break
		}
		z++
	}
	z = min(z, cur+step, leaf)
	z = max(z, min(cur+1, leaf))

	return Expansion{
		Handle:    h,
		Children:  children,
		CenterLat: f.Lat,
		CenterLng: f.Lng,
		Zoom:      float64(z),
	}, true
}

// childSpread is the largest pairwise distance between child positions.
func childSpread(children []Feature) float64 {
	spread := 0.0
	for i := range children {
		for j := i + 1; j < len(children); j++ {
			d := geo.Distance(children[i].Lat, children[i].Lng, children[j].Lat, children[j].Lng)
			spread = math.Max(spread, d)
		}
	}
	return spread
}
