package cluster

import (
	"sync"

	"github.com/ziadkadry99/nodemap/internal/geo"
)

// Flat recomputes a Proximity grouping per level on demand. Groupings are
// memoized by radius, so levels sharing a bracket share one pass.
//
// Handles with a non-negative ID index the whole-set grouping at their
// level. Children of a cluster are grouped over the cluster's members only
// and receive negative IDs from a per-index table. Each cluster is split
// once; repeated calls return the same children.
type Flat struct {
	gen    uint64
	nodes  []Node
	policy geo.Policy

	mu       sync.Mutex
	byRad    map[float64][]ClusterPoint
	derived  map[Handle]ClusterPoint
	children map[Handle][]Feature
}

func newFlat(sorted []Node, policy geo.Policy) *Flat {
	return &Flat{
		gen:      nextGeneration(),
		nodes:    sorted,
		policy:   policy,
		byRad:    make(map[float64][]ClusterPoint),
		derived:  make(map[Handle]ClusterPoint),
		children: make(map[Handle][]Feature),
	}
}

func (f *Flat) Generation() uint64 { return f.gen }
func (f *Flat) Len() int           { return len(f.nodes) }
func (f *Flat) Policy() geo.Policy { return f.policy }
func (f *Flat) Strategy() Strategy { return StrategyFlat }

func (f *Flat) groups(level int) []ClusterPoint {
	r := f.policy.RadiusForZoom(float64(level))
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.byRad[r]; ok {
		return g
	}
	g := Proximity(f.nodes, r)
	f.byRad[r] = g
	return g
}

func (f *Flat) Clusters(bbox geo.BoundingBox, zoom float64) []Feature {
	level := f.policy.LevelForZoom(zoom)
	bbox = bbox.Normalize()
	var out []Feature
	for i, g := range f.groups(level) {
		feat := featureFromPoint(g, Handle{Generation: f.gen, Zoom: level, ID: i})
		if !bbox.Intersects(feat.Extent) {
			continue
		}
		out = append(out, feat)
	}
	return out
}

func (f *Flat) lookup(h Handle) (ClusterPoint, bool) {
	if h.Generation != f.gen || h.Zoom < geo.MinZoom || h.Zoom > f.policy.LeafLevel() {
		return ClusterPoint{}, false
	}
	if h.ID < 0 {
		f.mu.Lock()
		p, ok := f.derived[h]
		f.mu.Unlock()
		return p, ok && p.IsCluster()
	}
	g := f.groups(h.Zoom)
	if h.ID >= len(g) || !g[h.ID].IsCluster() {
		return ClusterPoint{}, false
	}
	return g[h.ID], true
}

func (f *Flat) Feature(h Handle) (Feature, bool) {
	p, ok := f.lookup(h)
	if !ok {
		return Feature{}, false
	}
	return featureFromPoint(p, h), true
}

// Children splits the cluster's own members at the first level where they
// separate. The result is not the whole-set grouping at that level, so
// derived child handles need not appear in the next viewport frame.
func (f *Flat) Children(h Handle) ([]Feature, bool) {
	p, ok := f.lookup(h)
	if !ok {
		return nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.children[h]; ok {
		return append([]Feature(nil), cached...), true
	}

	leaf := f.policy.LeafLevel()
	for z := h.Zoom + 1; z <= leaf; z++ {
		parts := Proximity(p.Members, f.policy.RadiusForZoom(float64(z)))
		if len(parts) < 2 && z < leaf {
			continue
		}
		out := make([]Feature, 0, len(parts))
		for _, part := range parts {
			var ch Handle
			if part.IsCluster() {
				ch = Handle{Generation: f.gen, Zoom: z, ID: -(len(f.derived) + 1)}
				f.derived[ch] = part
			}
			out = append(out, featureFromPoint(part, ch))
		}
		f.children[h] = out
		return append([]Feature(nil), out...), true
	}
	return nil, false
}

func (f *Flat) Leaves(h Handle) ([]Node, bool) {
	p, ok := f.lookup(h)
	if !ok {
		return nil, false
	}
	out := make([]Node, len(p.Members))
	copy(out, p.Members)
	return out, true
}
