package cluster

import (
	"sort"

	"github.com/MadAppGang/kdbush"
	"github.com/tidwall/rtree"

	"github.com/ziadkadry99/nodemap/internal/geo"
)

// levelFeature is one entry of a precomputed level. Clusters keep the
// indices of the features they absorbed one level down, so expansion never
// rescans the node list.
type levelFeature struct {
	lat, lng  float64
	count     int
	healthSum float64
	extent    geo.BoundingBox

	node     int // index into nodes for single nodes, -1 for clusters
	home     int // level where the cluster was formed
	homeID   int // index of the cluster at its home level
	children []int
}

func (lf levelFeature) Coordinates() (float64, float64) { return lf.lng, lf.lat }

// Hierarchical precomputes every level from the leaf level down to
// MinZoom in one pass, the way supercluster does. A kd-tree over each
// level drives neighbour search during the build. An R-tree per level,
// keyed by member extent, answers viewport queries.
type Hierarchical struct {
	gen    uint64
	nodes  []Node
	policy geo.Policy
	levels [][]levelFeature
	trees  []*rtree.RTreeG[int]
}

func newHierarchical(sorted []Node, policy geo.Policy, nodeSize int) *Hierarchical {
	if nodeSize <= 0 {
		nodeSize = 64
	}
	leaf := policy.LeafLevel()
	h := &Hierarchical{
		gen:    nextGeneration(),
		nodes:  sorted,
		policy: policy,
		levels: make([][]levelFeature, leaf+1),
		trees:  make([]*rtree.RTreeG[int], leaf+1),
	}

	base := make([]levelFeature, len(sorted))
	for i, n := range sorted {
		base[i] = levelFeature{
			lat:       n.Lat,
			lng:       n.Lng,
			count:     1,
			healthSum: n.Health,
			extent:    pointExtent(n.Lat, n.Lng),
			node:      i,
			home:      leaf,
			homeID:    i,
		}
	}
	h.levels[leaf] = base
	for z := leaf - 1; z >= geo.MinZoom; z-- {
		h.levels[z] = h.clusterLevel(h.levels[z+1], z, nodeSize)
	}
	for z, level := range h.levels {
		h.trees[z] = indexLevel(level)
	}
	return h
}

// clusterLevel merges the features of the level above into the features of
// level z. Unmerged features are carried down unchanged.
func (h *Hierarchical) clusterLevel(prev []levelFeature, z, nodeSize int) []levelFeature {
	r := h.policy.RadiusForZoom(float64(z))
	if r <= 0 || len(prev) == 0 {
		out := make([]levelFeature, len(prev))
		copy(out, prev)
		return out
	}

	points := make([]kdbush.Point, len(prev))
	for i := range prev {
		points[i] = prev[i]
	}
	bush := kdbush.NewBush(points, nodeSize)

	used := make([]bool, len(prev))
	out := make([]levelFeature, 0, len(prev))
	for i := range prev {
		if used[i] {
			continue
		}
		used[i] = true
		seed := prev[i]

		var absorbed []int
		for _, box := range geo.SearchBounds(seed.lat, seed.lng, r).Split() {
			for _, j := range bush.Range(box.MinLng, box.MinLat, box.MaxLng, box.MaxLat) {
				if used[j] {
					continue
				}
				if geo.Distance(seed.lat, seed.lng, prev[j].lat, prev[j].lng) > r {
					continue
				}
				used[j] = true
				absorbed = append(absorbed, j)
			}
		}
		if len(absorbed) == 0 {
			out = append(out, seed)
			continue
		}

		sort.Ints(absorbed)
		children := append([]int{i}, absorbed...)
		var c centroid
		for _, ci := range children {
			p := prev[ci]
			c.add(p.lat, p.lng, p.healthSum, p.count, p.extent)
		}
		lat, lng := c.position()
		count := 0
		for _, ci := range children {
			count += prev[ci].count
		}
		out = append(out, levelFeature{
			lat:       lat,
			lng:       lng,
			count:     count,
			healthSum: c.healthSum,
			extent:    c.extent(),
			node:      -1,
			home:      z,
			homeID:    len(out),
			children:  children,
		})
	}
	return out
}

func indexLevel(level []levelFeature) *rtree.RTreeG[int] {
	tr := &rtree.RTreeG[int]{}
	for i, lf := range level {
		for _, box := range lf.extent.Split() {
			tr.Insert([2]float64{box.MinLng, box.MinLat}, [2]float64{box.MaxLng, box.MaxLat}, i)
		}
	}
	return tr
}

func (h *Hierarchical) Generation() uint64 { return h.gen }
func (h *Hierarchical) Len() int           { return len(h.nodes) }
func (h *Hierarchical) Policy() geo.Policy { return h.policy }
func (h *Hierarchical) Strategy() Strategy { return StrategyHierarchical }

func (h *Hierarchical) Clusters(bbox geo.BoundingBox, zoom float64) []Feature {
	level := h.policy.LevelForZoom(zoom)
	tr := h.trees[level]
	if tr == nil || tr.Len() == 0 {
		return nil
	}
	seen := make(map[int]struct{})
	var ids []int
	for _, box := range bbox.Normalize().Split() {
		tr.Search([2]float64{box.MinLng, box.MinLat}, [2]float64{box.MaxLng, box.MaxLat},
			func(_, _ [2]float64, id int) bool {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
				return true
			})
	}
	sort.Ints(ids)
	out := make([]Feature, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.feature(h.levels[level][id]))
	}
	return out
}

func (h *Hierarchical) feature(lf levelFeature) Feature {
	if lf.node >= 0 {
		n := h.nodes[lf.node]
		return Feature{
			Lat:           n.Lat,
			Lng:           n.Lng,
			Count:         1,
			AverageHealth: n.Health,
			Node:          &n,
			Extent:        lf.extent,
		}
	}
	return Feature{
		Lat:           lf.lat,
		Lng:           lf.lng,
		Count:         lf.count,
		AverageHealth: lf.healthSum / float64(lf.count),
		Handle:        Handle{Generation: h.gen, Zoom: lf.home, ID: lf.homeID},
		Extent:        lf.extent,
	}
}

func (h *Hierarchical) lookup(hd Handle) (levelFeature, bool) {
	if hd.Generation != h.gen || hd.Zoom < geo.MinZoom || hd.Zoom >= len(h.levels)-1 {
		return levelFeature{}, false
	}
	level := h.levels[hd.Zoom]
	if hd.ID < 0 || hd.ID >= len(level) {
		return levelFeature{}, false
	}
	lf := level[hd.ID]
	if lf.node >= 0 || lf.home != hd.Zoom || lf.homeID != hd.ID {
		return levelFeature{}, false
	}
	return lf, true
}

func (h *Hierarchical) Feature(hd Handle) (Feature, bool) {
	lf, ok := h.lookup(hd)
	if !ok {
		return Feature{}, false
	}
	return h.feature(lf), true
}

func (h *Hierarchical) Children(hd Handle) ([]Feature, bool) {
	lf, ok := h.lookup(hd)
	if !ok {
		return nil, false
	}
	below := h.levels[hd.Zoom+1]
	out := make([]Feature, 0, len(lf.children))
	for _, ci := range lf.children {
		out = append(out, h.feature(below[ci]))
	}
	return out, true
}

func (h *Hierarchical) Leaves(hd Handle) ([]Node, bool) {
	lf, ok := h.lookup(hd)
	if !ok {
		return nil, false
	}
	type frame struct {
		level int
		idx   []int
	}
	out := make([]Node, 0, lf.count)
	stack := []frame{{level: hd.Zoom + 1, idx: lf.children}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ci := range top.idx {
			child := h.levels[top.level][ci]
			if child.node >= 0 {
				out = append(out, h.nodes[child.node])
				continue
			}
			stack = append(stack, frame{level: child.home + 1, idx: child.children})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, true
}
