package cluster

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ziadkadry99/nodemap/internal/geo"
)

// Node is one geolocated storage node. Meta is carried through clustering
// untouched so the renderer can show it.
type Node struct {
	ID     string         `json:"id"`
	Lat    float64        `json:"lat"`
	Lng    float64        `json:"lng"`
	Health float64        `json:"health"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// SortNodes returns a copy of nodes ordered by ID. Clustering is order
// dependent, so every node set is sorted once on ingestion.
func SortNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	copy(out, nodes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClusterPoint is one group produced by the flat strategy.
type ClusterPoint struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Members       []Node  `json:"members"`
	AverageHealth float64 `json:"average_health"`
}

// IsCluster reports whether the point aggregates more than one node.
func (p ClusterPoint) IsCluster() bool { return len(p.Members) > 1 }

// Handle identifies a cluster inside one built index. Generation changes
// on every rebuild, which is how stale handles are detected.
type Handle struct {
	Generation uint64
	Zoom       int
	ID         int
}

// IsZero reports whether h is the zero handle carried by node features.
func (h Handle) IsZero() bool { return h == Handle{} }

// String renders the handle as "generation.zoom.id".
func (h Handle) String() string {
	return fmt.Sprintf("%d.%d.%d", h.Generation, h.Zoom, h.ID)
}

// MarshalText implements encoding.TextMarshaler.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Handle) UnmarshalText(b []byte) error {
	parsed, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle parses the "generation.zoom.id" form.
func ParseHandle(s string) (Handle, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Handle{}, fmt.Errorf("invalid cluster handle %q", s)
	}
	gen, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid cluster handle generation %q: %w", parts[0], err)
	}
	zoom, err := strconv.Atoi(parts[1])
	if err != nil {
		return Handle{}, fmt.Errorf("invalid cluster handle zoom %q: %w", parts[1], err)
	}
	id, err := strconv.Atoi(parts[2])
	if err != nil {
		return Handle{}, fmt.Errorf("invalid cluster handle id %q: %w", parts[2], err)
	}
	return Handle{Generation: gen, Zoom: zoom, ID: id}, nil
}

// Feature is either a single node (Node set, Count 1) or a cluster
// (Count > 1, Handle set).
type Feature struct {
	Lat           float64         `json:"lat"`
	Lng           float64         `json:"lng"`
	Count         int             `json:"count"`
	AverageHealth float64         `json:"average_health"`
	Handle        Handle          `json:"handle,omitzero"`
	Node          *Node           `json:"node,omitempty"`
	Extent        geo.BoundingBox `json:"extent"`
}

// IsCluster reports whether the feature aggregates more than one node.
func (f Feature) IsCluster() bool { return f.Count > 1 }

// Key returns a stable identity for ordering features inside a frame.
func (f Feature) Key() string {
	if f.Node != nil {
		return "n:" + f.Node.ID
	}
	return "c:" + f.Handle.String()
}

// centroid accumulates a count-weighted mean position. Longitudes are
// unwrapped relative to the first sample so groups straddling the
// antimeridian do not average to the opposite side of the globe.
type centroid struct {
	refLng         float64
	sumLat, sumLng float64
	minLng, maxLng float64
	minLat, maxLat float64
	weight         float64
	healthSum      float64
	n              int
}

func (c *centroid) add(lat, lng, health float64, weight int, extent geo.BoundingBox) {
	w := float64(weight)
	if c.n == 0 {
		c.refLng = lng
		c.minLat, c.maxLat = extent.MinLat, extent.MaxLat
		c.minLng, c.maxLng = c.unwrap(extent.MinLng), c.unwrap(extent.MinLng)+span(extent)
	} else {
		lo := c.unwrap(extent.MinLng)
		hi := lo + span(extent)
		if lo < c.minLng {
			c.minLng = lo
		}
		if hi > c.maxLng {
			c.maxLng = hi
		}
		if extent.MinLat < c.minLat {
			c.minLat = extent.MinLat
		}
		if extent.MaxLat > c.maxLat {
			c.maxLat = extent.MaxLat
		}
	}
	c.sumLat += lat * w
	c.sumLng += c.unwrap(lng) * w
	c.weight += w
	c.healthSum += health
	c.n++
}

func (c *centroid) unwrap(lng float64) float64 {
	return c.refLng + geo.WrapLng(lng-c.refLng)
}

func (c *centroid) position() (lat, lng float64) {
	if c.weight == 0 {
		return 0, 0
	}
	return c.sumLat / c.weight, geo.WrapLng(c.sumLng / c.weight)
}

func (c *centroid) extent() geo.BoundingBox {
	if c.maxLng-c.minLng >= 360 {
		return geo.BoundingBox{MinLat: c.minLat, MinLng: -180, MaxLat: c.maxLat, MaxLng: 180}
	}
	maxLng := geo.WrapLng(c.maxLng)
	if maxLng == -180 {
		maxLng = 180
	}
	return geo.BoundingBox{MinLat: c.minLat, MinLng: geo.WrapLng(c.minLng), MaxLat: c.maxLat, MaxLng: maxLng}
}

// span is the longitude width of a box, accounting for wrap.
func span(b geo.BoundingBox) float64 {
	if b.CrossesAntimeridian() {
		return b.MaxLng + 360 - b.MinLng
	}
	return b.MaxLng - b.MinLng
}

func pointExtent(lat, lng float64) geo.BoundingBox {
	return geo.BoundingBox{MinLat: lat, MinLng: lng, MaxLat: lat, MaxLng: lng}
}
