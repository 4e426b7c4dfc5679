package cluster

import (
	"fmt"
	"sync/atomic"

	"github.com/ziadkadry99/nodemap/internal/geo"
)

// Index answers viewport queries over one immutable node set. Both
// strategies share the radius policy and the haversine metric, so they
// produce visually equivalent maps, not identical ones.
type Index interface {
	// Generation identifies this build. Handles from other builds are stale.
	Generation() uint64
	Len() int
	Policy() geo.Policy
	Strategy() Strategy
	// Clusters returns every feature visible in bbox at zoom, in a stable
	// order.
	Clusters(bbox geo.BoundingBox, zoom float64) []Feature
	// Feature resolves a handle to the cluster it names.
	Feature(h Handle) (Feature, bool)
	// Children returns the features the cluster splits into at the next
	// level where it splits.
	Children(h Handle) ([]Feature, bool)
	// Leaves returns every node inside the cluster.
	Leaves(h Handle) ([]Node, bool)
}

// Strategy selects the clustering implementation.
type Strategy string

const (
	StrategyAuto         Strategy = "auto"
	StrategyFlat         Strategy = "flat"
	StrategyHierarchical Strategy = "hierarchical"
)

// ParseStrategy validates a configured strategy name. The empty string
// means auto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyFlat, StrategyHierarchical:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown clustering strategy %q (want auto, flat or hierarchical)", s)
}

// Options configures Build.
type Options struct {
	Strategy Strategy
	// FlatThreshold is the largest node count auto hands to the flat
	// strategy.
	FlatThreshold int
	// NodeSize is the kd-tree leaf size used by the hierarchical strategy.
	NodeSize int
	Policy   geo.Policy
}

// DefaultOptions returns auto strategy with the default zoom policy.
func DefaultOptions() Options {
	return Options{
		Strategy:      StrategyAuto,
		FlatThreshold: 2000,
		NodeSize:      64,
		Policy:        geo.DefaultPolicy(),
	}
}

// Resolve picks the concrete strategy for n nodes.
func (o Options) Resolve(n int) Strategy {
	switch o.Strategy {
	case StrategyFlat, StrategyHierarchical:
		return o.Strategy
	}
	if n <= o.FlatThreshold {
		return StrategyFlat
	}
	return StrategyHierarchical
}

var lastGeneration atomic.Uint64

func nextGeneration() uint64 {
	return lastGeneration.Add(1)
}

// Build constructs an index over nodes. The input is copied and sorted by
// ID, so callers may reuse their slice.
func Build(nodes []Node, opts Options) Index {
	sorted := SortNodes(nodes)
	if opts.Resolve(len(sorted)) == StrategyHierarchical {
		return newHierarchical(sorted, opts.Policy, opts.NodeSize)
	}
	return newFlat(sorted, opts.Policy)
}

// NewFlat builds a flat index regardless of node count.
func NewFlat(nodes []Node, opts Options) *Flat {
	return newFlat(SortNodes(nodes), opts.Policy)
}

// NewHierarchical builds a hierarchical index regardless of node count.
func NewHierarchical(nodes []Node, opts Options) *Hierarchical {
	return newHierarchical(SortNodes(nodes), opts.Policy, opts.NodeSize)
}
