package cluster

import "github.com/ziadkadry99/nodemap/internal/geo"

// Proximity groups nodes greedily: the first unassigned node seeds a group
// and absorbs every later unassigned node within radiusKm of the seed. A
// radius of zero or less yields one group per node.
//
// The result depends on input order; callers pass nodes sorted by ID.
func Proximity(nodes []Node, radiusKm float64) []ClusterPoint {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]ClusterPoint, 0, len(nodes))
	if radiusKm <= 0 {
		for _, n := range nodes {
			out = append(out, newClusterPoint([]Node{n}))
		}
		return out
	}

	assigned := make([]bool, len(nodes))
	for i := range nodes {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		seed := nodes[i]
		members := []Node{seed}
		for j := i + 1; j < len(nodes); j++ {
			if assigned[j] {
				continue
			}
			if geo.Distance(seed.Lat, seed.Lng, nodes[j].Lat, nodes[j].Lng) <= radiusKm {
				assigned[j] = true
				members = append(members, nodes[j])
			}
		}
		out = append(out, newClusterPoint(members))
	}
	return out
}

func newClusterPoint(members []Node) ClusterPoint {
	var c centroid
	for _, m := range members {
		c.add(m.Lat, m.Lng, m.Health, 1, pointExtent(m.Lat, m.Lng))
	}
	lat, lng := c.position()
	return ClusterPoint{
		Lat:           lat,
		Lng:           lng,
		Members:       members,
		AverageHealth: c.healthSum / float64(len(members)),
	}
}

// featureFromPoint converts a flat group into a Feature. Single-member
// groups become node features and carry no handle.
func featureFromPoint(p ClusterPoint, h Handle) Feature {
	if len(p.Members) == 1 {
		n := p.Members[0]
		return Feature{
			Lat:           n.Lat,
			Lng:           n.Lng,
			Count:         1,
			AverageHealth: n.Health,
			Node:          &n,
			Extent:        pointExtent(n.Lat, n.Lng),
		}
	}
	var c centroid
	for _, m := range p.Members {
		c.add(m.Lat, m.Lng, m.Health, 1, pointExtent(m.Lat, m.Lng))
	}
	return Feature{
		Lat:           p.Lat,
		Lng:           p.Lng,
		Count:         len(p.Members),
		AverageHealth: p.AverageHealth,
		Handle:        h,
		Extent:        c.extent(),
	}
}
