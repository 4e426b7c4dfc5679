package telemetry

import (
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/metrics"
)

// Field aliases accepted in upstream records, in lookup order.
var (
	idKeys      = []string{"id", "node_id", "nodeId", "address", "ip"}
	addressKeys = []string{"address", "ip", "host", "endpoint"}
	latKeys     = []string{"lat", "latitude"}
	lngKeys     = []string{"lng", "lon", "long", "longitude"}
	healthKeys  = []string{"health", "health_score", "healthScore", "score"}
)

// Geolocator resolves a network address to coordinates.
type Geolocator interface {
	Locate(address string) (lat, lng float64, ok bool)
}

// Stats counts what Normalize did with a batch.
type Stats struct {
	Total      int `json:"total"`
	Kept       int `json:"kept"`
	Geolocated int `json:"geolocated"`
	NoID       int `json:"no_id"`
	NoCoords   int `json:"no_coords"`
	Filtered   int `json:"filtered"`
	Duplicates int `json:"duplicates"`
}

// Normalize converts raw records into nodes. Records without an ID, without
// usable coordinates (after geolocation), filtered out, or repeating an
// earlier ID are dropped. locator and filter may be nil.
func Normalize(records []Record, locator Geolocator, filter *Filter) ([]cluster.Node, Stats) {
	stats := Stats{Total: len(records)}
	seen := make(map[string]struct{}, len(records))
	nodes := make([]cluster.Node, 0, len(records))

	for _, rec := range records {
		id := stringField(rec, idKeys)
		if id == "" {
			stats.NoID++
			metrics.NodesDroppedTotal.WithLabelValues("no_id").Inc()
			continue
		}
		if _, dup := seen[id]; dup {
			stats.Duplicates++
			metrics.NodesDroppedTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		if filter != nil && !filter.Allows(id) {
			stats.Filtered++
			metrics.NodesDroppedTotal.WithLabelValues("filtered").Inc()
			continue
		}

		lat, latOK := coordinate(rec, latKeys, "location")
		lng, lngOK := coordinate(rec, lngKeys, "location")
		if !latOK || !lngOK || !validCoords(lat, lng) {
			located := false
			if locator != nil {
				if addr := hostOnly(stringField(rec, addressKeys)); addr != "" {
					lat, lng, located = locator.Locate(addr)
				}
			}
			if !located || !validCoords(lat, lng) {
				stats.NoCoords++
				metrics.NodesDroppedTotal.WithLabelValues("no_coords").Inc()
				continue
			}
			stats.Geolocated++
		}

		health, _ := numberField(rec, healthKeys)
		seen[id] = struct{}{}
		nodes = append(nodes, cluster.Node{
			ID:     id,
			Lat:    lat,
			Lng:    wrap180(lng),
			Health: math.Max(0, math.Min(100, health)),
			Meta:   meta(rec),
		})
	}
	stats.Kept = len(nodes)
	return nodes, stats
}

func validCoords(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func wrap180(lng float64) float64 {
	if lng == 180 {
		return -180
	}
	return lng
}

// hostOnly strips a port and brackets from an address.
func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func stringField(rec Record, keys []string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func numberField(rec Record, keys []string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(rec[k]); ok {
			return f, true
		}
	}
	return 0, false
}

// coordinate looks for keys at the top level and then inside the nested
// object named nested.
func coordinate(rec Record, keys []string, nested string) (float64, bool) {
	if f, ok := numberField(rec, keys); ok {
		return f, true
	}
	if inner, ok := rec[nested].(map[string]any); ok {
		return numberField(Record(inner), keys)
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// meta keeps every field that is not one of the recognised ones.
func meta(rec Record) map[string]any {
	known := make(map[string]struct{})
	for _, keys := range [][]string{idKeys, latKeys, lngKeys, healthKeys, {"location"}} {
		for _, k := range keys {
			known[k] = struct{}{}
		}
	}
	out := make(map[string]any)
	for k, v := range rec {
		if _, ok := known[k]; ok {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
