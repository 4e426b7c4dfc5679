package mapview

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/geo"
	"github.com/ziadkadry99/nodemap/internal/snapshots"
	"github.com/ziadkadry99/nodemap/internal/telemetry"
	"github.com/ziadkadry99/nodemap/internal/viewport"
)

// maxNodesBody caps PUT /api/nodes request bodies.
const maxNodesBody = 32 << 20

func (h *Hub) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	nodes := h.Nodes()
	if nodes == nil {
		nodes = []cluster.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *Hub) handlePutNodes(w http.ResponseWriter, r *http.Request) {
	records, err := telemetry.DecodeRecords(http.MaxBytesReader(w, r.Body, maxNodesBody))
	if err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	nodes, stats := telemetry.Normalize(records, h.Locator, h.Filter)
	if err := h.SetNodes(r.Context(), nodes, snapshots.SourceAPI, stats.Total-stats.Kept); err != nil {
		log.Printf("mapview: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": h.Index().Generation(),
		"stats":      stats,
	})
}

func (h *Hub) handleIndexInfo(w http.ResponseWriter, r *http.Request) {
	idx := h.Index()
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": idx.Generation(),
		"strategy":   idx.Strategy(),
		"nodes":      idx.Len(),
		"policy":     idx.Policy(),
		"sessions":   h.SessionCount(),
	})
}

func (h *Hub) handlePoints(w http.ResponseWriter, r *http.Request) {
	vp, err := parseViewport(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.Frame(vp))
}

func (h *Hub) handleExpand(w http.ResponseWriter, r *http.Request) {
	handle, err := cluster.ParseHandle(chi.URLParam(r, "handle"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	zoom, err := optionalFloat(r.URL.Query(), "zoom", float64(handle.Zoom))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	exp, ok := h.Expand(handle, zoom)
	if !ok {
		http.Error(w, "cluster not found or stale", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *Hub) handleLeaves(w http.ResponseWriter, r *http.Request) {
	handle, err := cluster.ParseHandle(chi.URLParam(r, "handle"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	leaves, ok := h.Index().Leaves(handle)
	if !ok {
		http.Error(w, "cluster not found or stale", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, leaves)
}

// parseViewport reads zoom, altitude, lat, lng, width, height and the
// optional north/south/east/west bounds. Bounds are used only when all four
// are present.
func parseViewport(q url.Values) (viewport.Viewport, error) {
	var vp viewport.Viewport
	var err error
	fields := []struct {
		key string
		dst *float64
	}{
		{"zoom", &vp.Zoom},
		{"altitude", &vp.Altitude},
		{"lat", &vp.CenterLat},
		{"lng", &vp.CenterLng},
	}
	for _, f := range fields {
		if *f.dst, err = optionalFloat(q, f.key, 0); err != nil {
			return vp, err
		}
	}
	for key, dst := range map[string]*int{"width": &vp.Width, "height": &vp.Height} {
		if v := q.Get(key); v != "" {
			if *dst, err = strconv.Atoi(v); err != nil {
				return vp, fmt.Errorf("invalid %s: %q", key, v)
			}
		}
	}

	if q.Get("north") == "" && q.Get("south") == "" && q.Get("east") == "" && q.Get("west") == "" {
		return vp, nil
	}
	var b geo.BoundingBox
	for key, dst := range map[string]*float64{"north": &b.MaxLat, "south": &b.MinLat, "east": &b.MaxLng, "west": &b.MinLng} {
		v := q.Get(key)
		if v == "" {
			return vp, fmt.Errorf("bounds need north, south, east and west")
		}
		if *dst, err = strconv.ParseFloat(v, 64); err != nil {
			return vp, fmt.Errorf("invalid %s: %q", key, v)
		}
	}
	vp.Bounds = b
	return vp, nil
}

func optionalFloat(q url.Values, key string, def float64) (float64, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
