// Package mapview serves clustered map frames to renderers over REST and
// WebSocket. One Hub owns the current node set and its index; every live
// session gets its own viewport controller sharing that index.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/metrics"
	"github.com/ziadkadry99/nodemap/internal/snapshots"
	"github.com/ziadkadry99/nodemap/internal/telemetry"
	"github.com/ziadkadry99/nodemap/internal/viewport"
)

// Hub builds one index per node-set change and fans it out to sessions.
type Hub struct {
	cfg   viewport.Config
	store *snapshots.Store

	// KeepSnapshots bounds snapshot history; zero keeps everything.
	KeepSnapshots int
	// Locator and Filter apply to node sets pushed through PUT /api/nodes.
	Locator telemetry.Geolocator
	Filter  *telemetry.Filter

	swapMu sync.Mutex // serializes rebuilds so sessions see them in order

	mu       sync.RWMutex
	nodes    []cluster.Node
	index    cluster.Index
	sessions map[string]*session
}

// NewHub creates a hub. store may be nil to disable persistence.
func NewHub(cfg viewport.Config, store *snapshots.Store) *Hub {
	return &Hub{
		cfg:      cfg,
		store:    store,
		index:    cluster.Build(nil, cfg.Options),
		sessions: make(map[string]*session),
	}
}

// RegisterRoutes mounts the map endpoints on the given router.
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/api/nodes", h.handleGetNodes)
	r.Put("/api/nodes", h.handlePutNodes)
	r.Get("/api/map/index", h.handleIndexInfo)
	r.Get("/api/map/points", h.handlePoints)
	r.Get("/api/map/clusters/{handle}/expand", h.handleExpand)
	r.Get("/api/map/clusters/{handle}/leaves", h.handleLeaves)
	r.Get("/ws/map", h.handleWebSocket)
}

// SetNodes replaces the node set, rebuilds the index, notifies sessions and
// stores a snapshot. The index is swapped even when persisting fails.
func (h *Hub) SetNodes(ctx context.Context, nodes []cluster.Node, source string, dropped int) error {
	sorted := h.swap(nodes)
	if h.store == nil {
		return nil
	}
	snap := &snapshots.Snapshot{Source: source, DroppedCount: dropped}
	if err := h.store.Save(ctx, snap, sorted); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	if h.KeepSnapshots > 0 {
		if _, err := h.store.Prune(ctx, h.KeepSnapshots); err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
	}
	return nil
}

// WarmStart loads the newest stored snapshot, if any. It reports whether a
// snapshot was loaded.
func (h *Hub) WarmStart(ctx context.Context) (bool, error) {
	if h.store == nil {
		return false, nil
	}
	snap, nodes, err := h.store.Latest(ctx)
	if errors.Is(err, snapshots.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	h.swap(nodes)
	log.Printf("mapview: warm start from snapshot %s (%d nodes)", snap.ID, len(nodes))
	return true, nil
}

func (h *Hub) swap(nodes []cluster.Node) []cluster.Node {
	h.swapMu.Lock()
	defer h.swapMu.Unlock()

	sorted := cluster.SortNodes(nodes)
	idx := viewport.BuildIndex(sorted, h.cfg.Options)

	h.mu.Lock()
	h.nodes = sorted
	h.index = idx
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	metrics.Nodes.Set(float64(len(sorted)))
	for _, s := range sessions {
		s.ctrl.OnIndexChanged(idx)
	}
	return sorted
}

// Nodes returns the current node set.
func (h *Hub) Nodes() []cluster.Node {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nodes
}

// Index returns the current index.
func (h *Hub) Index() cluster.Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index
}

// Frame computes a frame for vp against the current index.
func (h *Hub) Frame(vp viewport.Viewport) viewport.Frame {
	ctrl := viewport.New(h.cfg, nil)
	ctrl.OnIndexChanged(h.Index())
	defer ctrl.Close()
	frame, _ := ctrl.Recompute(vp)
	return frame
}

// Expand resolves a cluster handle at the given zoom.
func (h *Hub) Expand(handle cluster.Handle, zoom float64) (cluster.Expansion, bool) {
	exp, ok := h.cfg.Resolver.Expand(h.Index(), handle, zoom)
	if ok {
		metrics.ExpansionsTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.ExpansionsTotal.WithLabelValues("stale").Inc()
	}
	return exp, ok
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// addSession registers s and hands it the current index under the same
// lock swap uses, so a concurrent rebuild cannot be missed.
func (h *Hub) addSession(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	s.ctrl.OnIndexChanged(h.index)
	metrics.ActiveSessions.Inc()
}

func (h *Hub) removeSession(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.id]; ok {
		delete(h.sessions, s.id)
		metrics.ActiveSessions.Dec()
	}
}
