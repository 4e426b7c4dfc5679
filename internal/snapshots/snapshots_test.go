package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/db"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewStore(d)
}

func sampleNodes() []cluster.Node {
	return []cluster.Node{
		{ID: "b", Lat: 52.52, Lng: 13.40, Health: 60, Meta: map[string]any{"version": "1.2.0"}},
		{ID: "a", Lat: 48.85, Lng: 2.35, Health: 80},
	}
}

func TestSaveAndLatest(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest on empty store: err = %v, want ErrNotFound", err)
	}

	snap := &Snapshot{Source: SourceAPI, DroppedCount: 3}
	if err := store.Save(ctx, snap, sampleNodes()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if snap.ID == "" || snap.NodeCount != 2 || snap.AvgHealth != 70 {
		t.Errorf("summary not filled in: %+v", snap)
	}

	got, nodes, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.ID != snap.ID || got.Source != SourceAPI || got.DroppedCount != 3 {
		t.Errorf("Latest = %+v", got)
	}
	if len(nodes) != 2 || nodes[0].ID != "a" || nodes[1].Meta["version"] != "1.2.0" {
		t.Errorf("nodes = %+v", nodes)
	}
	if nodes[0].Meta != nil {
		t.Errorf("empty meta should round trip as nil, got %v", nodes[0].Meta)
	}
}

func TestListAndPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		snap := &Snapshot{}
		if err := store.Save(ctx, snap, sampleNodes()[:1]); err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, snap.ID)
	}

	list, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 4 || list[0].ID != ids[3] {
		t.Fatalf("List order wrong: %+v", list)
	}
	if limited, _ := store.List(ctx, 2); len(limited) != 2 {
		t.Errorf("limit ignored: %d", len(limited))
	}

	removed, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d, want 2", removed)
	}
	if _, err := store.Get(ctx, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest snapshot survived pruning: %v", err)
	}
	nodes, err := store.Nodes(ctx, ids[0])
	if err != nil || len(nodes) != 0 {
		t.Errorf("pruned snapshot nodes = %v, err = %v", nodes, err)
	}
}

func TestRoutes(t *testing.T) {
	store := setupTestStore(t)
	snap := &Snapshot{}
	if err := store.Save(context.Background(), snap, sampleNodes()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := chi.NewRouter()
	RegisterRoutes(r, store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list []Snapshot
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil || len(list) != 1 {
		t.Fatalf("list = %v, err = %v", list, err)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots/"+snap.ID+"/nodes", nil))
	var nodes []cluster.Node
	if err := json.NewDecoder(w.Body).Decode(&nodes); err != nil || len(nodes) != 2 {
		t.Fatalf("nodes = %v, err = %v", nodes, err)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing snapshot status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots?limit=x", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}
