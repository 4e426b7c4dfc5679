package viewport

import (
	"fmt"
	"testing"
	"time"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/geo"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Debounce = 20 * time.Millisecond
	return cfg
}

func sampleNodes() []cluster.Node {
	var nodes []cluster.Node
	for i := 0; i < 12; i++ {
		nodes = append(nodes, cluster.Node{
			ID:     fmt.Sprintf("node-%02d", i),
			Lat:    48 + float64(i%4)*0.01,
			Lng:    2 + float64(i/4)*0.01,
			Health: 50,
		})
	}
	nodes = append(nodes, cluster.Node{ID: "far", Lat: -33.9, Lng: 151.2, Health: 90})
	return nodes
}

func collector() (func(Frame), chan Frame) {
	ch := make(chan Frame, 16)
	return func(f Frame) { ch <- f }, ch
}

func waitFrame(t *testing.T, ch chan Frame) Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func expectNoFrame(t *testing.T, ch chan Frame, wait time.Duration) {
	t.Helper()
	select {
	case f := <-ch:
		t.Fatalf("unexpected frame: seq %d zoom %v", f.Seq, f.Zoom)
	case <-time.After(wait):
	}
}

func TestDebounceCoalesces(t *testing.T) {
	publish, ch := collector()
	c := New(testConfig(), publish)
	defer c.Close()
	c.OnIndexChanged(cluster.Build(sampleNodes(), c.cfg.Options))

	for z := 1; z <= 10; z++ {
		c.OnViewportChanged(Viewport{Zoom: float64(z), Bounds: geo.World()})
	}
	f := waitFrame(t, ch)
	if f.Zoom != 10 {
		t.Errorf("published zoom %v, want the latest (10)", f.Zoom)
	}
	expectNoFrame(t, ch, 100*time.Millisecond)
}

func TestEmptyNodeSet(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Close()
	f, ok := c.Recompute(Viewport{Zoom: 3})
	if !ok || len(f.Points) != 0 || len(f.Connectors) != 0 {
		t.Errorf("no index: got %+v", f)
	}
	c.OnNodeSetChanged(nil)
	f, _ = c.Recompute(Viewport{Zoom: 3, Bounds: geo.World()})
	if f.Points == nil || len(f.Points) != 0 {
		t.Errorf("empty node set: points = %v", f.Points)
	}
}

func TestRecomputeProducesFrame(t *testing.T) {
	c := New(testConfig(), nil)
	defer c.Close()
	c.OnNodeSetChanged(sampleNodes())

	f, ok := c.Recompute(Viewport{Zoom: 2, Bounds: geo.World()})
	if !ok {
		t.Fatal("frame not published")
	}
	total := 0
	for _, p := range f.Points {
		total += p.Feature.Count
	}
	if total != len(sampleNodes()) {
		t.Errorf("frame covers %d nodes, want %d", total, len(sampleNodes()))
	}
	if f.Generation != c.Index().Generation() {
		t.Errorf("frame generation %d, index %d", f.Generation, c.Index().Generation())
	}
}

func TestAltitudeViewport(t *testing.T) {
	vp := Viewport{Altitude: 0.5}.Normalize()
	if vp.Zoom != 3 {
		t.Errorf("altitude 0.5 -> zoom %v, want 3", vp.Zoom)
	}
	if vp.Bounds.IsZero() {
		t.Error("bounds not derived")
	}
	if vp := (Viewport{Zoom: 42}).Normalize(); vp.Zoom != geo.MaxZoom {
		t.Errorf("zoom not clamped: %v", vp.Zoom)
	}
}

// blockingIndex holds Clusters until released so a newer input can
// arrive mid-computation.
type blockingIndex struct {
	cluster.Index
	entered chan struct{}
	release chan struct{}
}

func (b *blockingIndex) Clusters(bbox geo.BoundingBox, zoom float64) []cluster.Feature {
	b.entered <- struct{}{}
	<-b.release
	return b.Index.Clusters(bbox, zoom)
}

func TestSupersededFrameIsDropped(t *testing.T) {
	publish, ch := collector()
	c := New(testConfig(), publish)
	defer c.Close()

	blocking := &blockingIndex{
		Index:   cluster.Build(sampleNodes(), cluster.DefaultOptions()),
		entered: make(chan struct{}, 4),
		release: make(chan struct{}, 4),
	}
	c.OnIndexChanged(blocking)

	done := make(chan bool)
	go func() {
		_, ok := c.Recompute(Viewport{Zoom: 1, Bounds: geo.World()})
		done <- ok
	}()
	<-blocking.entered
	if c.State() != Recomputing {
		t.Errorf("state = %s, want recomputing", c.State())
	}

	c.OnViewportChanged(Viewport{Zoom: 9, Bounds: geo.World()})
	blocking.release <- struct{}{}
	if ok := <-done; ok {
		t.Error("superseded computation was published")
	}

	<-blocking.entered
	blocking.release <- struct{}{}
	f := waitFrame(t, ch)
	if f.Zoom != 9 {
		t.Errorf("published zoom %v, want 9", f.Zoom)
	}
	if c.State() != Idle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

func TestExpandClusterAppliesViewport(t *testing.T) {
	publish, ch := collector()
	c := New(testConfig(), publish)
	defer c.Close()
	c.OnNodeSetChanged(sampleNodes())

	f, _ := c.Recompute(Viewport{Zoom: 2, Bounds: geo.World()})
	<-ch
	var h cluster.Handle
	for _, p := range f.Points {
		if p.Feature.IsCluster() {
			h = p.Feature.Handle
		}
	}
	if h.IsZero() {
		t.Fatal("expected a cluster at zoom 2")
	}

	exp, ok := c.ExpandCluster(h)
	if !ok {
		t.Fatal("expand failed")
	}
	if exp.Zoom <= 2 {
		t.Errorf("target zoom %v not above 2", exp.Zoom)
	}
	next := waitFrame(t, ch)
	if next.Zoom != exp.Zoom {
		t.Errorf("next frame zoom %v, want %v", next.Zoom, exp.Zoom)
	}

	c.OnNodeSetChanged(sampleNodes())
	waitFrame(t, ch)
	if _, ok := c.ExpandCluster(h); ok {
		t.Error("stale handle expanded after rebuild")
	}
	expectNoFrame(t, ch, 80*time.Millisecond)
}
