package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/nodemap/internal/cluster"
)

type fakeLocator map[string][2]float64

func (f fakeLocator) Locate(addr string) (float64, float64, bool) {
	c, ok := f[addr]
	return c[0], c[1], ok
}

func TestDecodeRecords(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"array", `[{"id":"a"},{"id":"b"}]`, 2, false},
		{"wrapped nodes", `{"nodes":[{"id":"a"}],"count":1}`, 1, false},
		{"wrapped data", `{"data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`, 3, false},
		{"empty array", `[]`, 0, false},
		{"object without list", `{"status":"ok"}`, 0, true},
		{"garbage", `not json`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRecords(strings.NewReader(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	records := []Record{
		{"id": "n1", "lat": 48.85, "lng": 2.35, "health": 91.0, "version": "1.4.2"},
		{"address": "203.0.113.7:7777", "latitude": "52.52", "longitude": "13.40", "health_score": 140.0},
		{"node_id": "n3", "location": map[string]any{"lat": -33.87, "lon": 151.21}},
		{"id": "n4", "address": "198.51.100.1"},
		{"id": "n5", "address": "192.0.2.1"},
		{"id": "n1", "lat": 10.0, "lng": 10.0},
		{"lat": 1.0, "lng": 1.0},
		{"id": "n6", "lat": 95.0, "lng": 10.0},
		{"id": "n7", "lat": 0.0, "lng": 0.0},
	}
	locator := fakeLocator{"198.51.100.1": {40.71, -74.0}}
	nodes, stats := Normalize(records, locator, nil)

	byID := make(map[string]cluster.Node)
	for _, n := range nodes {
		byID[n.ID] = n
	}
	if len(nodes) != 5 {
		t.Fatalf("kept %d nodes (%v), want 5", len(nodes), byID)
	}
	if n := byID["n1"]; n.Lat != 48.85 || n.Health != 91 || n.Meta["version"] != "1.4.2" {
		t.Errorf("n1 = %+v", n)
	}
	if n := byID["203.0.113.7:7777"]; n.Lat != 52.52 || n.Lng != 13.40 || n.Health != 100 {
		t.Errorf("string coordinates or health clamp wrong: %+v", n)
	}
	if n := byID["n3"]; n.Lat != -33.87 || n.Lng != 151.21 {
		t.Errorf("nested location not read: %+v", n)
	}
	if n := byID["n4"]; n.Lat != 40.71 || n.Lng != -74.0 {
		t.Errorf("geolocation not applied: %+v", n)
	}
	if n, ok := byID["n7"]; !ok || n.Lat != 0 || n.Lng != 0 {
		t.Errorf("explicit (0, 0) dropped: %+v", n)
	}

	want := Stats{Total: 9, Kept: 5, Geolocated: 1, NoID: 1, NoCoords: 2, Duplicates: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestNormalizeNullIsland(t *testing.T) {
	var records []Record
	for i := 0; i < 5; i++ {
		records = append(records, Record{"id": fmt.Sprintf("gulf-%d", i), "lat": 0.0, "lng": 0.0})
	}
	records = append(records,
		Record{"id": "null-lat", "lat": nil, "lng": 0.0},
		Record{"id": "no-lng", "lat": 0.0},
	)
	nodes, stats := Normalize(records, nil, nil)
	if len(nodes) != 5 {
		t.Fatalf("kept %d nodes at (0, 0), want 5", len(nodes))
	}
	if stats.NoCoords != 2 {
		t.Errorf("NoCoords = %d, want 2 for null and absent keys", stats.NoCoords)
	}
}

func TestNormalizeWithoutLocatorDropsCoordinateless(t *testing.T) {
	nodes, stats := Normalize([]Record{{"id": "x", "address": "198.51.100.1"}}, nil, nil)
	if len(nodes) != 0 || stats.NoCoords != 1 {
		t.Errorf("nodes = %v stats = %+v", nodes, stats)
	}
}

func TestFilter(t *testing.T) {
	f := NewFilter([]string{"eu/**", "10.0.*"}, []string{"**/canary-*"})
	tests := map[string]bool{
		"eu/fra/node-1":      true,
		"eu/fra/canary-1":    false,
		"us/nyc/node-2":      false,
		"10.0.3":             true,
		"EU/AMS/node-9":      true,
		"10.1.3":             false,
		"eu/ams/canary-node": false,
	}
	for id, want := range tests {
		if got := f.Allows(id); got != want {
			t.Errorf("Allows(%q) = %v, want %v", id, got, want)
		}
	}
	if NewFilter(nil, nil) != nil {
		t.Error("empty filter should be nil")
	}
	var none *Filter
	if !none.Allows("anything") {
		t.Error("nil filter must allow everything")
	}
	if err := NewFilter([]string{"eu/[a-"}, nil).Validate(); err == nil {
		t.Error("expected error for malformed pattern")
	}

	nodes, stats := Normalize([]Record{
		{"id": "eu/fra/node-1", "lat": 50.1, "lng": 8.7},
		{"id": "us/nyc/node-2", "lat": 40.7, "lng": -74.0},
	}, nil, f)
	if len(nodes) != 1 || stats.Filtered != 1 {
		t.Errorf("filter not applied: %v %+v", nodes, stats)
	}
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"nodes":[{"id":"a","lat":1.5,"lng":2.5}]}`))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, "secret", time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 || records[0]["id"] != "a" {
		t.Errorf("records = %v", records)
	}

	_, err = NewClient(srv.URL, "wrong", time.Second).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 error, got %v", err)
	}
}

type staticSource struct {
	records []Record
	err     error
}

func (s *staticSource) Fetch(context.Context) ([]Record, error) { return s.records, s.err }

func TestPollerOnlyReportsChanges(t *testing.T) {
	src := &staticSource{records: []Record{
		{"id": "b", "lat": 1.0, "lng": 1.0},
		{"id": "a", "lat": 2.0, "lng": 2.0},
	}}
	var calls int
	var got []cluster.Node
	p := &Poller{Source: src, OnNodes: func(nodes []cluster.Node, _ Stats) {
		calls++
		got = nodes
	}}

	ctx := context.Background()
	if changed, err := p.Poll(ctx); err != nil || !changed {
		t.Fatalf("first poll: changed=%v err=%v", changed, err)
	}
	if got[0].ID != "a" {
		t.Errorf("nodes not sorted by ID: %v", got)
	}
	if changed, _ := p.Poll(ctx); changed {
		t.Error("unchanged node set reported as changed")
	}

	src.err = context.DeadlineExceeded
	if _, err := p.Poll(ctx); err == nil {
		t.Error("expected fetch error")
	}
	src.err = nil
	src.records = append(src.records, Record{"id": "c", "lat": 3.0, "lng": 3.0})
	if changed, _ := p.Poll(ctx); !changed {
		t.Error("new node not reported")
	}
	if calls != 2 || len(got) != 3 {
		t.Errorf("calls = %d, nodes = %d", calls, len(got))
	}
}

func TestOpenGeoIPMissingFile(t *testing.T) {
	if _, err := OpenGeoIP(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("expected error for missing database")
	}
}
