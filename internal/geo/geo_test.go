package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
		tol                    float64
	}{
		{"same point", 10, 10, 10, 10, 0, 1e-9},
		{"one degree of latitude", 0, 0, 1, 0, 111.195, 0.01},
		{"one degree of longitude at equator", 0, 0, 0, 1, 111.195, 0.01},
		{"paris to london", 48.8566, 2.3522, 51.5074, -0.1278, 343.5, 1.0},
		{"antipodes", 0, 0, 0, 180, math.Pi * EarthRadiusKm, 1e-6},
		{"across antimeridian", 0, 179.5, 0, -179.5, 111.195, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("Distance = %.4f, want %.4f ± %.4f", got, tt.want, tt.tol)
			}
			back := Distance(tt.lat2, tt.lng2, tt.lat1, tt.lng1)
			if math.Abs(got-back) > 1e-9 {
				t.Errorf("Distance is not symmetric: %.9f vs %.9f", got, back)
			}
		})
	}
}

func TestSearchBoundsContainsRadius(t *testing.T) {
	centers := [][2]float64{{0, 0}, {45, 10}, {60, 179}, {-70, -170}, {85, 0}}
	for _, c := range centers {
		for _, r := range []float64{1, 30, 300, 1500} {
			box := SearchBounds(c[0], c[1], r)
			// Walk the circle and make sure every point lands inside the box.
			for deg := 0.0; deg < 360; deg += 15 {
				lat, lng := destination(c[0], c[1], deg, r*0.999)
				if !box.Contains(lat, lng) {
					t.Errorf("center %v radius %.0f: point (%.4f,%.4f) at bearing %.0f outside %+v", c, r, lat, lng, deg, box)
				}
			}
		}
	}
}

// destination walks distKm from (lat, lng) along bearing (degrees).
func destination(lat, lng, bearing, distKm float64) (float64, float64) {
	d := distKm / EarthRadiusKm
	b := bearing * degToRad
	lat1 := lat * degToRad
	lng1 := lng * degToRad
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(b))
	lng2 := lng1 + math.Atan2(math.Sin(b)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return lat2 / degToRad, WrapLng(lng2 / degToRad)
}

func TestWrapLng(t *testing.T) {
	tests := map[float64]float64{0: 0, 180: -180, -180: -180, 190: -170, -190: 170, 540: -180, 359: -1}
	for in, want := range tests {
		if got := WrapLng(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("WrapLng(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestBoundingBoxContains(t *testing.T) {
	box := BoundingBox{MinLat: -10, MinLng: -20, MaxLat: 10, MaxLng: 20}
	if !box.Contains(0, 0) {
		t.Error("expected (0,0) inside")
	}
	if box.Contains(0, 30) {
		t.Error("expected (0,30) outside")
	}

	wrap := BoundingBox{MinLat: -10, MinLng: 170, MaxLat: 10, MaxLng: -170}
	if !wrap.CrossesAntimeridian() {
		t.Fatal("expected box to cross the antimeridian")
	}
	for _, lng := range []float64{175, 180, -180, -175} {
		if !wrap.Contains(0, lng) {
			t.Errorf("expected lng %v inside wrapped box", lng)
		}
	}
	if wrap.Contains(0, 0) {
		t.Error("expected lng 0 outside wrapped box")
	}

	if !World().Contains(89.9, -179.9) {
		t.Error("world must contain every coordinate")
	}
}

func TestBoundingBoxSplitAndIntersects(t *testing.T) {
	wrap := BoundingBox{MinLat: -10, MinLng: 170, MaxLat: 10, MaxLng: -170}
	parts := wrap.Split()
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].MaxLng != 180 || parts[1].MinLng != -180 {
		t.Errorf("unexpected split: %+v", parts)
	}

	east := BoundingBox{MinLat: -5, MinLng: 175, MaxLat: 5, MaxLng: 179}
	if !wrap.Intersects(east) {
		t.Error("expected wrapped box to intersect box near +180")
	}
	west := BoundingBox{MinLat: -5, MinLng: 0, MaxLat: 5, MaxLng: 10}
	if wrap.Intersects(west) {
		t.Error("expected no intersection with box at lng 0..10")
	}
}

func TestBoundingBoxNormalizeAndPad(t *testing.T) {
	b := BoundingBox{MinLat: 95, MinLng: -200, MaxLat: -95, MaxLng: 200}.Normalize()
	if b != World() {
		t.Errorf("Normalize = %+v, want world", b)
	}

	p := BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 10, MaxLng: 10}.Pad(0.5)
	want := BoundingBox{MinLat: -5, MinLng: -5, MaxLat: 15, MaxLng: 15}
	if p != want {
		t.Errorf("Pad = %+v, want %+v", p, want)
	}

	full := BoundingBox{MinLat: 0, MinLng: -150, MaxLat: 10, MaxLng: 150}.Pad(0.5)
	if full.MinLng != -180 || full.MaxLng != 180 {
		t.Errorf("expected full longitude range, got %+v", full)
	}
}

func TestBoundsAround(t *testing.T) {
	b := BoundsAround(0, 0, 0, 1024, 768)
	if b.MinLng != -180 || b.MaxLng != 180 {
		t.Errorf("zoom 0 should span the globe, got %+v", b)
	}
	b = BoundsAround(10, 20, 10, 512, 512)
	if !b.Contains(10, 20) {
		t.Errorf("box %+v must contain its centre", b)
	}
	if b.MaxLng-b.MinLng > 1 {
		t.Errorf("zoom 10 box too wide: %+v", b)
	}
}

func TestRadiusForZoomIsMonotonic(t *testing.T) {
	p := DefaultPolicy()
	prev := math.Inf(1)
	for z := -5.0; z <= 25; z += 0.25 {
		r := p.RadiusForZoom(z)
		if r > prev {
			t.Fatalf("RadiusForZoom(%v) = %v grew from %v", z, r, prev)
		}
		prev = r
	}
}

func TestRadiusForZoomBrackets(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		zoom      float64
		radius    float64
		precision int
	}{
		{-3, 1500, 1},
		{0, 1500, 1},
		{2.9, 1500, 1},
		{3, 300, 2},
		{5, 100, 2},
		{7, 30, 3},
		{16, 30, 3},
		{16.9, 30, 3},
		{17, 0, 4},
		{99, 0, 4},
		{math.NaN(), 1500, 1},
	}
	for _, tt := range tests {
		if got := p.RadiusForZoom(tt.zoom); got != tt.radius {
			t.Errorf("RadiusForZoom(%v) = %v, want %v", tt.zoom, got, tt.radius)
		}
		if got := p.PrecisionForZoom(tt.zoom); got != tt.precision {
			t.Errorf("PrecisionForZoom(%v) = %v, want %v", tt.zoom, got, tt.precision)
		}
	}
}

func TestLevelForZoom(t *testing.T) {
	p := DefaultPolicy()
	if got := p.LevelForZoom(4.7); got != 4 {
		t.Errorf("LevelForZoom(4.7) = %d, want 4", got)
	}
	if got := p.LevelForZoom(20); got != p.LeafLevel() {
		t.Errorf("LevelForZoom(20) = %d, want leaf level %d", got, p.LeafLevel())
	}
	if got := p.LevelForZoom(-1); got != 0 {
		t.Errorf("LevelForZoom(-1) = %d, want 0", got)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	growing := DefaultPolicy()
	growing.Brackets[1].RadiusKm = 5000
	if err := growing.Validate(); err == nil {
		t.Error("expected error for growing radius")
	}

	unordered := DefaultPolicy()
	unordered.Brackets[2].BelowZoom = 4
	if err := unordered.Validate(); err == nil {
		t.Error("expected error for unordered brackets")
	}

	badMax := DefaultPolicy()
	badMax.MaxClusterZoom = MaxZoom
	if err := badMax.Validate(); err == nil {
		t.Error("expected error for max_cluster_zoom at MaxZoom")
	}
}

func TestAltitudeZoomMapping(t *testing.T) {
	if got := AltitudeToZoom(4); got != 0 {
		t.Errorf("AltitudeToZoom(4) = %v, want 0", got)
	}
	if got := AltitudeToZoom(0.5); math.Abs(got-3) > 1e-9 {
		t.Errorf("AltitudeToZoom(0.5) = %v, want 3", got)
	}
	prev := math.Inf(-1)
	for alt := 10.0; alt > 0.0001; alt /= 1.5 {
		z := AltitudeToZoom(alt)
		if z < prev {
			t.Fatalf("zoom decreased as altitude dropped: %v < %v", z, prev)
		}
		prev = z
	}
	for _, z := range []float64{0, 2.5, 8, 15} {
		if back := AltitudeToZoom(ZoomToAltitude(z)); math.Abs(back-z) > 1e-9 {
			t.Errorf("round trip zoom %v -> %v", z, back)
		}
	}
}
