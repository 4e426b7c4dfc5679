package geo

import (
	"fmt"
	"math"
)

// Documented zoom range. Values outside it are clamped, never rejected.
const (
	MinZoom = 0
	MaxZoom = 20
)

// Bracket is one step of the zoom policy: it applies to zoom levels below
// BelowZoom that were not claimed by an earlier bracket.
type Bracket struct {
	BelowZoom int     `yaml:"below_zoom" koanf:"below_zoom" json:"below_zoom"`
	RadiusKm  float64 `yaml:"radius_km" koanf:"radius_km" json:"radius_km"`
	Precision int     `yaml:"precision" koanf:"precision" json:"precision"`
}

// Policy maps a viewport zoom to a clustering radius and a coordinate
// rounding precision.
//
// Zoom levels past the last bracket use CityRadiusKm/CityPrecision up to
// MaxClusterZoom. Above MaxClusterZoom clustering is disabled: the radius is
// zero and every node is rendered on its own.
type Policy struct {
	Brackets       []Bracket `yaml:"brackets" koanf:"brackets" json:"brackets"`
	CityRadiusKm   float64   `yaml:"city_radius_km" koanf:"city_radius_km" json:"city_radius_km"`
	CityPrecision  int       `yaml:"city_precision" koanf:"city_precision" json:"city_precision"`
	MaxClusterZoom int       `yaml:"max_cluster_zoom" koanf:"max_cluster_zoom" json:"max_cluster_zoom"`
	FinePrecision  int       `yaml:"fine_precision" koanf:"fine_precision" json:"fine_precision"`
}

// DefaultPolicy returns the continental → regional → country → city steps.
func DefaultPolicy() Policy {
	return Policy{
		Brackets: []Bracket{
			{BelowZoom: 3, RadiusKm: 1500, Precision: 1},
			{BelowZoom: 5, RadiusKm: 300, Precision: 2},
			{BelowZoom: 7, RadiusKm: 100, Precision: 2},
		},
		CityRadiusKm:   30,
		CityPrecision:  3,
		MaxClusterZoom: 16,
		FinePrecision:  4,
	}
}

// Validate checks that the brackets are ordered and the radii never grow
// with zoom.
func (p Policy) Validate() error {
	if p.MaxClusterZoom < MinZoom || p.MaxClusterZoom >= MaxZoom {
		return fmt.Errorf("max_cluster_zoom must be in [%d, %d)", MinZoom, MaxZoom)
	}
	prevZoom := MinZoom
	prevRadius := math.Inf(1)
	for i, b := range p.Brackets {
		if b.BelowZoom <= prevZoom && i > 0 {
			return fmt.Errorf("bracket %d: below_zoom %d is not increasing", i, b.BelowZoom)
		}
		if b.BelowZoom > p.MaxClusterZoom+1 {
			return fmt.Errorf("bracket %d: below_zoom %d exceeds max_cluster_zoom", i, b.BelowZoom)
		}
		if b.RadiusKm <= 0 || b.RadiusKm > prevRadius {
			return fmt.Errorf("bracket %d: radius_km %.1f must be positive and non-increasing", i, b.RadiusKm)
		}
		if b.Precision < 0 || b.Precision > 8 {
			return fmt.Errorf("bracket %d: precision %d out of range", i, b.Precision)
		}
		prevZoom, prevRadius = b.BelowZoom, b.RadiusKm
	}
	if p.CityRadiusKm <= 0 || p.CityRadiusKm > prevRadius {
		return fmt.Errorf("city_radius_km %.1f must be positive and not larger than the last bracket", p.CityRadiusKm)
	}
	if p.CityPrecision < 0 || p.FinePrecision < p.CityPrecision || p.FinePrecision > 8 {
		return fmt.Errorf("precisions must satisfy 0 <= city_precision <= fine_precision <= 8")
	}
	return nil
}

// ClampZoom limits zoom to the documented range. NaN maps to MinZoom.
func ClampZoom(zoom float64) float64 {
	if math.IsNaN(zoom) || zoom < MinZoom {
		return MinZoom
	}
	if zoom > MaxZoom {
		return MaxZoom
	}
	return zoom
}

// LeafLevel is the first level at which every node is its own feature.
func (p Policy) LeafLevel() int {
	return p.MaxClusterZoom + 1
}

// LevelForZoom floors zoom to the integer level used by the indexes,
// clamped to [MinZoom, LeafLevel].
func (p Policy) LevelForZoom(zoom float64) int {
	level := int(math.Floor(ClampZoom(zoom)))
	if level > p.LeafLevel() {
		return p.LeafLevel()
	}
	return level
}

// RadiusForZoom returns the clustering radius in kilometres.
func (p Policy) RadiusForZoom(zoom float64) float64 {
	level := int(math.Floor(ClampZoom(zoom)))
	if level > p.MaxClusterZoom {
		return 0
	}
	for _, b := range p.Brackets {
		if level < b.BelowZoom {
			return b.RadiusKm
		}
	}
	return p.CityRadiusKm
}

// PrecisionForZoom returns the number of decimal digits coordinates are
// rounded to when pre-bucketing. It is a grouping key only, never the
// clustering decision.
func (p Policy) PrecisionForZoom(zoom float64) int {
	level := int(math.Floor(ClampZoom(zoom)))
	if level > p.MaxClusterZoom {
		return p.FinePrecision
	}
	for _, b := range p.Brackets {
		if level < b.BelowZoom {
			return b.Precision
		}
	}
	return p.CityPrecision
}

// altitudeAtZoomZero is the globe camera altitude, in Earth radii, that
// corresponds to zoom 0.
const altitudeAtZoomZero = 4.0

// AltitudeToZoom converts a globe camera altitude (in Earth radii) to a
// zoom level: zoom = log2(4 / altitude), clamped. Lower altitude means a
// higher zoom.
func AltitudeToZoom(altitude float64) float64 {
	if altitude <= 0 || math.IsNaN(altitude) {
		return MaxZoom
	}
	return ClampZoom(math.Log2(altitudeAtZoomZero / altitude))
}

// ZoomToAltitude is the inverse of AltitudeToZoom.
func ZoomToAltitude(zoom float64) float64 {
	return altitudeAtZoomZero / math.Exp2(ClampZoom(zoom))
}
