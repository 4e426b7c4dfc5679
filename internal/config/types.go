package config

import "github.com/ziadkadry99/nodemap/internal/geo"

// Config is the top-level nodemap configuration, corresponding to .nodemap.yml.
type Config struct {
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" koanf:"telemetry"`
	Clustering ClusteringConfig `yaml:"clustering" koanf:"clustering"`
	Spread     SpreadConfig     `yaml:"spread" koanf:"spread"`
	Viewport   ViewportConfig   `yaml:"viewport" koanf:"viewport"`
	Database   DatabaseConfig   `yaml:"database" koanf:"database"`
	Snapshots  SnapshotsConfig  `yaml:"snapshots" koanf:"snapshots"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string `yaml:"host" koanf:"host"`
	Port            int    `yaml:"port" koanf:"port"`
	AllowAllOrigins bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeoutS int    `yaml:"request_timeout_s" koanf:"request_timeout_s"`
}

// TelemetryConfig describes the upstream node list. An empty URL disables
// polling; nodes can still be pushed through PUT /api/nodes.
type TelemetryConfig struct {
	URL       string   `yaml:"url" koanf:"url"`
	Token     string   `yaml:"token,omitempty" koanf:"token"`
	IntervalS int      `yaml:"interval_s" koanf:"interval_s"`
	TimeoutS  int      `yaml:"timeout_s" koanf:"timeout_s"`
	GeoIPDB   string   `yaml:"geoip_db" koanf:"geoip_db"`
	Include   []string `yaml:"include" koanf:"include"`
	Exclude   []string `yaml:"exclude" koanf:"exclude"`
}

// ClusteringConfig selects the clustering strategy and the zoom policy.
type ClusteringConfig struct {
	Strategy      string     `yaml:"strategy" koanf:"strategy"`
	FlatThreshold int        `yaml:"flat_threshold" koanf:"flat_threshold"`
	NodeSize      int        `yaml:"node_size" koanf:"node_size"`
	MaxZoomStep   int        `yaml:"max_zoom_step" koanf:"max_zoom_step"`
	Policy        geo.Policy `yaml:"policy" koanf:"policy"`
}

// SpreadConfig tunes co-location spreading.
type SpreadConfig struct {
	BaseRadiusDeg    float64 `yaml:"base_radius_deg" koanf:"base_radius_deg"`
	MaxRadiusDeg     float64 `yaml:"max_radius_deg" koanf:"max_radius_deg"`
	ConnectorMinZoom float64 `yaml:"connector_min_zoom" koanf:"connector_min_zoom"`
}

// ViewportConfig tunes per-session viewport controllers.
type ViewportConfig struct {
	DebounceMs int     `yaml:"debounce_ms" koanf:"debounce_ms"`
	PadRatio   float64 `yaml:"pad_ratio" koanf:"pad_ratio"`
}

// DatabaseConfig locates the SQLite snapshot database. An empty path
// disables persistence.
type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// SnapshotsConfig bounds snapshot history.
type SnapshotsConfig struct {
	Keep int `yaml:"keep" koanf:"keep"`
}
