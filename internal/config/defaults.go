package config

import (
	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/geo"
)

// DefaultConfigFile is the config path used when --config is not given.
const DefaultConfigFile = ".nodemap.yml"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	opts := cluster.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			RequestTimeoutS: 60,
		},
		Telemetry: TelemetryConfig{
			IntervalS: 60,
			TimeoutS:  15,
		},
		Clustering: ClusteringConfig{
			Strategy:      string(opts.Strategy),
			FlatThreshold: opts.FlatThreshold,
			NodeSize:      opts.NodeSize,
			MaxZoomStep:   cluster.DefaultMaxZoomStep,
			Policy:        geo.DefaultPolicy(),
		},
		Spread: SpreadConfig{
			BaseRadiusDeg:    0.01,
			MaxRadiusDeg:     1.0,
			ConnectorMinZoom: 12,
		},
		Viewport: ViewportConfig{
			DebounceMs: 50,
			PadRatio:   0.1,
		},
		Database: DatabaseConfig{
			Path: ".nodemap/nodemap.db",
		},
		Snapshots: SnapshotsConfig{
			Keep: 50,
		},
	}
}
