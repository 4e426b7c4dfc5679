package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/spread"
	"github.com/ziadkadry99/nodemap/internal/telemetry"
	"github.com/ziadkadry99/nodemap/internal/viewport"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (NODEMAP_*). Nested keys use a double
// underscore: NODEMAP_TELEMETRY__URL -> telemetry.url.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("NODEMAP_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "NODEMAP_"))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RequestTimeoutS < 0 {
		return fmt.Errorf("server.request_timeout_s must be non-negative")
	}

	if c.Telemetry.URL != "" {
		if !strings.HasPrefix(c.Telemetry.URL, "http://") && !strings.HasPrefix(c.Telemetry.URL, "https://") {
			return fmt.Errorf("telemetry.url must be an http(s) URL, got %q", c.Telemetry.URL)
		}
		if c.Telemetry.IntervalS <= 0 {
			return fmt.Errorf("telemetry.interval_s must be positive")
		}
	}
	if c.Telemetry.TimeoutS < 0 {
		return fmt.Errorf("telemetry.timeout_s must be non-negative")
	}
	if err := c.NodeFilter().Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	if _, err := cluster.ParseStrategy(c.Clustering.Strategy); err != nil {
		return fmt.Errorf("clustering.strategy: %w", err)
	}
	if c.Clustering.FlatThreshold < 0 {
		return fmt.Errorf("clustering.flat_threshold must be non-negative")
	}
	if c.Clustering.NodeSize < 0 {
		return fmt.Errorf("clustering.node_size must be non-negative")
	}
	if c.Clustering.MaxZoomStep < 1 {
		return fmt.Errorf("clustering.max_zoom_step must be at least 1")
	}
	if err := c.Clustering.Policy.Validate(); err != nil {
		return fmt.Errorf("clustering.policy: %w", err)
	}

	if c.Spread.BaseRadiusDeg <= 0 || c.Spread.MaxRadiusDeg < c.Spread.BaseRadiusDeg {
		return fmt.Errorf("spread radii must satisfy 0 < base_radius_deg <= max_radius_deg")
	}

	if c.Viewport.DebounceMs < 0 {
		return fmt.Errorf("viewport.debounce_ms must be non-negative")
	}
	if c.Viewport.PadRatio < 0 || c.Viewport.PadRatio > 1 {
		return fmt.Errorf("viewport.pad_ratio must be in [0, 1]")
	}

	if c.Snapshots.Keep < 0 {
		return fmt.Errorf("snapshots.keep must be non-negative")
	}

	return nil
}

// EngineConfig builds the viewport controller configuration. Call it on a
// validated Config.
func (c *Config) EngineConfig() viewport.Config {
	strategy, _ := cluster.ParseStrategy(c.Clustering.Strategy)
	opts := cluster.Options{
		Strategy:      strategy,
		FlatThreshold: c.Clustering.FlatThreshold,
		NodeSize:      c.Clustering.NodeSize,
		Policy:        c.Clustering.Policy,
	}
	sp := spread.New(opts.Policy)
	sp.BaseRadiusDeg = c.Spread.BaseRadiusDeg
	sp.MaxRadiusDeg = c.Spread.MaxRadiusDeg
	sp.ConnectorMinZoom = c.Spread.ConnectorMinZoom

	return viewport.Config{
		Debounce: time.Duration(c.Viewport.DebounceMs) * time.Millisecond,
		Options:  opts,
		Spreader: sp,
		Resolver: cluster.Resolver{MaxZoomStep: c.Clustering.MaxZoomStep},
		PadRatio: c.Viewport.PadRatio,
	}
}

// NodeFilter returns the include/exclude filter, or nil when no patterns
// are configured.
func (c *Config) NodeFilter() *telemetry.Filter {
	return telemetry.NewFilter(c.Telemetry.Include, c.Telemetry.Exclude)
}

// Interval returns the telemetry polling interval.
func (t TelemetryConfig) Interval() time.Duration {
	return time.Duration(t.IntervalS) * time.Second
}

// Timeout returns the telemetry request timeout.
func (t TelemetryConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutS) * time.Second
}
