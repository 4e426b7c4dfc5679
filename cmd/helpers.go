package cmd

import (
	"fmt"
	"os"

	"github.com/ziadkadry99/nodemap/internal/config"
	"github.com/ziadkadry99/nodemap/internal/db"
	"github.com/ziadkadry99/nodemap/internal/snapshots"
	"github.com/ziadkadry99/nodemap/internal/telemetry"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `nodemap init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// openLocator opens the configured GeoIP database. It returns a nil
// locator and a nil closer when none is configured.
func openLocator(cfg *config.Config) (telemetry.Geolocator, func(), error) {
	if cfg.Telemetry.GeoIPDB == "" {
		return nil, func() {}, nil
	}
	g, err := telemetry.OpenGeoIP(cfg.Telemetry.GeoIPDB)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "  GeoIP: %s\n", cfg.Telemetry.GeoIPDB)
	}
	return g, func() { g.Close() }, nil
}

// openStore opens the snapshot database. Both results are nil when
// persistence is disabled.
func openStore(cfg *config.Config) (*db.DB, *snapshots.Store, error) {
	if cfg.Database.Path == "" {
		return nil, nil, nil
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return database, snapshots.NewStore(database), nil
}

func newTelemetryClient(cfg *config.Config) *telemetry.Client {
	return telemetry.NewClient(cfg.Telemetry.URL, cfg.Telemetry.Token, cfg.Telemetry.Timeout())
}
