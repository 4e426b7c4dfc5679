package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/ziadkadry99/nodemap/internal/cluster"
)

// RunWizard runs an interactive configuration wizard and saves the result
// to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to nodemap! Let's configure your map service.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Telemetry source.
	urlPrompt := promptui.Prompt{
		Label:    "Telemetry URL (blank to accept pushes on PUT /api/nodes only)",
		Validate: validateURL,
	}
	url, err := urlPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("telemetry url: %w", err)
	}
	cfg.Telemetry.URL = strings.TrimSpace(url)

	if cfg.Telemetry.URL != "" {
		intervalPrompt := promptui.Prompt{
			Label:    "Polling interval in seconds",
			Default:  strconv.Itoa(cfg.Telemetry.IntervalS),
			Validate: validatePositiveInt,
		}
		interval, err := intervalPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("polling interval: %w", err)
		}
		cfg.Telemetry.IntervalS, _ = strconv.Atoi(interval)
	}

	// 2. GeoIP database.
	geoPrompt := promptui.Prompt{
		Label:   "GeoLite2/GeoIP2 City database (blank to drop nodes without coordinates)",
		Default: detectGeoIPDB(),
	}
	geoDB, err := geoPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("geoip database: %w", err)
	}
	cfg.Telemetry.GeoIPDB = strings.TrimSpace(geoDB)

	// 3. Clustering strategy.
	strategyPrompt := promptui.Select{
		Label: "Select clustering strategy",
		Items: []string{
			"auto         - flat for small networks, hierarchical above the threshold",
			"flat         - greedy proximity clustering per zoom",
			"hierarchical - prebuilt per-zoom index for large networks",
		},
	}
	strategyIdx, _, err := strategyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("strategy selection: %w", err)
	}
	strategies := []cluster.Strategy{cluster.StrategyAuto, cluster.StrategyFlat, cluster.StrategyHierarchical}
	cfg.Clustering.Strategy = string(strategies[strategyIdx])

	// 4. Listen port.
	portPrompt := promptui.Prompt{
		Label:    "HTTP port",
		Default:  strconv.Itoa(cfg.Server.Port),
		Validate: validatePositiveInt,
	}
	port, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(port)

	// 5. Node filters.
	excludePrompt := promptui.Prompt{
		Label: "Exclude node IDs matching (comma-separated globs, blank for none)",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	cfg.Telemetry.Exclude = splitAndTrim(excludeStr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Telemetry.URL != "" && os.Getenv("NODEMAP_TELEMETRY__TOKEN") == "" {
		fmt.Println("\nNote: set NODEMAP_TELEMETRY__TOKEN if the telemetry endpoint needs a bearer token.")
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// geoIPCandidates are common GeoLite2 install locations.
var geoIPCandidates = []string{
	"GeoLite2-City.mmdb",
	"/usr/share/GeoIP/GeoLite2-City.mmdb",
	"/var/lib/GeoIP/GeoLite2-City.mmdb",
}

func detectGeoIPDB() string {
	for _, p := range geoIPCandidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func validateURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return nil
	}
	return fmt.Errorf("must start with http:// or https://")
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
