package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/snapshots"
	"github.com/ziadkadry99/nodemap/internal/telemetry"
)

var (
	nodesJSON   bool
	nodesImport bool
	nodesFile   string
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Fetch and print the current node list",
	Long: `Fetches the node list once from the configured telemetry endpoint (or
reads it from --file), normalizes it the way the server does and prints it.
With --import the result is stored as a snapshot the server warm starts from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var records []telemetry.Record
		switch {
		case nodesFile != "":
			f, err := os.Open(nodesFile)
			if err != nil {
				return fmt.Errorf("opening %s: %w", nodesFile, err)
			}
			defer f.Close()
			if records, err = telemetry.DecodeRecords(f); err != nil {
				return fmt.Errorf("decoding %s: %w", nodesFile, err)
			}
		case cfg.Telemetry.URL != "":
			if records, err = newTelemetryClient(cfg).Fetch(ctx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("no telemetry.url configured; pass --file to read a node list from disk")
		}

		locator, closeLocator, err := openLocator(cfg)
		if err != nil {
			return err
		}
		defer closeLocator()

		nodes, stats := telemetry.Normalize(records, locator, cfg.NodeFilter())
		nodes = cluster.SortNodes(nodes)

		if nodesImport {
			database, store, err := openStore(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("--import needs database.path to be set")
			}
			defer database.Close()
			snap := &snapshots.Snapshot{Source: snapshots.SourceImport, DroppedCount: stats.Total - stats.Kept}
			if err := store.Save(ctx, snap, nodes); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Stored snapshot %s\n", snap.ID)
		}

		if nodesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(nodes)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLAT\tLNG\tHEALTH")
		for _, n := range nodes {
			fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.0f\n", n.ID, n.Lat, n.Lng, n.Health)
		}
		w.Flush()

		fmt.Fprintf(os.Stderr, "\n%d records, %d kept (%d geolocated), dropped: %d without id, %d without coordinates, %d filtered, %d duplicates\n",
			stats.Total, stats.Kept, stats.Geolocated, stats.NoID, stats.NoCoords, stats.Filtered, stats.Duplicates)
		return nil
	},
}

func init() {
	nodesCmd.Flags().BoolVar(&nodesJSON, "json", false, "Print nodes as JSON")
	nodesCmd.Flags().BoolVar(&nodesImport, "import", false, "Store the node list as a snapshot")
	nodesCmd.Flags().StringVar(&nodesFile, "file", "", "Read the node list from a JSON file instead of the telemetry endpoint")
	rootCmd.AddCommand(nodesCmd)
}
