package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/mapview"
	"github.com/ziadkadry99/nodemap/internal/server"
	"github.com/ziadkadry99/nodemap/internal/snapshots"
	"github.com/ziadkadry99/nodemap/internal/telemetry"
)

var (
	servePort    int
	serveDevCORS bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the map server",
	Long: `Starts the nodemap server: polls telemetry (when configured), keeps the
clustered index current and serves map frames over REST and WebSocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		if serveDevCORS {
			cfg.Server.AllowAllOrigins = true
		}

		locator, closeLocator, err := openLocator(cfg)
		if err != nil {
			return err
		}
		defer closeLocator()

		database, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		if database != nil {
			defer database.Close()
		}

		hub := mapview.NewHub(cfg.EngineConfig(), store)
		hub.KeepSnapshots = cfg.Snapshots.Keep
		hub.Locator = locator
		hub.Filter = cfg.NodeFilter()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if ok, err := hub.WarmStart(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load last snapshot: %v\n", err)
		} else if !ok && verbose {
			fmt.Fprintln(os.Stderr, "No stored snapshot, starting with an empty map")
		}

		srv := server.New(server.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			AllowAll:       cfg.Server.AllowAllOrigins,
			RequestTimeout: time.Duration(cfg.Server.RequestTimeoutS) * time.Second,
		}, database)
		hub.RegisterRoutes(srv.Router())
		if store != nil {
			snapshots.RegisterRoutes(srv.Router(), store)
		}

		if cfg.Telemetry.URL != "" {
			poller := &telemetry.Poller{
				Source:   newTelemetryClient(cfg),
				Interval: cfg.Telemetry.Interval(),
				Locator:  locator,
				Filter:   hub.Filter,
				OnNodes: func(nodes []cluster.Node, stats telemetry.Stats) {
					if verbose {
						log.Printf("telemetry: %+v", stats)
					}
					if err := hub.SetNodes(ctx, nodes, snapshots.SourcePoller, stats.Total-stats.Kept); err != nil {
						log.Printf("telemetry: %v", err)
					}
				},
			}
			go poller.Run(ctx)
		}

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "nodemap server %s starting on %s\n", Version, srv.Addr())
		if database != nil {
			fmt.Fprintf(os.Stderr, "  Database: %s\n", database.Path())
		}
		if cfg.Telemetry.URL != "" {
			fmt.Fprintf(os.Stderr, "  Telemetry: %s every %s\n", cfg.Telemetry.URL, cfg.Telemetry.Interval())
		}
		fmt.Fprintf(os.Stderr, "  Nodes loaded: %d\n", hub.Index().Len())

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveDevCORS, "dev", false, "Allow all CORS origins")
	rootCmd.AddCommand(serveCmd)
}
