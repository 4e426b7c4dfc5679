package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBucketsMs = []float64{0.5, 1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

var (
	IndexBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodemap_index_builds_total",
		Help: "Total clustering index builds by strategy",
	}, []string{"strategy"})
	IndexBuildDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nodemap_index_build_duration_ms",
		Help:    "Clustering index build duration in milliseconds",
		Buckets: durationBucketsMs,
	}, []string{"strategy"})
	RecomputeDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nodemap_recompute_duration_ms",
		Help:    "Viewport recompute duration in milliseconds",
		Buckets: durationBucketsMs,
	})
	FramesPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodemap_frames_published_total",
		Help: "Total frames published to renderers",
	})
	FramesSupersededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nodemap_frames_superseded_total",
		Help: "Total frames dropped because newer input arrived",
	})
	ExpansionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodemap_expansions_total",
		Help: "Cluster expansion requests by result",
	}, []string{"result"})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodemap_active_sessions",
		Help: "Open live map sessions",
	})
	Nodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nodemap_nodes",
		Help: "Nodes in the current snapshot",
	})
	TelemetryFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodemap_telemetry_fetches_total",
		Help: "Upstream telemetry fetches by status",
	}, []string{"status"})
	NodesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nodemap_nodes_dropped_total",
		Help: "Telemetry records dropped at ingestion by reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(IndexBuildsTotal)
	prometheus.MustRegister(IndexBuildDurationMs)
	prometheus.MustRegister(RecomputeDurationMs)
	prometheus.MustRegister(FramesPublishedTotal)
	prometheus.MustRegister(FramesSupersededTotal)
	prometheus.MustRegister(ExpansionsTotal)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(Nodes)
	prometheus.MustRegister(TelemetryFetchesTotal)
	prometheus.MustRegister(NodesDroppedTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
