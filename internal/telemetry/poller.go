package telemetry

import (
	"context"
	"log"
	"reflect"
	"time"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/metrics"
)

// Source fetches raw node records.
type Source interface {
	Fetch(ctx context.Context) ([]Record, error)
}

// Poller fetches the node list on an interval and hands every changed,
// normalized node set to OnNodes. Fetch failures keep the last good set.
type Poller struct {
	Source   Source
	Interval time.Duration
	Locator  Geolocator
	Filter   *Filter
	OnNodes  func(nodes []cluster.Node, stats Stats)

	last []cluster.Node
}

// Poll runs one fetch. It reports whether OnNodes was called.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	records, err := p.Source.Fetch(ctx)
	if err != nil {
		metrics.TelemetryFetchesTotal.WithLabelValues("error").Inc()
		return false, err
	}
	metrics.TelemetryFetchesTotal.WithLabelValues("ok").Inc()

	nodes, stats := Normalize(records, p.Locator, p.Filter)
	nodes = cluster.SortNodes(nodes)
	if p.last != nil && reflect.DeepEqual(nodes, p.last) {
		return false, nil
	}
	p.last = nodes
	if p.OnNodes != nil {
		p.OnNodes(nodes, stats)
	}
	return true, nil
}

// Run polls immediately and then every Interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		changed, err := p.Poll(ctx)
		switch {
		case err != nil:
			log.Printf("telemetry: fetch failed, keeping last node set: %v", err)
		case changed:
			log.Printf("telemetry: node set updated (%d nodes)", len(p.last))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
