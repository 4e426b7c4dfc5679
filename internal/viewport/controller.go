package viewport

import (
	"sync"
	"time"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/geo"
	"github.com/ziadkadry99/nodemap/internal/metrics"
	"github.com/ziadkadry99/nodemap/internal/spread"
)

// Default viewport size used when a client does not report one.
const (
	DefaultWidth  = 1024
	DefaultHeight = 768
)

// Viewport describes what the renderer currently shows. When Altitude is
// set and Zoom is zero the zoom is derived from the altitude. A zero Bounds
// is derived from the centre, zoom and pixel size.
type Viewport struct {
	Zoom      float64         `json:"zoom"`
	CenterLat float64         `json:"center_lat"`
	CenterLng float64         `json:"center_lng"`
	Bounds    geo.BoundingBox `json:"bounds"`
	Altitude  float64         `json:"altitude,omitempty"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
}

// Normalize resolves altitude, clamps the zoom and fills in defaults.
func (v Viewport) Normalize() Viewport {
	if v.Zoom == 0 && v.Altitude > 0 {
		v.Zoom = geo.AltitudeToZoom(v.Altitude)
	}
	v.Zoom = geo.ClampZoom(v.Zoom)
	v.CenterLat = geo.ClampLat(v.CenterLat)
	v.CenterLng = geo.WrapLng(v.CenterLng)
	if v.Width <= 0 {
		v.Width = DefaultWidth
	}
	if v.Height <= 0 {
		v.Height = DefaultHeight
	}
	if v.Bounds.IsZero() {
		v.Bounds = geo.BoundsAround(v.CenterLat, v.CenterLng, v.Zoom, v.Width, v.Height)
	} else {
		v.Bounds = v.Bounds.Normalize()
	}
	return v
}

// Frame is one published render list.
type Frame struct {
	Seq        uint64                 `json:"seq"`
	Generation uint64                 `json:"generation"`
	Zoom       float64                `json:"zoom"`
	Bounds     geo.BoundingBox        `json:"bounds"`
	Points     []spread.DisplayPoint  `json:"points"`
	Connectors []spread.ConnectorLine `json:"connectors"`
}

// State is the controller's computation state.
type State int

const (
	Idle State = iota
	Recomputing
)

func (s State) String() string {
	if s == Recomputing {
		return "recomputing"
	}
	return "idle"
}

// Config tunes a Controller.
type Config struct {
	Debounce time.Duration
	Options  cluster.Options
	Spreader *spread.Spreader
	Resolver cluster.Resolver
	// PadRatio grows the queried box so markers just outside the edge are
	// already placed when the user pans.
	PadRatio float64
}

// DefaultConfig returns a 50ms debounce with the default policy.
func DefaultConfig() Config {
	opts := cluster.DefaultOptions()
	return Config{
		Debounce: 50 * time.Millisecond,
		Options:  opts,
		Spreader: spread.New(opts.Policy),
		Resolver: cluster.Resolver{MaxZoomStep: cluster.DefaultMaxZoomStep},
		PadRatio: 0.1,
	}
}

// Controller turns viewport and node-set events into published frames.
// Viewport bursts are debounced so only the latest pending viewport is
// computed. Every input bumps a sequence number and a computation is
// published only when no newer input arrived while it ran.
type Controller struct {
	cfg     Config
	publish func(Frame)

	runMu sync.Mutex // serializes computations

	mu          sync.Mutex
	index       cluster.Index
	last        Viewport
	hasViewport bool
	pending     *Viewport
	timer       *time.Timer
	seq         uint64
	state       State
	closed      bool
}

// New creates a controller. publish may be nil when only Recompute is
// used.
func New(cfg Config, publish func(Frame)) *Controller {
	if cfg.Spreader == nil {
		cfg.Spreader = spread.New(cfg.Options.Policy)
	}
	if publish == nil {
		publish = func(Frame) {}
	}
	return &Controller{cfg: cfg, publish: publish}
}

// OnNodeSetChanged builds a new index from nodes and swaps it in.
func (c *Controller) OnNodeSetChanged(nodes []cluster.Node) {
	c.OnIndexChanged(BuildIndex(nodes, c.cfg.Options))
}

// BuildIndex builds an index and records build metrics.
func BuildIndex(nodes []cluster.Node, opts cluster.Options) cluster.Index {
	start := time.Now()
	idx := cluster.Build(nodes, opts)
	strategy := string(idx.Strategy())
	metrics.IndexBuildsTotal.WithLabelValues(strategy).Inc()
	metrics.IndexBuildDurationMs.WithLabelValues(strategy).Observe(float64(time.Since(start).Microseconds()) / 1000)
	return idx
}

// OnIndexChanged swaps in a prebuilt index and schedules a recompute of
// the last viewport.
func (c *Controller) OnIndexChanged(idx cluster.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.index = idx
	c.seq++
	if c.hasViewport && c.pending == nil {
		vp := c.last
		c.scheduleLocked(vp)
	}
}

// OnViewportChanged records vp as the latest pending viewport and re-arms
// the debounce timer.
func (c *Controller) OnViewportChanged(vp Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.seq++
	c.scheduleLocked(vp)
}

func (c *Controller) scheduleLocked(vp Viewport) {
	c.pending = &vp
	if c.timer == nil {
		c.timer = time.AfterFunc(c.cfg.Debounce, c.fire)
		return
	}
	c.timer.Reset(c.cfg.Debounce)
}

func (c *Controller) fire() {
	c.mu.Lock()
	if c.closed || c.pending == nil {
		c.mu.Unlock()
		return
	}
	vp := *c.pending
	c.pending = nil
	c.last, c.hasViewport = vp, true
	seq := c.seq
	c.mu.Unlock()

	c.run(vp, seq)
}

// Recompute computes a frame for vp synchronously. It supersedes any
// pending debounced viewport. The bool reports whether the frame was
// published, which fails only when newer input arrived meanwhile.
func (c *Controller) Recompute(vp Viewport) (Frame, bool) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.pending = nil
	c.last, c.hasViewport = vp, true
	c.mu.Unlock()
	return c.run(vp, seq)
}

func (c *Controller) run(vp Viewport, seq uint64) (Frame, bool) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	c.state = Recomputing
	idx := c.index
	c.mu.Unlock()

	frame := c.compute(idx, vp.Normalize(), seq)

	c.mu.Lock()
	c.state = Idle
	current := seq == c.seq && !c.closed
	c.mu.Unlock()

	if !current {
		metrics.FramesSupersededTotal.Inc()
		return frame, false
	}
	metrics.FramesPublishedTotal.Inc()
	c.publish(frame)
	return frame, true
}

func (c *Controller) compute(idx cluster.Index, vp Viewport, seq uint64) Frame {
	start := time.Now()
	defer func() {
		metrics.RecomputeDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	frame := Frame{
		Seq:        seq,
		Zoom:       vp.Zoom,
		Bounds:     vp.Bounds,
		Points:     []spread.DisplayPoint{},
		Connectors: []spread.ConnectorLine{},
	}
	if idx == nil {
		return frame
	}
	frame.Generation = idx.Generation()
	bbox := vp.Bounds
	if c.cfg.PadRatio > 0 {
		bbox = bbox.Pad(c.cfg.PadRatio)
	}
	points, lines := c.cfg.Spreader.Spread(idx.Clusters(bbox, vp.Zoom), vp.Zoom)
	if len(points) > 0 {
		frame.Points = points
	}
	if len(lines) > 0 {
		frame.Connectors = lines
	}
	return frame
}

// ExpandCluster resolves h against the current index and, on success,
// applies the target viewport. A stale handle is a no-op.
func (c *Controller) ExpandCluster(h cluster.Handle) (cluster.Expansion, bool) {
	c.mu.Lock()
	idx := c.index
	last := c.last
	if c.pending != nil {
		last = *c.pending
	}
	c.mu.Unlock()

	current := last.Normalize()
	exp, ok := c.cfg.Resolver.Expand(idx, h, current.Zoom)
	if !ok {
		metrics.ExpansionsTotal.WithLabelValues("stale").Inc()
		return cluster.Expansion{}, false
	}
	metrics.ExpansionsTotal.WithLabelValues("ok").Inc()
	c.OnViewportChanged(Viewport{
		Zoom:      exp.Zoom,
		CenterLat: exp.CenterLat,
		CenterLng: exp.CenterLng,
		Width:     last.Width,
		Height:    last.Height,
	})
	return exp, true
}

// Index returns the index currently in use.
func (c *Controller) Index() cluster.Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// State reports whether a computation is running.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops the debounce timer. Later events are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
	}
}
