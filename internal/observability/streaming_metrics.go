package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamingCollector exposes wall streaming metrics. It satisfies
// core.StreamingMetricsRecorder.
type StreamingCollector struct {
	gatherer prometheus.Gatherer

	Chains        prometheus.Gauge
	VisibleChains prometheus.Gauge
	LiveSegments  prometheus.Gauge
	Transitions   *prometheus.CounterVec
	Subdivision   prometheus.Histogram
	BuildFailures prometheus.Counter
	FrameDuration prometheus.Histogram
}

// NewStreamingCollector registers streaming metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewStreamingCollector(reg prometheus.Registerer) (*StreamingCollector, error) {
	reg, gatherer := registryPair(reg)

	chains, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wall_chains",
		Help: "Number of wall chains owned by the manager.",
	}), "wall_chains")
	if err != nil {
		return nil, err
	}
	visible, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wall_chains_visible",
		Help: "Number of wall chains currently holding segments.",
	}), "wall_chains_visible")
	if err != nil {
		return nil, err
	}
	segments, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wall_segments_live",
		Help: "Number of live wall segment meshes.",
	}), "wall_segments_live")
	if err != nil {
		return nil, err
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wall_chain_transitions_total",
		Help: "Wall chain visibility transitions, labeled by direction (load or unload).",
	}, []string{"direction"})
	transitions, err = register(reg, transitions, "wall_chain_transitions_total")
	if err != nil {
		return nil, err
	}

	subdivision := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wall_subdivision_segments",
		Help:    "Number of segments a chain was split into when it loaded.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	subdivision, err = register(reg, subdivision, "wall_subdivision_segments")
	if err != nil {
		return nil, err
	}

	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wall_segment_build_failures_total",
		Help: "Chains whose segments could not all be built.",
	})
	failures, err = register(reg, failures, "wall_segment_build_failures_total")
	if err != nil {
		return nil, err
	}

	frame := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wall_frame_duration_seconds",
		Help:    "Time spent in one manager frame update.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
	frame, err = register(reg, frame, "wall_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &StreamingCollector{
		gatherer:      gatherer,
		Chains:        chains,
		VisibleChains: visible,
		LiveSegments:  segments,
		Transitions:   transitions,
		Subdivision:   subdivision,
		BuildFailures: failures,
		FrameDuration: frame,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *StreamingCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// RecordTransition counts a chain loading or unloading.
func (c *StreamingCollector) RecordTransition(loaded bool) {
	if c == nil || c.Transitions == nil {
		return
	}
	direction := "unload"
	if loaded {
		direction = "load"
	}
	c.Transitions.WithLabelValues(direction).Inc()
}

// ObserveSubdivision records how many pieces a chain was split into.
func (c *StreamingCollector) ObserveSubdivision(pieces int) {
	if c == nil || c.Subdivision == nil {
		return
	}
	c.Subdivision.Observe(float64(pieces))
}

// RecordSegmentBuildFailure increments the build failure counter.
func (c *StreamingCollector) RecordSegmentBuildFailure() {
	if c == nil || c.BuildFailures == nil {
		return
	}
	c.BuildFailures.Inc()
}

// SetStreamingCounts updates the chain and segment gauges.
func (c *StreamingCollector) SetStreamingCounts(chains, visible, segments int) {
	if c == nil {
		return
	}
	if c.Chains != nil {
		c.Chains.Set(float64(chains))
	}
	if c.VisibleChains != nil {
		c.VisibleChains.Set(float64(visible))
	}
	if c.LiveSegments != nil {
		c.LiveSegments.Set(float64(segments))
	}
}

// ObserveFrame records the duration of one manager frame.
func (c *StreamingCollector) ObserveFrame(d time.Duration) {
	if c == nil || c.FrameDuration == nil {
		return
	}
	c.FrameDuration.Observe(d.Seconds())
}
