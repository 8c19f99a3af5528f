package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/wallstream/internal/logging"
	"github.com/signalsfoundry/wallstream/internal/render"
	"github.com/signalsfoundry/wallstream/model"
)

// Default streaming parameters.
const (
	DefaultLoadDistance     = 20000.0
	DefaultUnloadDistance   = 25000.0
	DefaultMaxSegmentLength = 25.0
	DefaultWallWidth        = 2.0
	DefaultWallHeight       = 10.0
)

// BodyFinder resolves a body by name.
type BodyFinder interface {
	FindBody(name string) (*model.Body, bool)
}

// Viewer is the entity whose position drives loading and unloading.
type Viewer interface {
	WorldPosition() mgl64.Vec3
	CurrentBody() *model.Body
	// Ready reports whether the viewer is fully loaded and alive. Distance
	// checks are skipped while it is false.
	Ready() bool
}

// Tickable is driven by the host scheduler: Update once per render frame,
// FixedUpdate once per physics step.
type Tickable interface {
	Update(ctx context.Context)
	FixedUpdate(ctx context.Context)
}

// StreamingMetricsRecorder receives streaming events. observability's
// StreamingCollector implements it.
type StreamingMetricsRecorder interface {
	RecordTransition(loaded bool)
	ObserveSubdivision(pieces int)
	RecordSegmentBuildFailure()
	SetStreamingCounts(chains, visible, segments int)
	ObserveFrame(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(bool)            {}
func (noopMetrics) ObserveSubdivision(int)           {}
func (noopMetrics) RecordSegmentBuildFailure()       {}
func (noopMetrics) SetStreamingCounts(int, int, int) {}
func (noopMetrics) ObserveFrame(time.Duration)       {}

// StreamingParams are the distances and dimensions used by chains and
// segments. Distances are in world units (metres).
type StreamingParams struct {
	LoadDistance     float64
	UnloadDistance   float64
	MaxSegmentLength float64
	WallWidth        float64
	WallHeight       float64
}

// DefaultStreamingParams returns the stock wall parameters.
func DefaultStreamingParams() StreamingParams {
	return StreamingParams{
		LoadDistance:     DefaultLoadDistance,
		UnloadDistance:   DefaultUnloadDistance,
		MaxSegmentLength: DefaultMaxSegmentLength,
		WallWidth:        DefaultWallWidth,
		WallHeight:       DefaultWallHeight,
	}
}

// Validate checks the parameters are usable.
func (p StreamingParams) Validate() error {
	if p.LoadDistance <= 0 {
		return fmt.Errorf("load distance must be positive, got %v", p.LoadDistance)
	}
	if p.UnloadDistance < p.LoadDistance {
		return fmt.Errorf("unload distance %v must not be below load distance %v", p.UnloadDistance, p.LoadDistance)
	}
	if p.MaxSegmentLength <= 0 {
		return fmt.Errorf("max segment length must be positive, got %v", p.MaxSegmentLength)
	}
	if p.WallWidth <= 0 || p.WallHeight <= 0 {
		return fmt.Errorf("wall dimensions must be positive, got %vx%v", p.WallWidth, p.WallHeight)
	}
	return nil
}

// Host bundles the external services chains and segments call into. One Host
// is shared by every chain of a manager.
type Host struct {
	Bodies  BodyFinder
	Viewer  Viewer
	Backend render.Backend
	Texture *render.SharedTexture
	Log     logging.Logger
	Metrics StreamingMetricsRecorder
	Params  StreamingParams
}

// HostOption customises NewHost.
type HostOption func(*Host)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) HostOption {
	return func(h *Host) {
		h.Log = l
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m StreamingMetricsRecorder) HostOption {
	return func(h *Host) {
		h.Metrics = m
	}
}

// WithStreamingParams overrides the default distances and dimensions.
func WithStreamingParams(p StreamingParams) HostOption {
	return func(h *Host) {
		h.Params = p
	}
}

// WithTexture overrides the shared wall texture.
func WithTexture(t *render.SharedTexture) HostOption {
	return func(h *Host) {
		h.Texture = t
	}
}

// NewHost wires the collaborators. When the backend also provides textures
// and no texture is configured, the default wall texture is looked up there.
func NewHost(bodies BodyFinder, viewer Viewer, backend render.Backend, opts ...HostOption) *Host {
	h := &Host{
		Bodies:  bodies,
		Viewer:  viewer,
		Backend: backend,
		Params:  DefaultStreamingParams(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.Log == nil {
		h.Log = logging.Noop()
	}
	if h.Metrics == nil {
		h.Metrics = noopMetrics{}
	}
	if h.Texture == nil {
		provider, _ := backend.(render.TextureProvider)
		h.Texture = render.NewSharedTexture(provider, render.DefaultWallTexture, h.Log)
	}
	return h
}
