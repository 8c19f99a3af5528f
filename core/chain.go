package core

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/wallstream/internal/logging"
	"github.com/signalsfoundry/wallstream/model"
)

const tracerName = "github.com/signalsfoundry/wallstream/core"

// WallChain is one logical wall between two waypoints on a body. While the
// viewer is close it is subdivided into SegmentMesh pieces; when the viewer
// moves away the pieces are destroyed. Separate load and unload distances
// keep a viewer hovering near one boundary from rebuilding the wall every
// frame.
//
// Invariant: segments is empty iff visible is false.
type WallChain struct {
	host *Host
	log  logging.Logger

	bodyName   string
	body       *model.Body
	start      model.GeoCoordinate
	end        model.GeoCoordinate
	collidable bool
	visible    bool
	destroyed  bool

	segments []*SegmentMesh
}

var _ Tickable = (*WallChain)(nil)

// NewWallChain resolves the body once. An unknown body leaves the chain
// inert: it never becomes visible and never builds geometry.
func NewWallChain(host *Host, bodyName string, start, end model.GeoCoordinate, collidable bool) *WallChain {
	c := &WallChain{
		host:       host,
		bodyName:   bodyName,
		start:      start,
		end:        end,
		collidable: collidable,
	}
	c.log = host.Log.With(logging.String("body", bodyName))

	if host.Bodies != nil {
		if b, ok := host.Bodies.FindBody(bodyName); ok {
			c.body = b
		}
	}
	if c.body == nil {
		c.log.Warn(context.Background(), "wall body not found; chain stays inert",
			logging.String("start", start.String()),
			logging.String("end", end.String()),
		)
	}
	return c
}

// NewWallChainFromPair is NewWallChain for a stored waypoint pair.
func NewWallChainFromPair(host *Host, p model.WaypointPair) *WallChain {
	return NewWallChain(host, p.BodyName, p.Start, p.End, p.Collidable)
}

// Start returns the start waypoint.
func (c *WallChain) Start() model.GeoCoordinate { return c.start }

// End returns the end waypoint.
func (c *WallChain) End() model.GeoCoordinate { return c.end }

// BodyName returns the name the chain was constructed with, whether or not
// it resolved.
func (c *WallChain) BodyName() string { return c.bodyName }

// Body returns the resolved body, nil when inert.
func (c *WallChain) Body() *model.Body { return c.body }

// Collidable reports the chain's collidable flag.
func (c *WallChain) Collidable() bool { return c.collidable }

// Visible reports whether the chain currently holds segments.
func (c *WallChain) Visible() bool { return c.visible }

// Inert reports whether the body failed to resolve.
func (c *WallChain) Inert() bool { return c.body == nil }

// SegmentCount returns the number of live segments.
func (c *WallChain) SegmentCount() int { return len(c.segments) }

// Segments returns the live segments in order. The slice is a copy; the
// segments are owned by the chain.
func (c *WallChain) Segments() []*SegmentMesh {
	return append([]*SegmentMesh(nil), c.segments...)
}

// Pair returns the chain as a persistable waypoint pair.
func (c *WallChain) Pair() model.WaypointPair {
	return model.WaypointPair{
		BodyName:   c.bodyName,
		Start:      c.start,
		End:        c.end,
		Collidable: c.collidable,
	}
}

// Update advances the visibility state machine, then repositions live
// segments.
func (c *WallChain) Update(ctx context.Context) {
	if c.destroyed {
		return
	}
	c.setVisibility(ctx)
	for _, s := range c.segments {
		s.Update(c.body)
	}
}

// FixedUpdate repositions live segments without re-evaluating visibility,
// so a frame never sees two transitions.
func (c *WallChain) FixedUpdate(ctx context.Context) {
	if c.destroyed {
		return
	}
	for _, s := range c.segments {
		s.FixedUpdate(c.body)
	}
}

// MakeCollidable sets the flag for future segments and attaches colliders to
// the live ones.
func (c *WallChain) MakeCollidable() {
	c.collidable = true
	for _, s := range c.segments {
		if err := s.MakeCollidable(); err != nil {
			c.log.Warn(context.Background(), "failed to make wall segment collidable", logging.Err(err))
		}
	}
}

// Destroy releases every segment. The chain stays hidden afterwards and
// repeated calls do nothing.
func (c *WallChain) Destroy() {
	if c.destroyed {
		return
	}
	c.destroySegments()
	c.destroyed = true
}

func (c *WallChain) setVisibility(ctx context.Context) {
	if c.body == nil {
		return
	}
	viewer := c.host.Viewer
	if viewer == nil || !viewer.Ready() {
		return
	}
	if viewer.CurrentBody() != c.body {
		if c.visible {
			c.hide(ctx, "viewer left body")
		}
		return
	}

	pos := viewer.WorldPosition()
	startSq := squaredDistance(pos, GeoToWorld(c.body, c.start))
	endSq := squaredDistance(pos, GeoToWorld(c.body, c.end))

	unloadSq := c.host.Params.UnloadDistance * c.host.Params.UnloadDistance
	loadSq := c.host.Params.LoadDistance * c.host.Params.LoadDistance

	if c.visible && startSq > unloadSq && endSq > unloadSq {
		c.hide(ctx, "viewer out of range")
	}
	if !c.visible && startSq < loadSq && endSq < loadSq {
		c.show(ctx)
	}
}

func (c *WallChain) show(ctx context.Context) {
	if !c.createSegments(ctx) {
		return
	}
	c.visible = true
	c.host.Metrics.RecordTransition(true)
	c.log.Debug(ctx, "wall chain loaded", logging.Int("segments", len(c.segments)))
}

func (c *WallChain) hide(ctx context.Context, reason string) {
	n := len(c.segments)
	c.destroySegments()
	c.host.Metrics.RecordTransition(false)
	c.log.Debug(ctx, "wall chain unloaded", logging.String("reason", reason), logging.Int("segments", n))
}

func squaredDistance(a, b mgl64.Vec3) float64 {
	d := a.Sub(b)
	return d.Dot(d)
}

// SubdivisionCount returns how many pieces a straight run of the given world
// length is split into: at least one, none longer than maxLength.
func SubdivisionCount(length, maxLength float64) int {
	if length <= 0 || maxLength <= 0 {
		return 1
	}
	n := int(math.Ceil(length / maxLength))
	if n < 1 {
		n = 1
	}
	return n
}

// Subdivide splits the chain's current world-space chord into pieces no
// longer than the configured maximum and returns their endpoints converted
// back to body-relative coordinates, in order.
func (c *WallChain) Subdivide() [][2]model.GeoCoordinate {
	if c.body == nil {
		return nil
	}
	worldStart := GeoToWorld(c.body, c.start)
	worldEnd := GeoToWorld(c.body, c.end)
	chord := worldEnd.Sub(worldStart)
	n := SubdivisionCount(chord.Len(), c.host.Params.MaxSegmentLength)
	step := chord.Mul(1 / float64(n))

	pieces := make([][2]model.GeoCoordinate, 0, n)
	for i := 0; i < n; i++ {
		a := worldStart.Add(step.Mul(float64(i)))
		b := worldStart.Add(step.Mul(float64(i + 1)))
		if i == n-1 {
			b = worldEnd
		}
		pieces = append(pieces, [2]model.GeoCoordinate{ToGeo(c.body, a), ToGeo(c.body, b)})
	}
	return pieces
}

// createSegments builds every piece or none. It reports whether the chain
// now holds segments.
func (c *WallChain) createSegments(ctx context.Context) bool {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "WallChain.createSegments")
	defer span.End()

	pieces := c.Subdivide()
	span.SetAttributes(
		attribute.String("wall.body", c.bodyName),
		attribute.Int("wall.pieces", len(pieces)),
	)
	c.host.Metrics.ObserveSubdivision(len(pieces))

	built := make([]*SegmentMesh, 0, len(pieces))
	for _, p := range pieces {
		s, err := NewSegmentMesh(c.host, p[0], p[1], c.collidable)
		if err != nil {
			for _, b := range built {
				b.Destroy()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "segment build failed")
			c.host.Metrics.RecordSegmentBuildFailure()
			c.log.Error(ctx, "failed to build wall segments; chain stays hidden", logging.Err(err))
			return false
		}
		built = append(built, s)
	}
	for _, s := range built {
		s.Update(c.body)
	}
	c.segments = built
	return true
}

func (c *WallChain) destroySegments() {
	for _, s := range c.segments {
		s.Destroy()
	}
	c.segments = nil
	c.visible = false
}
